package typing

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestController_KeepaliveUntilStop(t *testing.T) {
	var calls atomic.Int32
	c := New(Options{
		KeepaliveInterval: 10 * time.Millisecond,
		MaxDuration:       time.Minute,
		StartFn: func() error {
			calls.Add(1)
			return nil
		},
	})

	c.Start()
	time.Sleep(55 * time.Millisecond)
	c.Stop()

	n := calls.Load()
	if n < 3 {
		t.Errorf("sent %d indicators in 55ms at 10ms interval, want >= 3", n)
	}

	time.Sleep(30 * time.Millisecond)
	if after := calls.Load(); after != n {
		t.Errorf("indicator sent after Stop: %d -> %d", n, after)
	}
}

func TestController_MaxDuration(t *testing.T) {
	var calls atomic.Int32
	c := New(Options{
		KeepaliveInterval: 5 * time.Millisecond,
		MaxDuration:       20 * time.Millisecond,
		StartFn: func() error {
			calls.Add(1)
			return nil
		},
	})
	c.Start()
	defer c.Stop()

	time.Sleep(60 * time.Millisecond)
	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if after := calls.Load(); after != n {
		t.Errorf("indicator still running after MaxDuration: %d -> %d", n, after)
	}
}

func TestController_StopIdempotent(t *testing.T) {
	c := New(Options{StartFn: func() error { return errors.New("rate limited") }})
	c.Start()
	c.Stop()
	c.Stop()

	var calls atomic.Int32
	never := New(Options{StartFn: func() error {
		calls.Add(1)
		return nil
	}})
	never.Stop()
	never.Start()
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("Start after Stop sent an indicator")
	}
}
