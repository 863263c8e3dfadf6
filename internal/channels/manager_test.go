package channels

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubChannel struct {
	*BaseChannel
	startErr error
	stops    int
}

func newStubChannel(name string, startErr error) *stubChannel {
	return &stubChannel{BaseChannel: NewBaseChannel(name, nil, nil), startErr: startErr}
}

func (c *stubChannel) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.SetRunning(true)
	return nil
}

func (c *stubChannel) Stop(context.Context) error {
	c.stops++
	c.SetRunning(false)
	return nil
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("empty manager reports running")
	}

	a := newStubChannel("discord", nil)
	b := newStubChannel("backup", nil)
	m.RegisterChannel("discord", a)
	m.RegisterChannel("backup", b)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !m.IsRunning() {
		t.Error("IsRunning = false after StartAll")
	}
	if got, want := m.GetEnabledChannels(), []string{"backup", "discord"}; !reflect.DeepEqual(got, want) {
		t.Errorf("GetEnabledChannels = %v, want %v", got, want)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if a.stops != 1 || b.stops != 1 {
		t.Errorf("stops = %d/%d, want 1/1", a.stops, b.stops)
	}
	if m.IsRunning() {
		t.Error("IsRunning = true after StopAll")
	}
}

func TestManager_StartFailure(t *testing.T) {
	boom := errors.New("bad token")
	m := NewManager()
	ok := newStubChannel("ok", nil)
	bad := newStubChannel("bad", boom)
	m.RegisterChannel("ok", ok)
	m.RegisterChannel("bad", bad)

	err := m.StartAll(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("StartAll err = %v, want %v", err, boom)
	}
	if got := m.GetStatus(); !got["ok"] || got["bad"] {
		t.Errorf("GetStatus = %v", got)
	}
	if m.IsRunning() {
		t.Error("IsRunning = true with a failed channel")
	}

	m.StopAll(context.Background())
	if bad.stops != 0 {
		t.Error("StopAll stopped a channel that never started")
	}
}
