package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

type stubChannel struct{ running bool }

func (c stubChannel) IsRunning() bool { return c.running }

type stubRelay struct{ n int }

func (r stubRelay) DedupeLen() int { return r.n }

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		channel ChannelStatus
		relay   RelayStats
		want    healthResponse
	}{
		{
			name:    "connected",
			channel: stubChannel{running: true},
			relay:   stubRelay{n: 4},
			want:    healthResponse{Status: "ok", Discord: true, DedupeEntries: 4, Version: "test"},
		},
		{
			name: "nothing wired",
			want: healthResponse{Status: "ok", Version: "test"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(config.GatewayConfig{}, tt.channel, tt.relay, "test")
			rec := httptest.NewRecorder()
			s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var got healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("health = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	s := NewServer(config.GatewayConfig{}, nil, nil, "")
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(config.GatewayConfig{}, stubChannel{running: true}, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
