package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n" + "rest-of-file")

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/typed.webp":
			w.Header().Set("Content-Type", "image/webp; charset=binary")
			w.Write([]byte("RIFFxxxxWEBP"))
		case "/sniffed":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngMagic)
		case "/unknown":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("not an image"))
		case "/big":
			w.Write([]byte(strings.Repeat("a", 2048)))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write(pngMagic)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		path      string
		timeout   time.Duration
		wantType  string
		wantErr   bool
		wantLarge bool
	}{
		{name: "header type", path: "/typed.webp", wantType: "image/webp"},
		{name: "sniffed type", path: "/sniffed", wantType: "image/png"},
		{name: "default jpeg", path: "/unknown", wantType: "image/jpeg"},
		{name: "over cap", path: "/big", wantErr: true, wantLarge: true},
		{name: "not found", path: "/missing", wantErr: true},
		{name: "timeout", path: "/slow", timeout: 20 * time.Millisecond, wantErr: true},
	}

	f := NewFetcher(1024)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := f.Fetch(context.Background(), srv.URL+tt.path, tt.timeout)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantLarge && !errors.Is(err, ErrTooLarge) {
					t.Errorf("err = %v, want ErrTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.MediaType != tt.wantType {
				t.Errorf("MediaType = %q, want %q", img.MediaType, tt.wantType)
			}
			if len(img.Data) == 0 {
				t.Error("empty body")
			}
		})
	}
}

func TestMediaTypeFromFilename(t *testing.T) {
	tests := map[string]string{
		"a.JPG":      "image/jpeg",
		"b.jpeg":     "image/jpeg",
		"c.png":      "image/png",
		"d.webp":     "image/webp",
		"e.gif":      "image/gif",
		"notes.txt":  "",
		"no-ext":     "",
		"/x/y/z.Png": "image/png",
	}
	for in, want := range tests {
		if got := MediaTypeFromFilename(in); got != want {
			t.Errorf("MediaTypeFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
