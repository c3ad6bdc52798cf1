package portfolio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("other IPs have their own bucket")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("expected retry after 61s, got %d", got)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatalf("request after window should pass")
	}

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	if len(rl.buckets) != 0 {
		t.Fatalf("expected stale buckets to be dropped, have %d", len(rl.buckets))
	}
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, xff, want string
	}{
		{"10.0.0.1:5555", "", "10.0.0.1"},
		{"[::1]:80", "", "::1"},
		{"10.0.0.1:5555", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"garbage", "", "garbage"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantAllow  string
		wantStatus int
	}{
		{"default allows all", nil, "https://x.example", http.MethodGet, "*", http.StatusTeapot},
		{"star allows all", []string{"https://a.example", "*"}, "https://x.example", http.MethodGet, "*", http.StatusTeapot},
		{"listed origin echoed", []string{"https://a.example"}, "https://a.example", http.MethodGet, "https://a.example", http.StatusTeapot},
		{"unlisted origin", []string{"https://a.example"}, "https://x.example", http.MethodGet, "", http.StatusTeapot},
		{"preflight", nil, "https://x.example", http.MethodOptions, "*", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/projects", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.origins, ok).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("allow origin %q, want %q", got, tt.wantAllow)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestThumbnail_Scaling(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 1000, 500, 480, 480, 240},
		{"portrait", 300, 900, 300, 100, 300},
		{"small kept", 40, 20, 480, 40, 20},
		{"default max", 960, 960, 0, 480, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Thumbnail(bytes.NewReader(pngBytes(t, tt.w, tt.h)), tt.max)
			if err != nil {
				t.Fatalf("Thumbnail: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Fatalf("got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestThumbnail_GIFAndRejectsNonImage(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 20, 10), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := Thumbnail(&buf, 10); err != nil {
		t.Fatalf("gif should decode: %v", err)
	}

	if _, err := Thumbnail(bytes.NewReader([]byte("plain text")), 10); err != image.ErrFormat {
		t.Fatalf("expected image.ErrFormat, got %v", err)
	}
}

func TestWriteThumbnailPNG_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := WriteThumbnailPNG(filepath.Join(dir, "nope.png"), filepath.Join(dir, "out.png"), 10)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

// pngHeader returns a grayscale PNG that declares w x h pixels but carries
// no image data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter, interlace stay 0
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestThumbnail_RejectsHugeDimensions(t *testing.T) {
	_, err := Thumbnail(bytes.NewReader(pngHeader(60000, 60000)), 64)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	// At the cap the header passes and reaches the full decode, which fails on the
	// missing pixel data rather than on size.
	_, err = Thumbnail(bytes.NewReader(pngHeader(8000, 5000)), 64)
	if err == nil || errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected a decode error below the cap, got %v", err)
	}
}
