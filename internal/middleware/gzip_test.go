package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoBid возвращает полученное тело обратно в поле "echo".
func echoBid(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const bid = `{"max_bid":"25.00"}`

	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		wantStatus     int
		wantEncoding   string
		wantBody       string
	}{
		{
			name:           "plain request, gzip response",
			acceptEncoding: "gzip, deflate",
			wantStatus:     http.StatusCreated,
			wantEncoding:   "gzip",
			wantBody:       `{"echo":` + bid + `}`,
		},
		{
			name:         "plain request, plain response",
			wantStatus:   http.StatusCreated,
			wantEncoding: "",
			wantBody:     `{"echo":` + bid + `}`,
		},
		{
			name:         "compressed request, plain response",
			compressBody: true,
			wantStatus:   http.StatusCreated,
			wantEncoding: "",
			wantBody:     `{"echo":` + bid + `}`,
		},
		{
			name:           "compressed request, gzip response",
			compressBody:   true,
			acceptEncoding: "gzip",
			wantStatus:     http.StatusCreated,
			wantEncoding:   "gzip",
			wantBody:       `{"echo":` + bid + `}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(bid)
			if tt.compressBody {
				body = gzipBytes(t, bid)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/listings/7/bids", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoBid)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.wantStatus)
			}
			if ct := res.Header.Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content-type: got %q", ct)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.wantEncoding)
			}

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer zr.Close()
				reader = zr
			}

			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(got) != tt.wantBody {
				t.Fatalf("body: got %q want %q", got, tt.wantBody)
			}
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoBid)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGzipMiddleware_ImplicitHeaderAndEmptyBody(t *testing.T) {
	tests := []struct {
		name         string
		next         http.HandlerFunc
		wantStatus   int
		wantEncoding string
		wantEmpty    bool
	}{
		{
			name: "write without WriteHeader",
			next: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
			wantStatus:   http.StatusOK,
			wantEncoding: "gzip",
		},
		{
			name: "no content",
			next: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			wantStatus: http.StatusNoContent,
			wantEmpty:  true,
		},
		{
			name: "empty ok",
			next: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantStatus: http.StatusOK,
			wantEmpty:  true,
		},
		{
			name: "empty write after header",
			next: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write(nil)
			},
			wantStatus: http.StatusAccepted,
			wantEmpty:  true,
		},
		{
			name: "handler writes nothing",
			next: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Listing-ID", "7")
			},
			wantStatus: http.StatusOK,
			wantEmpty:  true,
		},
		{
			name: "first status wins",
			next: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"error":"listing not active"}`))
			},
			wantStatus:   http.StatusConflict,
			wantEncoding: "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
			req.Header.Set("Accept-Encoding", "gzip")

			w := httptest.NewRecorder()
			GzipMiddleware(tt.next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status: got %d want %d", w.Code, tt.wantStatus)
			}
			if ce := w.Header().Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.wantEncoding)
			}
			if tt.wantEmpty && w.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %d bytes", w.Body.Len())
			}
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				if _, err := io.ReadAll(zr); err != nil {
					t.Fatalf("read gzip body: %v", err)
				}
			}
		})
	}
}
