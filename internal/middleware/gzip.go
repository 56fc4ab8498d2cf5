package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var gzipWriters = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

// gzipResponseWriter откладывает заголовки до первого непустого Write:
// Content-Encoding выставляется, только если у ответа есть тело.
type gzipResponseWriter struct {
	http.ResponseWriter
	zw          *gzip.Writer
	status      int
	wroteHeader bool
	compress    bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.status != 0 {
		return
	}
	g.status = code
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	if g.status == 0 {
		g.status = http.StatusOK
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !g.wroteHeader {
		g.wroteHeader = true
		if bodyAllowed(g.status) {
			h := g.Header()
			h.Del("Content-Length")
			h.Set("Content-Encoding", "gzip")
			h.Add("Vary", "Accept-Encoding")
			g.compress = true
		}
		g.ResponseWriter.WriteHeader(g.status)
	}

	if !g.compress {
		return g.ResponseWriter.Write(p)
	}
	return g.zw.Write(p)
}

// close отправляет отложенный статус и дописывает хвост gzip-потока, если тело сжималось.
func (g *gzipResponseWriter) close() error {
	if !g.compress {
		g.zw.Reset(io.Discard)
		if !g.wroteHeader && g.status != 0 {
			g.ResponseWriter.WriteHeader(g.status)
		}
		return nil
	}
	return g.zw.Close()
}

func bodyAllowed(status int) bool {
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

type gzipRequestBody struct {
	zr   *gzip.Reader
	orig io.ReadCloser
}

func (b *gzipRequestBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *gzipRequestBody) Close() error {
	if err := b.zr.Close(); err != nil {
		_ = b.orig.Close()
		return err
	}
	return b.orig.Close()
}

// GzipMiddleware распаковывает тело запроса с Content-Encoding: gzip
// и сжимает ответ, если клиент указал gzip в Accept-Encoding.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			r.Body = &gzipRequestBody{zr: zr, orig: r.Body}
			r.Header.Del("Content-Encoding")
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		zw := gzipWriters.Get().(*gzip.Writer)
		zw.Reset(w)
		gw := &gzipResponseWriter{ResponseWriter: w, zw: zw}
		defer func() {
			_ = gw.close()
			gzipWriters.Put(zw)
		}()

		next.ServeHTTP(gw, r)
	})
}
