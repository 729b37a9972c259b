package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// DefaultMinCompressLength is the body size below which responses stay plain.
const DefaultMinCompressLength = 1024

// compressWriter buffers the body until it is worth compressing. Small bodies
// are written through uncompressed when the handler returns.
type compressWriter struct {
	gin.ResponseWriter
	enc       *brotli.Writer
	buf       []byte
	minLength int
	started   bool
}

func (w *compressWriter) Write(data []byte) (int, error) {
	if w.started {
		return w.enc.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}

	w.started = true
	w.ResponseWriter.Header().Set("Content-Encoding", "br")
	w.ResponseWriter.Header().Del("Content-Length")
	if _, err := w.enc.Write(w.buf); err != nil {
		return 0, err
	}
	w.buf = nil
	return len(data), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *compressWriter) finish() error {
	if w.started {
		return w.enc.Close()
	}
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf)
	return err
}

// Brotli compresses JSON responses for clients that accept "br".
// Streaming routes (SSE, WebSocket) are passed through untouched.
func Brotli(quality, minLength int) gin.HandlerFunc {
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}
	if minLength <= 0 {
		minLength = DefaultMinCompressLength
	}

	return func(c *gin.Context) {
		if isStreaming(c.Request) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		cw := &compressWriter{
			ResponseWriter: c.Writer,
			enc:            brotli.NewWriterLevel(c.Writer, quality),
			minLength:      minLength,
		}
		c.Writer = cw
		defer func() {
			if err := cw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

func isStreaming(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/monitor")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "br") {
			return true
		}
	}
	return false
}
