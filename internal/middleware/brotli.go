package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// Skipper bypasses compression for matching requests.
	Skipper func(c *gin.Context) bool
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// Content types that are already compressed and gain nothing from brotli.
var precompressedTypes = []string{"application/pdf", "image/", "application/zip"}

type brotliWriter struct {
	gin.ResponseWriter
	writer    *brotli.Writer
	quality   int
	buf       []byte
	minLength int
	decided   bool
	compress  bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.decided {
		if bw.compress {
			return bw.writer.Write(data)
		}
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}

	bw.decide(true)
	if err := bw.drain(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// decide fixes the encoding once enough of the body is known.
func (bw *brotliWriter) decide(large bool) {
	bw.decided = true
	bw.compress = large && !isPrecompressed(bw.ResponseWriter.Header().Get("Content-Type"))
	if bw.compress {
		bw.ResponseWriter.Header().Set("Content-Encoding", "br")
		bw.ResponseWriter.Header().Del("Content-Length")
		bw.writer = brotli.NewWriterLevel(bw.ResponseWriter, bw.quality)
	}
}

func (bw *brotliWriter) drain() error {
	if len(bw.buf) == 0 {
		return nil
	}
	var err error
	if bw.compress {
		_, err = bw.writer.Write(bw.buf)
	} else {
		_, err = bw.ResponseWriter.Write(bw.buf)
	}
	bw.buf = bw.buf[:0]
	return err
}

// Flush forwards to the underlying writer; a pending small body goes out uncompressed.
func (bw *brotliWriter) Flush() {
	if !bw.decided {
		bw.decide(false)
	}
	_ = bw.drain()
	if bw.compress {
		_ = bw.writer.Flush()
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) finish() error {
	if !bw.decided {
		bw.decide(false)
	}
	if err := bw.drain(); err != nil {
		return err
	}
	if bw.compress {
		return bw.writer.Close()
	}
	return nil
}

func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			quality:        cfg.Quality,
			minLength:      cfg.MinLength,
		}
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Writer = bw
		c.Next()
	}
}

// shouldSkip passes WebSocket upgrades through untouched; the handshake
// fails if the response writer is wrapped.
func shouldSkip(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func isPrecompressed(contentType string) bool {
	for _, t := range precompressedTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	ae := r.Header.Get("Accept-Encoding")
	for _, enc := range strings.Split(ae, ",") {
		enc = strings.TrimSpace(strings.ToLower(enc))
		if enc == "br" || strings.HasPrefix(enc, "br;") {
			return true
		}
	}
	return false
}
