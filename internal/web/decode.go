package web

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody wraps r with a decoder matching the Content-Encoding header.
// gzip, deflate and br are supported; unknown encodings pass through.
func decodeBody(contentEncoding string, r io.Reader) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil

	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decode failed: %w", err)
		}
		return reader, nil

	case "deflate":
		return flate.NewReader(r), nil

	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil

	default:
		slog.Warn("Unknown Content-Encoding, passing body through", "encoding", contentEncoding)
		return io.NopCloser(r), nil
	}
}
