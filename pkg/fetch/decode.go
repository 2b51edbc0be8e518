package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecodeBody decompresses a response body based on its Content-Encoding
func DecodeBody(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress error: %w", err)
		}
		defer reader.Close()
		return readAll(reader, "gzip")
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAll(reader, "deflate")
	case "br":
		return readAll(brotli.NewReader(bytes.NewReader(body)), "brotli")
	case "", "identity":
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", contentEncoding)
	}
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := readLimited(r)
	if err != nil {
		return nil, fmt.Errorf("%s reader error: %w", name, err)
	}
	return out, nil
}

// readLimited fails instead of truncating when r holds more than maxBodyBytes.
func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return out, nil
}
