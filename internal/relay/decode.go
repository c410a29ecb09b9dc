package relay

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// errBodyTooLarge is returned when a backend body, raw or decoded, exceeds the read limit.
var errBodyTooLarge = errors.New("body exceeds read limit")

// readLimited reads r up to limit bytes and fails instead of truncating.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody undoes the backend's Content-Encoding.
// Unknown encodings are passed through untouched.
func decodeBody(body []byte, contentEncoding string, limit int64) ([]byte, error) {
	if len(body) == 0 || contentEncoding == "" {
		return body, nil
	}

	// "gzip, br" means br was applied last; only single encodings are seen in practice
	encoding := strings.ToLower(strings.TrimSpace(strings.Split(contentEncoding, ",")[0]))

	var reader io.Reader
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		// HTTP deflate is zlib-wrapped; some servers send raw DEFLATE anyway
		zr, err := zlib.NewReader(bytes.NewReader(body))
		switch {
		case err == nil:
			defer zr.Close()
			reader = zr
		case errors.Is(err, zlib.ErrHeader):
			fl := flate.NewReader(bytes.NewReader(body))
			defer fl.Close()
			reader = fl
		default:
			return nil, fmt.Errorf("deflate: %w", err)
		}
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return body, nil
	}

	decoded, err := readLimited(reader, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	return decoded, nil
}
