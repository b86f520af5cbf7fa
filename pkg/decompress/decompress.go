// Package decompress maps Content-Encoding values to decompression
// functions. The ferry proxy relays upstream bodies byte-for-byte and only
// decompresses a copy for the audit trail, so failures here never affect the
// relay path.
package decompress

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// decoders maps Content-Encoding values to decompression functions.
// Anything not in the map, including the empty string, is identity.
var decoders = map[string]func([]byte) ([]byte, error){
	"br":      decodeBrotli,
	"gzip":    decodeGzip,
	"deflate": decodeZlib,
}

// Decode returns the decompressed form of body according to encoding.
// Unknown or absent encodings return body unchanged.
func Decode(encoding string, body []byte) ([]byte, error) {
	decode, ok := decoders[encoding]
	if !ok {
		return body, nil
	}
	return decode(body)
}

func decodeBrotli(body []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}
	return out, nil
}

func decodeGzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	return out, nil
}

// decodeZlib handles "deflate". HTTP's deflate is zlib-wrapped in practice,
// which is also what the upstream API sends.
func decodeZlib(body []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deflate decompress: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("deflate decompress: %w", err)
	}
	return out, nil
}
