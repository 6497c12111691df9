// Package json provides a high-performance JSON serialization wrapper.
// It automatically uses sonic for supported architectures (amd64/arm64) and
// falls back to standard encoding/json for other platforms.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v into JSON bytes.
	// Uses sonic on amd64/arm64, otherwise falls back to encoding/json.
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	// Uses sonic on amd64/arm64, otherwise falls back to encoding/json.
	Unmarshal func(data []byte, v interface{}) error

	// NewDecoder creates a new JSON decoder for the reader.
	NewDecoder func(r io.Reader) Decoder
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

// Decoder is a JSON decoder interface.
type Decoder interface {
	Decode(v interface{}) error
}

func init() {
	// Sonic only supports amd64 and arm64 architectures
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		// Use sonic's default configuration (balances performance and compatibility)
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		NewDecoder = func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		}
	} else {
		// Fallback to standard library for unsupported architectures
		Marshal = stdjson.Marshal
		Unmarshal = stdjson.Unmarshal
		NewDecoder = func(r io.Reader) Decoder {
			return stdjson.NewDecoder(r)
		}
	}
}
