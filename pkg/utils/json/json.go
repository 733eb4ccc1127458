// Package json is the JSON codec for on-disk artifacts, caches and provider
// payloads. It is sonic configured to keep document text readable: no HTML
// escaping and valid UTF-8 enforced on both directions.
package json

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	EscapeHTML:       false,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// RawMessage defers decoding of a field.
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func NewEncoder(w io.Writer) sonic.Encoder { return api.NewEncoder(w) }

func NewDecoder(r io.Reader) sonic.Decoder { return api.NewDecoder(r) }

// Valid reports whether data is a single well-formed JSON value.
func Valid(data []byte) bool { return api.Valid(data) }
