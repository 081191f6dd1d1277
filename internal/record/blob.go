package record

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// EncodeStrings serializes an extension map as RFC 8785 canonical JSON.
// An empty map encodes as "".
func EncodeStrings(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	return canonical(m)
}

// DecodeStrings is the inverse of EncodeStrings.
func DecodeStrings(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// EncodeFloats serializes a numeric map as RFC 8785 canonical JSON.
// An empty map encodes as "".
func EncodeFloats(m map[string]float64) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	return canonical(m)
}

// DecodeFloats is the inverse of EncodeFloats.
func DecodeFloats(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func canonical(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode blob: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize blob: %w", err)
	}
	return string(out), nil
}
