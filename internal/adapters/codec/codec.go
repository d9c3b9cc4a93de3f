package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/taskmaster/planner/internal/ports"
)

// identity passes values through untouched.
type identity struct{}

func (identity) Encode(s string) (string, error) { return s, nil }
func (identity) Decode(s string) (string, error) { return s, nil }
func (identity) Name() string                    { return "identity" }

// NewIdentity returns the no-op codec.
func NewIdentity() ports.Codec {
	return identity{}
}

const base64Marker = "b64:"

// base64Codec tags values with a marker and base64-encodes the payload. It
// stands in for a real compression algorithm; the storage layer only relies
// on the round-trip law, so any invertible transform can replace it.
type base64Codec struct{}

func (base64Codec) Encode(s string) (string, error) {
	return base64Marker + base64.StdEncoding.EncodeToString([]byte(s)), nil
}

func (base64Codec) Decode(s string) (string, error) {
	payload, ok := strings.CutPrefix(s, base64Marker)
	if !ok {
		// Values written before the codec was enabled are stored raw.
		return s, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode base64 value: %w", err)
	}
	return string(decoded), nil
}

func (base64Codec) Name() string { return "base64" }

// NewBase64 returns the marker+base64 codec.
func NewBase64() ports.Codec {
	return base64Codec{}
}

// FromName resolves a codec by its configured name.
func FromName(name string) (ports.Codec, error) {
	switch name {
	case "", "identity":
		return NewIdentity(), nil
	case "base64":
		return NewBase64(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
