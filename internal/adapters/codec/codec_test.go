package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		`{"year":2026,"monthSchedules":{}}`,
		"unicode: ✓ täsk",
	}

	for _, name := range []string{"identity", "base64"} {
		c, err := FromName(name)
		require.NoError(t, err)

		for _, in := range inputs {
			encoded, err := c.Encode(in)
			require.NoError(t, err)
			decoded, err := c.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, in, decoded, "codec %s must round-trip %q", name, in)
		}
	}
}

func TestBase64CodecDecodesRawValues(t *testing.T) {
	// Values written before the codec was enabled carry no marker and must
	// pass through unchanged.
	c := NewBase64()
	decoded, err := c.Decode(`{"date":"2026-01-01"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"date":"2026-01-01"}`, decoded)
}

func TestFromNameUnknown(t *testing.T) {
	_, err := FromName("zstd")
	assert.Error(t, err)

	c, err := FromName("")
	require.NoError(t, err)
	assert.Equal(t, "identity", c.Name())
}
