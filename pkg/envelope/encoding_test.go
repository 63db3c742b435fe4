package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeString(t *testing.T) {
	data := []byte{0xfb, 0xff, 0xbf, 0x00, 0x01}
	encoded := EncodeString(data)
	assert.Equal(t, "-_-_AAE=", encoded)

	tests := map[string]string{
		"Padded":       encoded,
		"Unpadded":     "-_-_AAE",
		"Line wrapped": "-_-_\nAAE=\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeString(input)
			require.NoError(t, err)
			assert.Equal(t, data, decoded)
		})
	}
}

func TestDecodeString_Neg(t *testing.T) {
	_, err := DecodeString("+/+/AAE=")
	assert.Error(t, err, "Standard alphabet must be rejected")
	_, err = DecodeString("a")
	assert.Error(t, err)
}
