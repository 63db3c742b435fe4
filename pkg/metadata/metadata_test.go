package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_String(t *testing.T) {
	expected := []string{
		"encryption_key", "encryption_key_iv", "asset_name", "asset_name_iv",
		"cipher_text", "cipher_text_iv", "validation_text", "validation_text_iv", "salt",
	}
	props := Properties()
	require.Len(t, props, len(expected))
	for i, p := range props {
		assert.Equal(t, expected[i], p.String())
		parsed, err := ParseProperty(expected[i])
		assert.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	assert.Equal(t, "Property(42)", Property(42).String())
	_, err := ParseProperty("asset_names")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestPackUnpack(t *testing.T) {
	var rec Record
	rec.Set(EncryptionKey, []byte{1, 2, 3})
	rec.Set(EncryptionKeyIV, []byte{4, 5, 6})
	rec.Set(AssetName, []byte("name"))
	rec.Set(AssetNameIV, []byte{0xff, 0xfe})
	rec.Set(Salt, []byte{9})

	meta := Pack(rec)
	assert.Len(t, meta, 5)
	assert.NotContains(t, meta, CipherTextIV.String(), "Absent fields must not be packed")
	assert.Equal(t, "__4=", meta[AssetNameIV.String()])

	meta["color"] = "blue"
	unpacked, err := Unpack(meta)
	require.NoError(t, err)
	assert.True(t, rec.Equal(unpacked))
	assert.False(t, unpacked.Has(ValidationText))
}

func TestPack_Empty(t *testing.T) {
	var rec Record
	assert.True(t, rec.IsEmpty())
	assert.Empty(t, Pack(rec))
	rec.Set(Salt, []byte{})
	assert.False(t, rec.Has(Salt), "Empty values are absent")
}

func TestUnpack_Malformed(t *testing.T) {
	_, err := Unpack(map[string]string{AssetName.String(): "not*base64"})
	assert.ErrorIs(t, err, ErrMalformed)

	rec, err := Unpack(map[string]string{AssetName.String(): ""})
	assert.NoError(t, err)
	assert.False(t, rec.Has(AssetName))
}

func TestRecord_Clone(t *testing.T) {
	var rec Record
	rec.Set(Salt, []byte{1, 2})
	clone := rec.Clone()
	clone.Get(Salt)[0] = 7
	assert.Equal(t, []byte{1, 2}, rec.Get(Salt))
	clone.Delete(Salt)
	assert.True(t, rec.Has(Salt))
}

func TestExtraStripMerge(t *testing.T) {
	meta := map[string]string{
		Salt.String():           "AQ==",
		AssetNameIV.String():    "Ag==",
		"owner":                 "someone",
		ValidationText.String(): "Aw==",
	}
	assert.Equal(t, map[string]string{"owner": "someone"}, Extra(meta))
	assert.Equal(t, map[string]string{"owner": "someone"}, Strip(meta))

	stripped := Strip(meta, ValidationText)
	assert.NotContains(t, stripped, ValidationText.String())
	assert.Contains(t, stripped, Salt.String())
	assert.Contains(t, meta, ValidationText.String(), "Strip must not modify its input")

	merged := Merge(meta, map[string]string{"owner": "other", "extra": "1"}, nil)
	assert.Equal(t, "other", merged["owner"])
	assert.Equal(t, "1", merged["extra"])
	assert.Equal(t, "AQ==", merged[Salt.String()])
	assert.Empty(t, Strip(nil, Salt))
}
