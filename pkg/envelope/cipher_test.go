package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	const data = "How wonderful life is while you're in the world"
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	env, err := Encrypt([]byte(data), key)
	require.NoError(t, err)
	assert.Len(t, env.IV, IVSize)
	assert.NotContains(t, string(env.CipherText), data)

	plaintext, err := Decrypt(env, key)
	require.NoError(t, err)
	assert.Equal(t, data, string(plaintext))
}

func TestEncrypt_Empty(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	env, err := Encrypt(nil, key)
	require.NoError(t, err)
	plaintext, err := Decrypt(env, key)
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestEncrypt_UniqueIV(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	a, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.CipherText, b.CipherText)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	env, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)
	_, err = Decrypt(env, other)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecrypt_Tampered(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	env, err := Encrypt([]byte("budget.txt"), key)
	require.NoError(t, err)

	for i := 0; i < len(env.CipherText)*8; i++ {
		tampered := Envelope{CipherText: bytes.Clone(env.CipherText), IV: env.IV}
		tampered.CipherText[i/8] ^= 1 << (i % 8)
		_, err := Decrypt(tampered, key)
		assert.ErrorIs(t, err, ErrAuthentication, "ciphertext bit %d", i)
	}
	for i := 0; i < len(env.IV)*8; i++ {
		tampered := Envelope{CipherText: env.CipherText, IV: bytes.Clone(env.IV)}
		tampered.IV[i/8] ^= 1 << (i % 8)
		_, err := Decrypt(tampered, key)
		assert.ErrorIs(t, err, ErrAuthentication, "IV bit %d", i)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	env, err := Encrypt([]byte("data"), key)
	require.NoError(t, err)

	tests := map[string]struct {
		env Envelope
		key Key
	}{
		"Missing IV":       {env: Envelope{CipherText: env.CipherText}, key: key},
		"Truncated IV":     {env: Envelope{CipherText: env.CipherText, IV: env.IV[:12]}, key: key},
		"Short ciphertext": {env: Envelope{CipherText: env.CipherText[:4], IV: env.IV}, key: key},
		"Empty ciphertext": {env: Envelope{IV: env.IV}, key: key},
		"Invalid key size": {env: env, key: key[:5]},
		"Missing key":      {env: env, key: nil},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decrypt(tc.env, tc.key)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestWrapUnwrapKey(t *testing.T) {
	itemKey, err := GenerateKey()
	require.NoError(t, err)
	masterKey, err := GenerateKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(itemKey, masterKey)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(itemKey), wrapped.CipherText)

	unwrapped, err := UnwrapKey(wrapped, masterKey)
	require.NoError(t, err)
	assert.Equal(t, itemKey, unwrapped)

	wrongKey, err := GenerateKey()
	require.NoError(t, err)
	_, err = UnwrapKey(wrapped, wrongKey)
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = WrapKey(nil, masterKey)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestUnwrapKey_NotAKey(t *testing.T) {
	masterKey, err := GenerateKey()
	require.NoError(t, err)
	env, err := Encrypt([]byte("not a key"), masterKey)
	require.NoError(t, err)

	_, err = UnwrapKey(env, masterKey)
	assert.ErrorIs(t, err, ErrAuthentication)
}
