package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize is the length in bytes of keys generated by GenerateKey.
	KeySize = 256 / 8
	// IVSize is the length in bytes of the IV generated for each Envelope.
	// This is the AES block size rather than the 12 byte GCM standard nonce, to stay readable by existing data.
	IVSize = aes.BlockSize
)

var (
	ErrAuthentication = errors.New("password incorrect or data corrupted")
	ErrInvalidKey     = errors.New("invalid key")
)

// Key is a symmetric AES key.
type Key []byte

// Envelope is the result of a single encryption operation.
type Envelope struct {
	CipherText []byte
	IV         []byte
}

// GenerateKey creates a new random Key with KeySize bytes.
func GenerateKey() (Key, error) {
	key := make(Key, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to read random key: %w", err)
	}
	return key, nil
}

func newGCM(key Key, ivSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// Encrypt will encrypt and authenticate the plaintext with the given Key, using a new random IV.
func Encrypt(plaintext []byte, key Key) (Envelope, error) {
	gcm, err := newGCM(key, IVSize)
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("failed to read random IV: %w", err)
	}

	return Envelope{
		CipherText: gcm.Seal(nil, iv, plaintext, nil),
		IV:         iv,
	}, nil
}

// Decrypt will authenticate and decrypt the Envelope with the given Key.
// Any failure to authenticate is reported as ErrAuthentication, and no plaintext is returned.
func Decrypt(env Envelope, key Key) ([]byte, error) {
	if len(env.IV) == 0 {
		return nil, fmt.Errorf("%w: missing IV", ErrAuthentication)
	}
	gcm, err := newGCM(key, len(env.IV))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(env.CipherText) < gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthentication)
	}
	plaintext, err := gcm.Open(nil, env.IV, env.CipherText, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// WrapKey encrypts the raw bytes of key under wrappingKey.
func WrapKey(key Key, wrappingKey Key) (Envelope, error) {
	if len(key) == 0 {
		return Envelope{}, fmt.Errorf("%w: cannot wrap an empty key", ErrInvalidKey)
	}
	return Encrypt(key, wrappingKey)
}

// UnwrapKey recovers a Key wrapped with WrapKey.
// ErrAuthentication is returned unchanged if the wrappingKey is wrong or the Envelope was modified.
func UnwrapKey(env Envelope, wrappingKey Key) (Key, error) {
	raw, err := Decrypt(env, wrappingKey)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	default:
		clear(raw)
		return nil, fmt.Errorf("%w: unwrapped key has invalid length", ErrAuthentication)
	}
}
