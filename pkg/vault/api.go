package vault

import (
	"github.com/saylorsolutions/drivelock/pkg/itemcodec"
	"github.com/saylorsolutions/drivelock/pkg/metadata"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
)

// The functions below work directly on store metadata with a caller-held master key.
// Unlike the Vault methods, they don't derive the key again when a record's salt differs from the key's salt.

// DeriveMasterKey derives a master key with PBKDF2 from the password and salt.
func DeriveMasterKey(password string, salt []byte, iterations, keyLengthBits int) (passlock.MasterKey, error) {
	return passlock.DeriveMasterKey(passlock.Passphrase(password), salt, iterations, keyLengthBits)
}

// CreateValidationRecord creates a new salt, master key, and packed validation record for password.
func CreateValidationRecord(gen *passlock.KeyGenerator, password string) (passlock.MasterKey, map[string]string, error) {
	mk, rec, err := CreateValidation(gen, passlock.Passphrase(password))
	if err != nil {
		return passlock.MasterKey{}, nil, err
	}
	return mk, metadata.Pack(rec), nil
}

// TryUnlockRecord validates password against a packed validation record.
func TryUnlockRecord(gen *passlock.KeyGenerator, password string, meta map[string]string) (passlock.MasterKey, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return passlock.MasterKey{}, err
	}
	return TryUnlock(gen, passlock.Passphrase(password), rec)
}

// EncryptName encrypts name under a new item key and returns the packed record, including metadata.AssetName.
func EncryptName(name string, mk passlock.MasterKey) (map[string]string, error) {
	rec, err := itemcodec.EncryptName(name, mk)
	if err != nil {
		return nil, err
	}
	return metadata.Pack(rec), nil
}

// DecryptName decrypts the name held in meta, falling back to title when meta has no metadata.AssetName.
// Metadata without metadata.AssetNameIV is a plaintext item, and title is returned unchanged.
func DecryptName(title string, meta map[string]string, mk passlock.MasterKey) (string, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return "", err
	}
	return itemcodec.DecryptNameOrTitle(title, rec, mk)
}

// EncryptContent encrypts content under the item key wrapped in meta.
// The returned metadata is meta with the new content IV applied.
func EncryptContent(content []byte, meta map[string]string, mk passlock.MasterKey) ([]byte, map[string]string, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, updated, err := itemcodec.EncryptContent(content, rec, mk)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, metadata.Merge(meta, metadata.Pack(updated)), nil
}

// DecryptContent decrypts content written by EncryptContent.
func DecryptContent(ciphertext []byte, meta map[string]string, mk passlock.MasterKey) ([]byte, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return nil, err
	}
	return itemcodec.DecryptContent(ciphertext, rec, mk)
}
