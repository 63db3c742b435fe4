package vault

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/drivelock/pkg/itemcodec"
	"github.com/saylorsolutions/drivelock/pkg/metadata"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
)

// Canary is the plaintext encrypted in new validation records.
const Canary = "random validation string"

var (
	ErrNoValidation       = errors.New("no password validation record")
	ErrLocked             = errors.New("vault is locked")
	ErrAlreadyInitialized = errors.New("password validation record already exists")
)

// CreateValidation generates a new salt, derives a master key from pass, and encrypts Canary under it.
// The caller persists the returned record on the root container, and owns the returned key.
func CreateValidation(gen *passlock.KeyGenerator, pass passlock.Passphrase) (passlock.MasterKey, metadata.Record, error) {
	return createValidation(gen, pass, Canary)
}

func createValidation(gen *passlock.KeyGenerator, pass passlock.Passphrase, canary string) (passlock.MasterKey, metadata.Record, error) {
	mk, err := gen.GenerateKey(pass)
	if err != nil {
		return passlock.MasterKey{}, metadata.Record{}, err
	}
	rec, err := itemcodec.EncryptValidation(canary, mk)
	if err != nil {
		mk.Wipe()
		return passlock.MasterKey{}, metadata.Record{}, err
	}
	return mk, rec, nil
}

// TryUnlock derives a master key from pass and the record's salt, and proves it by decrypting the canary.
// A successful authentication of the canary is the only check performed, its plaintext isn't compared.
// On failure, the derived key is wiped before the error is returned.
func TryUnlock(gen *passlock.KeyGenerator, pass passlock.Passphrase, rec metadata.Record) (passlock.MasterKey, error) {
	if !itemcodec.HasValidation(rec) {
		return passlock.MasterKey{}, ErrNoValidation
	}
	salt := rec.Get(metadata.Salt)
	if len(salt) == 0 {
		return passlock.MasterKey{}, fmt.Errorf("%w: record has no salt", ErrNoValidation)
	}
	mk, err := gen.Derive(pass, salt)
	if err != nil {
		return passlock.MasterKey{}, err
	}
	if _, err := itemcodec.DecryptValidation(rec, mk); err != nil {
		mk.Wipe()
		return passlock.MasterKey{}, err
	}
	return mk, nil
}
