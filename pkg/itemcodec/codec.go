// Package itemcodec encrypts and decrypts item names and content under per-item keys wrapped by a passlock.MasterKey.
//
// Each encrypted name gets a new random item key, and the item's content is encrypted under that same key.
// Records without the wrapped key fields are legacy plaintext items, and pass through unchanged.
package itemcodec

import (
	"bytes"
	"fmt"

	"github.com/saylorsolutions/drivelock/pkg/envelope"
	"github.com/saylorsolutions/drivelock/pkg/metadata"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
)

// IsLegacyName reports whether the record has no encrypted name.
func IsLegacyName(rec metadata.Record) bool {
	return !rec.Has(metadata.AssetNameIV)
}

// IsLegacyContent reports whether content written with this record is stored in plaintext.
func IsLegacyContent(rec metadata.Record) bool {
	return !rec.Has(metadata.EncryptionKey) || !rec.Has(metadata.EncryptionKeyIV)
}

// NeedsRederive reports whether the record was written under a different salt than mk was derived with.
// The master key must be derived again from the record's salt before the record can be used.
func NeedsRederive(rec metadata.Record, mk passlock.MasterKey) bool {
	salt := rec.Get(metadata.Salt)
	return len(salt) > 0 && !bytes.Equal(salt, mk.Salt)
}

func unwrapItemKey(rec metadata.Record, mk passlock.MasterKey) (envelope.Key, error) {
	if IsLegacyContent(rec) {
		return nil, fmt.Errorf("%w: record has no wrapped item key", envelope.ErrAuthentication)
	}
	return envelope.UnwrapKey(rec.Envelope(metadata.EncryptionKey, metadata.EncryptionKeyIV), envelope.Key(mk.Key))
}

// sealNew encrypts plaintext under a new item key, wraps the key with mk, and stores the results under the given properties.
func sealNew(plaintext []byte, text, iv metadata.Property, mk passlock.MasterKey) (metadata.Record, error) {
	var rec metadata.Record
	if mk.IsZero() {
		return rec, fmt.Errorf("%w: missing master key", envelope.ErrInvalidKey)
	}
	itemKey, err := envelope.GenerateKey()
	if err != nil {
		return rec, err
	}
	defer passlock.Wipe(itemKey)

	sealed, err := envelope.Encrypt(plaintext, itemKey)
	if err != nil {
		return rec, err
	}
	wrapped, err := envelope.WrapKey(itemKey, envelope.Key(mk.Key))
	if err != nil {
		return rec, err
	}
	rec.SetEnvelope(text, iv, sealed)
	rec.SetEnvelope(metadata.EncryptionKey, metadata.EncryptionKeyIV, wrapped)
	rec.Set(metadata.Salt, bytes.Clone(mk.Salt))
	return rec, nil
}

func open(rec metadata.Record, text, iv metadata.Property, mk passlock.MasterKey) ([]byte, error) {
	itemKey, err := unwrapItemKey(rec, mk)
	if err != nil {
		return nil, err
	}
	defer passlock.Wipe(itemKey)
	return envelope.Decrypt(rec.Envelope(text, iv), itemKey)
}

// EncryptName encrypts name under a new item key.
// The returned record holds the encrypted name, name IV, wrapped item key, wrap IV, and the salt of mk.
func EncryptName(name string, mk passlock.MasterKey) (metadata.Record, error) {
	return sealNew([]byte(name), metadata.AssetName, metadata.AssetNameIV, mk)
}

// DecryptName recovers the name from a record created by EncryptName.
// The caller must make sure that mk was derived with the record's salt, see NeedsRederive.
func DecryptName(rec metadata.Record, mk passlock.MasterKey) (string, error) {
	name, err := open(rec, metadata.AssetName, metadata.AssetNameIV, mk)
	if err != nil {
		return "", err
	}
	return string(name), nil
}

// DecryptNameOrTitle decrypts an item's title when the record marks it as encrypted, and returns title unchanged for legacy items.
// Remote stores keep the encrypted name in the item title, so it's placed into the record before decrypting.
func DecryptNameOrTitle(title string, rec metadata.Record, mk passlock.MasterKey) (string, error) {
	if IsLegacyName(rec) {
		return title, nil
	}
	if !rec.Has(metadata.AssetName) {
		encrypted, err := envelope.DecodeString(title)
		if err != nil {
			return "", fmt.Errorf("%w: title is not an encrypted name", envelope.ErrAuthentication)
		}
		rec = rec.Clone()
		rec.Set(metadata.AssetName, encrypted)
	}
	return DecryptName(rec, mk)
}

// EncryptContent encrypts content under the record's existing item key, using a new content IV.
// The returned record is a copy of rec with only the content IV changed.
// Legacy records return the content unchanged.
func EncryptContent(content []byte, rec metadata.Record, mk passlock.MasterKey) ([]byte, metadata.Record, error) {
	if IsLegacyContent(rec) {
		return content, rec, nil
	}
	itemKey, err := unwrapItemKey(rec, mk)
	if err != nil {
		return nil, rec, err
	}
	defer passlock.Wipe(itemKey)

	sealed, err := envelope.Encrypt(content, itemKey)
	if err != nil {
		return nil, rec, err
	}
	updated := rec.Clone()
	updated.Set(metadata.CipherTextIV, sealed.IV)
	return sealed.CipherText, updated, nil
}

// DecryptContent reverses EncryptContent.
// Content without a content IV is returned unchanged.
// Content with an IV always has to authenticate, so an emptied body fails with envelope.ErrAuthentication.
func DecryptContent(ciphertext []byte, rec metadata.Record, mk passlock.MasterKey) ([]byte, error) {
	if !rec.Has(metadata.CipherTextIV) {
		return ciphertext, nil
	}
	itemKey, err := unwrapItemKey(rec, mk)
	if err != nil {
		return nil, err
	}
	defer passlock.Wipe(itemKey)
	return envelope.Decrypt(envelope.Envelope{
		CipherText: ciphertext,
		IV:         rec.Get(metadata.CipherTextIV),
	}, itemKey)
}

// EncryptValidation encrypts a canary value the same way as a name, but stores it in the validation fields.
func EncryptValidation(canary string, mk passlock.MasterKey) (metadata.Record, error) {
	return sealNew([]byte(canary), metadata.ValidationText, metadata.ValidationTextIV, mk)
}

// HasValidation reports whether the record carries a validation canary.
func HasValidation(rec metadata.Record) bool {
	return rec.Has(metadata.ValidationText) && rec.Has(metadata.ValidationTextIV)
}

// DecryptValidation recovers the canary stored by EncryptValidation.
func DecryptValidation(rec metadata.Record, mk passlock.MasterKey) (string, error) {
	canary, err := open(rec, metadata.ValidationText, metadata.ValidationTextIV, mk)
	if err != nil {
		return "", err
	}
	return string(canary), nil
}
