package vault

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/saylorsolutions/drivelock/pkg/itemcodec"
	"github.com/saylorsolutions/drivelock/pkg/metadata"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
)

// State is the password state of a Vault.
type State int

const (
	StateNoValidationRecord State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateNoValidationRecord:
		return "no-validation-record"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Vault holds the password session for one storage root.
// All methods are safe for concurrent use, and key material operations are serialized.
//
// The password and master keys are kept in memguard buffers, which are destroyed whenever the Vault locks.
// New items are always written under the validation record's salt.
type Vault struct {
	mu         sync.Mutex
	gen        *passlock.KeyGenerator
	canary     string
	state      State
	validation metadata.Record
	pass       *memguard.LockedBuffer
	key        *memguard.LockedBuffer
	salt       passlock.Salt
	// Keys derived for items written under some other salt, keyed by that salt.
	foreign map[string]*memguard.LockedBuffer
}

type Option = func(*Vault) error

// WithCanary overrides the plaintext used in new validation records.
func WithCanary(canary string) Option {
	return func(v *Vault) error {
		if len(canary) == 0 {
			return errors.New("canary cannot be empty")
		}
		v.canary = canary
		return nil
	}
}

// New creates a Vault with no validation record.
// If gen is nil, a passlock.KeyGenerator with default settings is used.
func New(gen *passlock.KeyGenerator, opts ...Option) (*Vault, error) {
	if gen == nil {
		var err error
		gen, err = passlock.NewKeyGenerator()
		if err != nil {
			return nil, err
		}
	}
	v := &Vault{
		gen:    gen,
		canary: Canary,
		state:  StateNoValidationRecord,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// State returns the current state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// NeedNewPassword reports whether no validation record is known, so the next password creates one.
func (v *Vault) NeedNewPassword() bool {
	return v.State() == StateNoValidationRecord
}

// IsUnlocked reports whether a master key is available.
func (v *Vault) IsUnlocked() bool {
	return v.State() == StateUnlocked
}

func destroy(buf *memguard.LockedBuffer) {
	if buf != nil {
		buf.Destroy()
	}
}

// wipe must be called with mu held.
func (v *Vault) wipe() {
	destroy(v.pass)
	destroy(v.key)
	for salt, buf := range v.foreign {
		destroy(buf)
		delete(v.foreign, salt)
	}
	passlock.Wipe(v.salt)
	v.pass = nil
	v.key = nil
	v.salt = nil
}

// hold moves key material into locked buffers. The caller's copy of mk is wiped, and pass is copied.
// Must be called with mu held.
func (v *Vault) hold(pass passlock.Passphrase, mk passlock.MasterKey) {
	v.pass = memguard.NewBufferFromBytes(bytes.Clone(pass))
	v.key = memguard.NewBufferFromBytes(mk.Key)
	v.salt = bytes.Clone(mk.Salt)
	mk.Wipe()
}

// masterKey returns a view of the held key. The returned key shares locked memory, and must not be wiped or kept past mu.
func (v *Vault) masterKey() passlock.MasterKey {
	return passlock.MasterKey{Key: v.key.Bytes(), Salt: v.salt}
}

// LoadValidation reads a validation record from root container metadata.
// Metadata without validation fields resets the Vault to StateNoValidationRecord.
// Loading a different record than the one already unlocked locks the Vault.
func (v *Vault) LoadValidation(meta map[string]string) error {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !itemcodec.HasValidation(rec) {
		v.wipe()
		v.validation = metadata.Record{}
		v.state = StateNoValidationRecord
		return nil
	}
	if v.state == StateUnlocked && v.validation.Equal(rec) {
		return nil
	}
	v.wipe()
	v.validation = rec
	v.state = StateLocked
	return nil
}

// ValidationMetadata returns the packed validation record, or an empty map if there is none.
func (v *Vault) ValidationMetadata() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return metadata.Pack(v.validation)
}

// CreateValidation sets the first password for a root, and unlocks the Vault.
// The returned metadata must be persisted on the root container.
func (v *Vault) CreateValidation(pass passlock.Passphrase) (map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateNoValidationRecord {
		return nil, ErrAlreadyInitialized
	}
	mk, rec, err := createValidation(v.gen, pass, v.canary)
	if err != nil {
		return nil, err
	}
	v.hold(pass, mk)
	v.validation = rec
	v.state = StateUnlocked
	return metadata.Pack(rec), nil
}

// TryUnlock validates pass against the loaded record.
// On failure, the Vault is left locked with no key material held.
func (v *Vault) TryUnlock(pass passlock.Passphrase) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateNoValidationRecord {
		return ErrNoValidation
	}
	v.wipe()
	v.state = StateLocked
	mk, err := TryUnlock(v.gen, pass, v.validation)
	if err != nil {
		return err
	}
	v.hold(pass, mk)
	v.state = StateUnlocked
	return nil
}

// SetPassword creates a validation record if there is none, or validates pass against the existing one.
// The returned metadata is non-nil only when a new record was created, and must then be persisted.
func (v *Vault) SetPassword(pass passlock.Passphrase) (map[string]string, error) {
	if len(pass) == 0 {
		return nil, passlock.ErrEmptyPassPhrase
	}
	if v.NeedNewPassword() {
		meta, err := v.CreateValidation(pass)
		if !errors.Is(err, ErrAlreadyInitialized) {
			return meta, err
		}
	}
	return nil, v.TryUnlock(pass)
}

// Lock discards the password, salt, and master key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.wipe()
	if itemcodec.HasValidation(v.validation) {
		v.state = StateLocked
		return
	}
	v.state = StateNoValidationRecord
}

// ClearValidationRecord forgets the validation record and all key material.
// Existing items are not re-encrypted, and stay unreadable until a matching master key is established again.
func (v *Vault) ClearValidationRecord() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.wipe()
	v.validation = metadata.Record{}
	v.state = StateNoValidationRecord
}

// masterKeyFor returns the master key for the record's salt.
// A record written under another salt gets a key derived for that salt, which is cached apart from the main key.
// Must be called with mu held.
func (v *Vault) masterKeyFor(rec metadata.Record) (passlock.MasterKey, error) {
	if v.state != StateUnlocked {
		return passlock.MasterKey{}, ErrLocked
	}
	primary := v.masterKey()
	if !itemcodec.NeedsRederive(rec, primary) {
		return primary, nil
	}
	salt := rec.Get(metadata.Salt)
	buf, ok := v.foreign[string(salt)]
	if !ok {
		mk, err := v.gen.Derive(v.pass.Bytes(), salt)
		if err != nil {
			return passlock.MasterKey{}, err
		}
		buf = memguard.NewBufferFromBytes(mk.Key)
		mk.Wipe()
		if v.foreign == nil {
			v.foreign = map[string]*memguard.LockedBuffer{}
		}
		v.foreign[string(salt)] = buf
	}
	return passlock.MasterKey{Key: buf.Bytes(), Salt: salt}, nil
}

// EncryptName encrypts name under a new item key, returning the metadata to attach to the item.
// The encrypted name is included under metadata.AssetName.
func (v *Vault) EncryptName(name string) (map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return nil, ErrLocked
	}
	rec, err := itemcodec.EncryptName(name, v.masterKey())
	if err != nil {
		return nil, err
	}
	return metadata.Pack(rec), nil
}

// DecryptName returns the readable name of an item.
// If meta doesn't hold the encrypted name, it's read from title.
// Items without encryption metadata return title unchanged, even while locked.
func (v *Vault) DecryptName(title string, meta map[string]string) (string, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return "", err
	}
	if itemcodec.IsLegacyName(rec) {
		return title, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	mk, err := v.masterKeyFor(rec)
	if err != nil {
		return "", err
	}
	return itemcodec.DecryptNameOrTitle(title, rec, mk)
}

// EncryptContent encrypts content for an item with the given metadata.
// The returned metadata is meta with the new content IV applied.
// Items without a wrapped key are returned unchanged.
func (v *Vault) EncryptContent(content []byte, meta map[string]string) ([]byte, map[string]string, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return nil, nil, err
	}
	if itemcodec.IsLegacyContent(rec) {
		return content, metadata.Merge(meta), nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	mk, err := v.masterKeyFor(rec)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, updated, err := itemcodec.EncryptContent(content, rec, mk)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, metadata.Merge(meta, metadata.Pack(updated)), nil
}

// DecryptContent reverses EncryptContent.
func (v *Vault) DecryptContent(ciphertext []byte, meta map[string]string) ([]byte, error) {
	rec, err := metadata.Unpack(meta)
	if err != nil {
		return nil, err
	}
	if !rec.Has(metadata.CipherTextIV) {
		return ciphertext, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	mk, err := v.masterKeyFor(rec)
	if err != nil {
		return nil, err
	}
	return itemcodec.DecryptContent(ciphertext, rec, mk)
}
