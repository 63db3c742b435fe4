package drive

import (
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"github.com/saylorsolutions/drivelock/pkg/vault"
)

// Policy transforms item names and content before they reach the Store.
// *vault.Vault is the implementation used for encrypted drives.
type Policy interface {
	LoadValidation(meta map[string]string) error
	ValidationMetadata() map[string]string
	NeedNewPassword() bool
	IsUnlocked() bool
	SetPassword(pass passlock.Passphrase) (map[string]string, error)
	Lock()
	ClearValidationRecord()

	EncryptName(name string) (map[string]string, error)
	DecryptName(title string, meta map[string]string) (string, error)
	EncryptContent(content []byte, meta map[string]string) ([]byte, map[string]string, error)
	DecryptContent(ciphertext []byte, meta map[string]string) ([]byte, error)
}

var _ Policy = (*vault.Vault)(nil)
