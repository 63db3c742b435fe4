/*
Package vault validates a password against a stored canary record, and holds the resulting master key for one session.

# How it works:

When a storage root has never had a password, CreateValidation generates a new salt, derives a master key, and encrypts a fixed canary string under a new item key.
The resulting validation record is attached to the root container's metadata.
The password itself is never stored in any form.

Later, TryUnlock derives a master key from the candidate password and the record's stored salt, and tries to decrypt the canary.
AES-GCM authentication either succeeds, proving the password, or fails with envelope.ErrAuthentication.
A wrong password and a corrupted record are deliberately reported the same way.

A Vault tracks this as a state machine: no validation record, locked, and unlocked.
While unlocked it holds the password, salt, and master key behind a single mutex, and uses them to encrypt and decrypt item names and content.
If an item was written under a different salt than the one cached, the master key is derived again from the item's salt before it's used.
Lock and ClearValidationRecord overwrite all held key material with zeros.
*/
package vault
