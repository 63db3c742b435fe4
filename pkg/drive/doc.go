/*
Package drive stores named files and folders in a remote object store, optionally encrypting names and content.

The remote store is anything that implements Store, and is treated as untrusted and attacker-readable.
A Drive composes a Store with an optional Policy that transforms names and content.
With a nil Policy, titles and bodies are stored as given.
With a Policy such as *vault.Vault, every title is the encrypted name, every body is encrypted content, and the encryption fields are attached as item metadata.
Items without encryption metadata are read as plaintext in either mode.

# App root:

Drive keeps everything under an app root folder below the store root, found or created by InitRoot.
The app root's title is never encrypted, and its metadata holds the password validation record.
NeedNewPassword, SetPassword, ClearPassword, and ClearValidation manage that record through the Policy.

# Writes:

Only one mutation of an item is in flight at a time.
Writers of the same item queue behind each other in arrival order, and give up waiting if their context is done.
Creating or renaming an item holds the parent folder's slot, so name conflict checks don't race.
Rename takes the parent's slot before the item's, and no operation takes them in the other order.
Names can't be empty or contain '/'.
*/
package drive
