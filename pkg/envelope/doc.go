/*
Package envelope provides authenticated symmetric encryption of byte payloads, and wrapping of one symmetric key under another.

Every call to Encrypt generates a fresh random IV, so encrypting the same plaintext twice with the same Key yields two different Envelopes.
Decrypt verifies the AES-GCM authentication tag before returning anything, and reports every failure as ErrAuthentication.
A wrong key, a wrong IV, and a tampered ciphertext are indistinguishable to the caller on purpose.

Binary values that are stored as text (ciphertext, IVs, wrapped keys) use URL-safe base64 through EncodeString and DecodeString.
*/
package envelope
