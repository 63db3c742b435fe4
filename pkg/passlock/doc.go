/*
Package passlock derives symmetric master keys from a user-provided passphrase.

# How it works:

A random Salt is generated once for a storage root, and is stored alongside the data it protects since it isn't secret.
The passphrase and Salt are passed through a deliberately slow, salted key derivation function to arrive at a MasterKey.
Given the same passphrase, Salt, and KeyGenerator settings, KeyGenerator.Derive always produces the same MasterKey.
The MasterKey is never stored. It's only held in memory, and should be wiped with MasterKey.Wipe as soon as it's no longer needed.

By default, PBKDF2 with HMAC-SHA1, 10000 iterations, and a 256-bit output is used.
This matches the baseline of data written by earlier clients of the same storage layout, and the iteration count may be raised with SetIterations.
Scrypt is also supported with UseScrypt, which is memory and CPU hard.

# General guidelines:
  - Iteration counts below MinIterations are rejected for PBKDF2. Higher is better, as long as the delay is acceptable for your use-case.
  - If you're not an expert, then don't use SetCPUCost or SetRelativeBlockSize.
  - The KeyGenerator settings must be the same when deriving a key for existing data. Use KeyGenerator.MarshalBinary to persist them next to the data.
  - Derive doesn't ensure that the passphrase is the *correct* passphrase. That requires authenticating something encrypted with the resulting key.
*/
package passlock
