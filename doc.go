// Package sealbackup encrypts configuration backups and individual path
// strings at rest with authenticated encryption, on top of the AbsFs
// filesystem abstraction.
//
// # Overview
//
// Three components share one envelope format and one error taxonomy:
//
//   - BackupStore writes password-encrypted backups of arbitrary payloads
//     into a directory, restores and verifies them, and prunes old backups
//     beyond a retention limit.
//   - KeyStore owns a random system key that is generated once, persisted
//     to a 0600 file and cached in memory.
//   - PathService encrypts single path strings under the system key (or an
//     explicit key) so they can be stored inside otherwise plain settings.
//
// # Supported Cipher Suites
//
//   - AES-256-GCM with a 16-byte IV (default)
//   - XChaCha20-Poly1305 with a 24-byte nonce
//
// Every encryption call draws a fresh random IV. The 16-byte authentication
// tag is checked before any plaintext is released; a mismatch is reported
// as an EncryptionError wrapping ErrAuthFailed.
//
// # Basic Usage
//
//	fsys, err := sealbackup.NewDirFS("/var/lib/myapp")
//	if err != nil {
//	    panic(err)
//	}
//
//	store, err := sealbackup.NewBackupStore(fsys, sealbackup.DefaultConfig("/backups"))
//	if err != nil {
//	    panic(err)
//	}
//
//	res, err := store.Create(map[string]any{"greeting": "hello"}, []byte("p@ss1234"), nil)
//	if err != nil {
//	    panic(err)
//	}
//
//	data, err := store.Restore(res.BackupName, []byte("p@ss1234"))
//
// # Key Derivation
//
// Backup keys are derived from the password and a fresh 32-byte salt:
//
// PBKDF2-HMAC-SHA256 (default):
//   - 100,000 iterations minimum
//   - 32-byte output
//
// Argon2id (opt-in through Config.KDF):
//   - Memory-hard, configurable memory, time and parallelism
//
// The function and its parameters are recorded in each backup, so changing
// the configured defaults never strands older backups.
//
// # Backup Format
//
// A backup is a JSON document:
//
//	{
//	  "header": "SEALBACKUP",
//	  "version": 1,
//	  "id": "<uuid>",
//	  "timestamp": "<RFC 3339>",
//	  "compressed": true,
//	  "encrypted": "<base64 ciphertext>",
//	  "iv": "<hex>", "salt": "<hex>", "authTag": "<hex>",
//	  "algorithm": "aes-256-gcm",
//	  "kdf": "pbkdf2-sha256", "kdfParams": {"iterations": 100000},
//	  "codec": "json"
//	}
//
// The header and version are checked before any cryptographic work. Files
// are named backup-<UTC timestamp>.<ext> with ':' and '.' replaced by '-'.
//
// # Errors
//
// Errors are typed (ValidationError, EncryptionError, KeyStoreError,
// IOError, CorruptionError) and Classify maps any of them to a FailureKind,
// which separates a wrong password from an unusable backup and from a
// storage problem.
package sealbackup
