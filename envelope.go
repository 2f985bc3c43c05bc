package sealbackup

import (
	"fmt"
	"time"
)

// Envelope is the canonical encrypted unit: ciphertext plus everything
// needed to decrypt it later except the key
type Envelope struct {
	Ciphertext []byte      // Encrypted payload, without the tag
	IV         []byte      // Fresh random IV for this envelope
	Salt       []byte      // KDF salt; nil when a stored key was used
	AuthTag    []byte      // AEAD authentication tag
	Algorithm  CipherSuite // Cipher suite used
	Version    int         // Envelope format version
	Compressed bool        // Plaintext was gzipped before encryption
	Timestamp  time.Time   // Creation time
}

// Encrypt seals plaintext under key with a freshly generated IV. The
// returned envelope has no salt and Compressed unset; callers that derive
// the key or compress the payload fill those in.
func Encrypt(suite CipherSuite, key, plaintext []byte) (*Envelope, error) {
	engine, err := NewCipherEngine(suite, key)
	if err != nil {
		return nil, err
	}

	iv, err := GenerateNonce(suite)
	if err != nil {
		return nil, NewEncryptionError("encrypt", "", err)
	}

	sealed, err := engine.Encrypt(iv, plaintext)
	if err != nil {
		return nil, NewEncryptionError("encrypt", "", err)
	}

	split := len(sealed) - engine.Overhead()
	return &Envelope{
		Ciphertext: sealed[:split:split],
		IV:         iv,
		AuthTag:    sealed[split:],
		Algorithm:  suite,
		Version:    EnvelopeVersion,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Decrypt authenticates and opens an envelope. Structural problems are
// reported as ValidationError before any cipher work is done; a tag
// mismatch is an EncryptionError wrapping ErrAuthFailed. No plaintext is
// returned unless authentication succeeds.
func Decrypt(env *Envelope, key []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	engine, err := NewCipherEngine(env.Algorithm, key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := engine.Decrypt(env.IV, sealed)
	if err != nil {
		return nil, NewEncryptionError("decrypt", "", err)
	}
	return plaintext, nil
}

// Validate checks version, algorithm and field sizes
func (env *Envelope) Validate() error {
	if env == nil {
		return &ValidationError{Field: "envelope", Message: "envelope cannot be nil", Err: ErrInvalidEnvelope}
	}
	if env.Version != EnvelopeVersion {
		return &ValidationError{
			Field:   "version",
			Value:   env.Version,
			Message: fmt.Sprintf("unsupported version %d", env.Version),
			Err:     ErrUnsupportedVersion,
		}
	}
	if err := ValidateNonce(env.IV, env.Algorithm); err != nil {
		return err
	}
	if len(env.AuthTag) != TagSize {
		return &ValidationError{
			Field:   "authTag",
			Value:   len(env.AuthTag),
			Message: fmt.Sprintf("invalid tag size: got %d bytes, expected %d bytes", len(env.AuthTag), TagSize),
			Err:     ErrInvalidEnvelope,
		}
	}
	return nil
}
