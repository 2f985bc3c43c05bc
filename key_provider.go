package sealbackup

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KeyProvider is an interface for providing encryption keys
type KeyProvider interface {
	// DeriveKey derives an encryption key from the given salt
	DeriveKey(salt []byte) ([]byte, error)

	// GenerateSalt generates a new random salt
	GenerateSalt() ([]byte, error)
}

// DeriveKey derives a 32-byte key from password and salt with
// PBKDF2-HMAC-SHA256 at MinPBKDF2Iterations. The same inputs always yield
// the same key.
func DeriveKey(password, salt []byte) ([]byte, error) {
	return NewPasswordKeyProviderPBKDF2(password, PBKDF2Params{}).DeriveKey(salt)
}

// GenerateSalt returns SaltSize cryptographically random bytes
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// PasswordKeyProvider implements KeyProvider using password-based key derivation
type PasswordKeyProvider struct {
	password     []byte
	kdf          KDF
	pbkdf2Params PBKDF2Params
	argon2Params Argon2idParams
}

// NewPasswordKeyProviderPBKDF2 creates a new password-based key provider using PBKDF2
func NewPasswordKeyProviderPBKDF2(password []byte, params PBKDF2Params) *PasswordKeyProvider {
	if params.Iterations == 0 {
		params.Iterations = MinPBKDF2Iterations
	}
	if params.SaltSize == 0 {
		params.SaltSize = SaltSize
	}
	if params.KeySize == 0 {
		params.KeySize = KeySize
	}

	return &PasswordKeyProvider{
		password:     password,
		kdf:          KDFPBKDF2SHA256,
		pbkdf2Params: params,
	}
}

// NewPasswordKeyProvider creates a new password-based key provider using Argon2id
func NewPasswordKeyProvider(password []byte, params Argon2idParams) *PasswordKeyProvider {
	if params.Memory == 0 {
		params.Memory = 64 * 1024 // 64 MB
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 4
	}
	if params.SaltSize == 0 {
		params.SaltSize = SaltSize
	}
	if params.KeySize == 0 {
		params.KeySize = KeySize
	}

	return &PasswordKeyProvider{
		password:     password,
		kdf:          KDFArgon2id,
		argon2Params: params,
	}
}

// newKeyProvider builds the provider described by a KDF and its parameters
func newKeyProvider(password []byte, kdf KDF, p PBKDF2Params, a Argon2idParams) (KeyProvider, error) {
	switch kdf {
	case KDFPBKDF2SHA256:
		return NewPasswordKeyProviderPBKDF2(password, p), nil
	case KDFArgon2id:
		return NewPasswordKeyProvider(password, a), nil
	default:
		return nil, ErrUnsupportedKDF
	}
}

// DeriveKey derives an encryption key from the password and salt
func (p *PasswordKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	if err := ValidatePassword(p.password); err != nil {
		return nil, err
	}
	if err := ValidateSalt(salt); err != nil {
		return nil, err
	}

	if p.kdf == KDFArgon2id {
		key := argon2.IDKey(
			p.password,
			salt,
			p.argon2Params.Iterations,
			p.argon2Params.Memory,
			p.argon2Params.Parallelism,
			uint32(p.argon2Params.KeySize),
		)
		return key, nil
	}

	if p.pbkdf2Params.Iterations < MinPBKDF2Iterations {
		return nil, NewValidationError("iterations", p.pbkdf2Params.Iterations,
			fmt.Sprintf("must be at least %d", MinPBKDF2Iterations))
	}

	key := pbkdf2.Key(
		p.password,
		salt,
		p.pbkdf2Params.Iterations,
		p.pbkdf2Params.KeySize,
		sha256.New,
	)
	return key, nil
}

// GenerateSalt generates a new random salt
func (p *PasswordKeyProvider) GenerateSalt() ([]byte, error) {
	saltSize := p.pbkdf2Params.SaltSize
	if p.kdf == KDFArgon2id {
		saltSize = p.argon2Params.SaltSize
	}
	return randomBytes(saltSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
