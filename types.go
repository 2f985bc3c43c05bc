package sealbackup

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/absfs/sealbackup/internal/clock"
	"github.com/absfs/sealbackup/internal/codec"
)

const (
	// KeySize is the size of every symmetric key in bytes
	KeySize = 32

	// SaltSize is the size of a freshly generated salt in bytes
	SaltSize = 32

	// IVSize is the AES-256-GCM nonce size used for envelopes
	IVSize = 16

	// TagSize is the size of the authentication tag in bytes
	TagSize = 16

	// EnvelopeVersion is the current envelope and backup record version
	EnvelopeVersion = 1

	// MinPBKDF2Iterations is the lowest PBKDF2 iteration count accepted
	MinPBKDF2Iterations = 100000

	// DefaultMaxBackups is the retention limit applied by DefaultConfig
	DefaultMaxBackups = 10
)

// CipherSuite represents the encryption algorithm to use
type CipherSuite uint8

const (
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode and a 16-byte IV
	CipherAES256GCM CipherSuite = iota
	// CipherXChaCha20Poly1305 uses XChaCha20 with a Poly1305 MAC and a 24-byte nonce
	CipherXChaCha20Poly1305
)

// String returns the identifier stored in envelopes
func (c CipherSuite) String() string {
	switch c {
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseCipherSuite maps an envelope algorithm identifier back to a CipherSuite
func ParseCipherSuite(s string) (CipherSuite, error) {
	switch strings.ToLower(s) {
	case "aes-256-gcm":
		return CipherAES256GCM, nil
	case "xchacha20-poly1305":
		return CipherXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, s)
	}
}

// KDF selects the password-based key derivation function
type KDF uint8

const (
	// KDFPBKDF2SHA256 is PBKDF2 with HMAC-SHA256
	KDFPBKDF2SHA256 KDF = iota
	// KDFArgon2id is the memory-hard Argon2id function
	KDFArgon2id
)

// String returns the identifier stored in backup records
func (k KDF) String() string {
	switch k {
	case KDFPBKDF2SHA256:
		return "pbkdf2-sha256"
	case KDFArgon2id:
		return "argon2id"
	default:
		return "unknown"
	}
}

// ParseKDF maps a record identifier back to a KDF. An empty string means
// PBKDF2, which is what records without a kdf field were written with.
func ParseKDF(s string) (KDF, error) {
	switch strings.ToLower(s) {
	case "", "pbkdf2-sha256":
		return KDFPBKDF2SHA256, nil
	case "argon2id":
		return KDFArgon2id, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKDF, s)
	}
}

// PBKDF2Params contains parameters for PBKDF2 key derivation
type PBKDF2Params struct {
	Iterations int // Number of iterations (minimum 100,000)
	SaltSize   int // Salt size in bytes (default 32)
	KeySize    int // Derived key size in bytes (default 32 for AES-256)
}

// Argon2idParams contains parameters for Argon2id key derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB (e.g., 64*1024 for 64MB)
	Iterations  uint32 // Number of iterations (time parameter)
	Parallelism uint8  // Degree of parallelism
	SaltSize    int    // Salt size in bytes (default 32)
	KeySize     int    // Derived key size in bytes (default 32 for AES-256)
}

// KeyLoadPolicy decides what happens when an existing system key file cannot be used
type KeyLoadPolicy uint8

const (
	// KeyLoadLenient logs a warning and regenerates the key. Values encrypted
	// with the previous key become unreadable.
	KeyLoadLenient KeyLoadPolicy = iota
	// KeyLoadStrict returns a KeyStoreError and leaves the file untouched
	KeyLoadStrict
)

func (p KeyLoadPolicy) String() string {
	switch p {
	case KeyLoadLenient:
		return "lenient"
	case KeyLoadStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParallelConfig bounds the worker pool used by VerifyAll
type ParallelConfig struct {
	// MaxWorkers is the maximum number of worker goroutines.
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int
}

// Config contains configuration for a BackupStore
type Config struct {
	// BackupDir is the directory backups are written to
	BackupDir string

	// MaxBackups is the retention limit; 0 keeps every backup
	MaxBackups int

	// Compress gzips the payload before encryption
	Compress bool

	// Cipher suite used for new backups
	Cipher CipherSuite

	// KDF used for new backups
	KDF KDF

	// PBKDF2 parameters, used when KDF is KDFPBKDF2SHA256
	PBKDF2 PBKDF2Params

	// Argon2id parameters, used when KDF is KDFArgon2id
	Argon2id Argon2idParams

	// Codec names the payload serializer: "json" (default) or "msgpack"
	Codec string

	// Extension of backup files, without the dot (default "json")
	Extension string

	// Parallel controls VerifyAll
	Parallel ParallelConfig

	// Clock supplies timestamps; defaults to the system clock
	Clock clock.Clock

	// Logger receives operational events; defaults to logrus.New()
	Logger *logrus.Logger
}

// DefaultConfig returns a Config with the documented defaults for dir
func DefaultConfig(dir string) *Config {
	c := &Config{BackupDir: dir, MaxBackups: DefaultMaxBackups}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.PBKDF2.Iterations == 0 {
		c.PBKDF2.Iterations = MinPBKDF2Iterations
	}
	if c.PBKDF2.SaltSize == 0 {
		c.PBKDF2.SaltSize = SaltSize
	}
	if c.PBKDF2.KeySize == 0 {
		c.PBKDF2.KeySize = KeySize
	}
	if c.Argon2id.Memory == 0 {
		c.Argon2id.Memory = 64 * 1024
	}
	if c.Argon2id.Iterations == 0 {
		c.Argon2id.Iterations = 3
	}
	if c.Argon2id.Parallelism == 0 {
		c.Argon2id.Parallelism = 4
	}
	if c.Argon2id.SaltSize == 0 {
		c.Argon2id.SaltSize = SaltSize
	}
	if c.Argon2id.KeySize == 0 {
		c.Argon2id.KeySize = KeySize
	}
	if c.Codec == "" {
		c.Codec = codec.Default.Name()
	}
	if c.Extension == "" {
		c.Extension = "json"
	}
	if c.Parallel.MaxWorkers == 0 {
		c.Parallel.MaxWorkers = runtime.NumCPU()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.BackupDir == "" {
		return NewValidationError("backup_dir", c.BackupDir, "backup directory cannot be empty")
	}
	if c.MaxBackups < 0 {
		return NewValidationError("max_backups", c.MaxBackups, "cannot be negative")
	}
	if c.Cipher != CipherAES256GCM && c.Cipher != CipherXChaCha20Poly1305 {
		return &ValidationError{Field: "cipher", Value: c.Cipher, Message: "unsupported cipher suite", Err: ErrUnsupportedCipher}
	}
	switch c.KDF {
	case KDFPBKDF2SHA256:
		if c.PBKDF2.Iterations < MinPBKDF2Iterations {
			return NewValidationError("pbkdf2.iterations", c.PBKDF2.Iterations,
				fmt.Sprintf("must be at least %d", MinPBKDF2Iterations))
		}
		if c.PBKDF2.Iterations > maxPBKDF2Iterations {
			return NewValidationError("pbkdf2.iterations", c.PBKDF2.Iterations,
				fmt.Sprintf("must be at most %d", maxPBKDF2Iterations))
		}
		if c.PBKDF2.KeySize != KeySize {
			return NewValidationError("pbkdf2.key_size", c.PBKDF2.KeySize, fmt.Sprintf("must be %d", KeySize))
		}
	case KDFArgon2id:
		if c.Argon2id.KeySize != KeySize {
			return NewValidationError("argon2id.key_size", c.Argon2id.KeySize, fmt.Sprintf("must be %d", KeySize))
		}
		// backups written with these parameters must pass the same bounds on restore
		if err := checkKDFParams(KDFArgon2id, kdfParams{
			Iterations:  c.Argon2id.Iterations,
			Memory:      c.Argon2id.Memory,
			Parallelism: c.Argon2id.Parallelism,
		}); err != nil {
			return &ValidationError{Field: "argon2id", Value: c.Argon2id, Message: err.(*ValidationError).Message}
		}
	default:
		return &ValidationError{Field: "kdf", Value: c.KDF, Message: "unsupported key derivation function", Err: ErrUnsupportedKDF}
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return &ValidationError{Field: "codec", Value: c.Codec, Message: err.Error(), Err: err}
	}
	if strings.ContainsAny(c.Extension, `./\`) {
		return NewValidationError("extension", c.Extension, "must be a bare extension without dots or separators")
	}
	if c.Parallel.MaxWorkers < 0 || c.Parallel.MaxWorkers > 1024 {
		return NewValidationError("parallel.max_workers", c.Parallel.MaxWorkers, "must be between 0 and 1024")
	}
	return nil
}
