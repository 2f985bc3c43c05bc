package sealbackup

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error types represent different categories of errors

// ValidationError represents a missing input, a malformed envelope, an
// unsupported version or a foreign backup header
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EncryptionError represents an encryption or decryption failure, including
// an authentication tag mismatch
type EncryptionError struct {
	Operation string // "encrypt" or "decrypt"
	Path      string // File path, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// KeyStoreError represents a system key file that could not be loaded or
// written
type KeyStoreError struct {
	Path    string // Key store file path
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *KeyStoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("key store error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("key store error: %s", e.Message)
}

func (e *KeyStoreError) Unwrap() error {
	return e.Err
}

// IOError represents a file system error. The underlying error is kept so
// errors.Is(err, fs.ErrNotExist) and friends keep working.
type IOError struct {
	Operation string // "read", "write", "open", "remove", etc.
	Path      string // File path
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CorruptionError represents authenticated data that still cannot be
// decoded, such as a broken compressed stream
type CorruptionError struct {
	Path    string // File path
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrAuthFailed         = errors.New("authentication failed - wrong key or data tampered")
	ErrInvalidHeader      = errors.New("invalid backup header")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	ErrUnsupportedCipher  = errors.New("unsupported cipher suite")
	ErrUnsupportedKDF     = errors.New("unsupported key derivation function")
	ErrInvalidEnvelope    = errors.New("invalid envelope")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrNilData            = errors.New("data cannot be nil")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrNilFileSystem      = errors.New("filesystem cannot be nil")
	ErrNilKeyStore        = errors.New("key store cannot be nil")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, path string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewKeyStoreError creates a new key store error
func NewKeyStoreError(path, message string, err error) error {
	return &KeyStoreError{
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// NewCorruptionError creates a new corruption error
func NewCorruptionError(path string, message string, err error) error {
	return &CorruptionError{
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsKeyStoreError checks if an error is a key store error
func IsKeyStoreError(err error) bool {
	var ke *KeyStoreError
	return errors.As(err, &ke)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsAuthFailure reports whether err is an authentication tag mismatch
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// FailureKind is the class of a failed operation, as reported to operators
type FailureKind uint8

const (
	FailureNone        FailureKind = iota // no error
	FailureValidation                     // bad input, foreign or unsupported file
	FailureBadPassword                    // authentication failed; try another password
	FailureCorrupt                        // authenticated data could not be decoded
	FailureFileSystem                     // storage layer problem
	FailureKeyStore                       // system key could not be loaded
	FailureUnknown
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureValidation:
		return "invalid input"
	case FailureBadPassword:
		return "wrong password or tampered data"
	case FailureCorrupt:
		return "corrupted backup"
	case FailureFileSystem:
		return "filesystem error"
	case FailureKeyStore:
		return "key store error"
	default:
		return "unknown error"
	}
}

// Classify maps an error returned by this package to its FailureKind
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case IsKeyStoreError(err):
		return FailureKeyStore
	case IsAuthFailure(err), IsEncryptionError(err):
		return FailureBadPassword
	case IsCorruptionError(err):
		return FailureCorrupt
	case IsValidationError(err):
		return FailureValidation
	case IsIOError(err), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return FailureFileSystem
	default:
		return FailureUnknown
	}
}
