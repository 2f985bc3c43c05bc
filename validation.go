package sealbackup

import (
	"fmt"
)

// Input validation helpers shared by the key, backup and path components

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}

	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
			Err:     ErrInvalidKey,
		}
	}

	return nil
}

// ValidatePassword checks that a password was supplied
func ValidatePassword(password []byte) error {
	if len(password) == 0 {
		return &ValidationError{
			Field:   "password",
			Message: "password cannot be empty",
			Err:     ErrEmptyPassword,
		}
	}
	return nil
}

// ValidateSalt checks that a salt is present
func ValidateSalt(salt []byte) error {
	if len(salt) == 0 {
		return &ValidationError{
			Field:   "salt",
			Message: "salt cannot be empty",
		}
	}
	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	return nil
}

// ValidateNonce checks that an IV has the size the cipher suite expects
func ValidateNonce(nonce []byte, suite CipherSuite) error {
	expectedSize, err := NonceSizeFor(suite)
	if err != nil {
		return &ValidationError{
			Field:   "algorithm",
			Value:   suite,
			Message: "unsupported algorithm",
			Err:     err,
		}
	}

	if len(nonce) != expectedSize {
		return &ValidationError{
			Field:   "iv",
			Value:   len(nonce),
			Message: fmt.Sprintf("invalid iv size: got %d bytes, expected %d bytes for %s", len(nonce), expectedSize, suite),
			Err:     ErrInvalidEnvelope,
		}
	}

	return nil
}
