package sealbackup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"github.com/absfs/sealbackup/internal/clock"
)

const (
	// PathEnvelopeType tags path envelopes
	PathEnvelopeType = "path"

	// EncryptedPlaceholder masks the parts of an encrypted path PathInfo does not reveal
	EncryptedPlaceholder = "[encrypted]"

	// InvalidPlaceholder replaces every PathInfo field when an envelope cannot be decrypted
	InvalidPlaceholder = "[invalid]"

	pathKeyInfo = "sealbackup/path/v1"
)

// pathEnvelope is the serialized form of an encrypted path. It carries no
// salt: the key comes from the KeyStore or the caller.
type pathEnvelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
	Timestamp string `json:"timestamp"`
	Version   int    `json:"version"`
	Type      string `json:"type"`
	Algorithm string `json:"algorithm,omitempty"`
}

// PathConfig configures a PathService
type PathConfig struct {
	// Cipher used for new path envelopes
	Cipher CipherSuite

	// Clock stamps envelopes; defaults to the system clock
	Clock clock.Clock

	// Logger receives debug events
	Logger *logrus.Logger
}

// PathService encrypts single path strings for storage inside settings
type PathService struct {
	keys   *KeyStore
	cipher CipherSuite
	clock  clock.Clock
	logger *logrus.Logger
}

// PathInfo describes a stored path value. For encrypted values only the
// leaf name, extension and absoluteness are revealed.
type PathInfo struct {
	IsEncrypted bool
	Path        string
	Basename    string
	Dirname     string
	Ext         string
	IsAbsolute  bool
}

// NewPathService creates a PathService that falls back to keys for the
// system key when no explicit key is passed
func NewPathService(keys *KeyStore, config PathConfig) (*PathService, error) {
	if keys == nil {
		return nil, ErrNilKeyStore
	}
	if _, err := NonceSizeFor(config.Cipher); err != nil {
		return nil, &ValidationError{Field: "cipher", Value: config.Cipher, Message: "unsupported cipher suite", Err: err}
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &PathService{
		keys:   keys,
		cipher: config.Cipher,
		clock:  config.Clock,
		logger: config.Logger,
	}, nil
}

// EncryptPath encrypts path under key, or under the system key when key is
// nil, and returns the serialized envelope
func (s *PathService) EncryptPath(p string, key []byte) (string, error) {
	if err := ValidateFilePath(p); err != nil {
		return "", err
	}

	subkey, err := s.pathKey(key)
	if err != nil {
		return "", err
	}
	defer zero(subkey)

	env, err := Encrypt(s.cipher, subkey, []byte(p))
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(pathEnvelope{
		Encrypted: hex.EncodeToString(env.Ciphertext),
		IV:        hex.EncodeToString(env.IV),
		AuthTag:   hex.EncodeToString(env.AuthTag),
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339Nano),
		Version:   env.Version,
		Type:      PathEnvelopeType,
		Algorithm: env.Algorithm.String(),
	})
	if err != nil {
		return "", NewEncryptionError("encrypt", "", err)
	}
	return string(out), nil
}

// DecryptPath reverses EncryptPath. A value that is not a well-formed path
// envelope is a ValidationError; a wrong key or tampered value is an
// EncryptionError.
func (s *PathService) DecryptPath(value string, key []byte) (string, error) {
	env, err := parsePathEnvelope(value)
	if err != nil {
		return "", err
	}

	subkey, err := s.pathKey(key)
	if err != nil {
		return "", err
	}
	defer zero(subkey)

	plaintext, err := Decrypt(env, subkey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncryptedPath reports whether value parses as a path envelope. It
// never fails; anything unparseable is simply not encrypted.
func (s *PathService) IsEncryptedPath(value string) bool {
	return IsEncryptedPath(value)
}

// IsEncryptedPath reports whether value parses as a path envelope
func IsEncryptedPath(value string) bool {
	_, err := parsePathEnvelope(value)
	return err == nil
}

// PathInfo describes value without forcing callers to decrypt it. For an
// encrypted value the path is decrypted with the system key internally but
// Path and Dirname are masked. If decryption fails every field is
// InvalidPlaceholder.
func (s *PathService) PathInfo(value string) PathInfo {
	if !IsEncryptedPath(value) {
		return PathInfo{
			IsEncrypted: false,
			Path:        value,
			Basename:    filepath.Base(value),
			Dirname:     filepath.Dir(value),
			Ext:         filepath.Ext(value),
			IsAbsolute:  filepath.IsAbs(value),
		}
	}

	plain, err := s.DecryptPath(value, nil)
	if err != nil {
		s.logger.WithError(err).Debug("path info: unable to decrypt path envelope")
		return PathInfo{
			IsEncrypted: true,
			Path:        InvalidPlaceholder,
			Basename:    InvalidPlaceholder,
			Dirname:     InvalidPlaceholder,
			Ext:         InvalidPlaceholder,
			IsAbsolute:  false,
		}
	}

	return PathInfo{
		IsEncrypted: true,
		Path:        EncryptedPlaceholder,
		Basename:    filepath.Base(plain),
		Dirname:     EncryptedPlaceholder,
		Ext:         filepath.Ext(plain),
		IsAbsolute:  filepath.IsAbs(plain),
	}
}

// pathKey derives the AEAD key for path envelopes from the supplied key or
// the system key, so path ciphertexts never share a key with other uses
func (s *PathService) pathKey(key []byte) ([]byte, error) {
	if key == nil {
		systemKey, err := s.keys.Key()
		if err != nil {
			return nil, err
		}
		defer zero(systemKey)
		key = systemKey
	}
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, err
	}

	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(pathKeyInfo)), subkey); err != nil {
		return nil, fmt.Errorf("failed to derive path key: %w", err)
	}
	return subkey, nil
}

// parsePathEnvelope strictly parses value into an Envelope. Unknown fields,
// missing fields, bad hex, a wrong type tag or an unsupported version are
// all rejected.
func parsePathEnvelope(value string) (*Envelope, error) {
	invalid := func(field, msg string, err error) error {
		if err == nil {
			err = ErrInvalidEnvelope
		}
		return &ValidationError{Field: field, Message: msg, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.DisallowUnknownFields()
	var pe pathEnvelope
	if err := dec.Decode(&pe); err != nil {
		return nil, invalid("envelope", "not a path envelope", ErrInvalidEnvelope)
	}
	if rest := value[dec.InputOffset():]; strings.TrimSpace(rest) != "" {
		return nil, invalid("envelope", "trailing data after path envelope", nil)
	}
	if pe.Type != PathEnvelopeType {
		return nil, invalid("type", fmt.Sprintf("expected type %q, got %q", PathEnvelopeType, pe.Type), nil)
	}
	if pe.Encrypted == "" || pe.IV == "" || pe.AuthTag == "" {
		return nil, invalid("envelope", "encrypted, iv and authTag are required", nil)
	}
	if pe.Version != EnvelopeVersion {
		return nil, invalid("version", fmt.Sprintf("unsupported version %d", pe.Version), ErrUnsupportedVersion)
	}

	suite := CipherAES256GCM
	if pe.Algorithm != "" {
		var err error
		if suite, err = ParseCipherSuite(pe.Algorithm); err != nil {
			return nil, invalid("algorithm", err.Error(), err)
		}
	}

	ct, err := hex.DecodeString(pe.Encrypted)
	if err != nil {
		return nil, invalid("encrypted", "not hex", nil)
	}
	iv, err := hex.DecodeString(pe.IV)
	if err != nil {
		return nil, invalid("iv", "not hex", nil)
	}
	tag, err := hex.DecodeString(pe.AuthTag)
	if err != nil {
		return nil, invalid("authTag", "not hex", nil)
	}

	env := &Envelope{
		Ciphertext: ct,
		IV:         iv,
		AuthTag:    tag,
		Algorithm:  suite,
		Version:    pe.Version,
	}
	if pe.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, pe.Timestamp); err == nil {
			env.Timestamp = ts
		}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
