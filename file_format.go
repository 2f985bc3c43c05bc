package sealbackup

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/absfs/sealbackup/internal/codec"
)

const (
	// RecordHeader identifies backup records and is checked before any
	// cryptographic work is done
	RecordHeader = "SEALBACKUP"

	// BackupPrefix starts every backup file name
	BackupPrefix = "backup-"

	// rawCodec marks payloads that were stored as given rather than encoded
	rawCodec = "raw"

	// Upper bounds on the key derivation work a record may ask for. They are
	// enforced before the key is derived, so before the tag is checked.
	maxPBKDF2Iterations  = 100 * MinPBKDF2Iterations
	maxArgon2Iterations  = 10
	maxArgon2Memory      = 1024 * 1024 // KiB, 1 GiB
	maxArgon2Parallelism = 16

	nameTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var backupNamePattern = regexp.MustCompile(`^backup-(\d{4}-\d{2}-\d{2})T(\d{2})-(\d{2})-(\d{2})-(\d{1,9})Z\.([^./\\]+)$`)

// kdfParams records the key derivation parameters of a backup so it can be
// restored after the configured defaults change
type kdfParams struct {
	Iterations  uint32 `json:"iterations"`
	Memory      uint32 `json:"memory,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`
}

// backupRecord is the on-disk form of a backup. Binary fields are hex,
// except the ciphertext which is base64.
type backupRecord struct {
	Header     string    `json:"header"`
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	Timestamp  string    `json:"timestamp"`
	Compressed bool      `json:"compressed"`
	Encrypted  string    `json:"encrypted"`
	IV         string    `json:"iv"`
	Salt       string    `json:"salt"`
	AuthTag    string    `json:"authTag"`
	Algorithm  string    `json:"algorithm"`
	KDF        string    `json:"kdf"`
	KDFParams  kdfParams `json:"kdfParams"`
	Codec      string    `json:"codec"`
}

// decodedRecord is a parsed and structurally validated backup record
type decodedRecord struct {
	envelope *Envelope
	kdf      KDF
	params   kdfParams
	codec    string
	id       string
}

// raw reports whether the payload was stored without a codec
func (r *decodedRecord) raw() bool {
	return r.codec == rawCodec
}

// payloadCodec returns the codec that decodes the payload. Raw payloads
// are tried as JSON.
func (r *decodedRecord) payloadCodec() codec.Codec {
	if r.raw() {
		return codec.JSON{}
	}
	c, err := codec.ByName(r.codec)
	if err != nil {
		return codec.JSON{}
	}
	return c
}

// provider builds the key provider that re-derives this record's key
func (r *decodedRecord) provider(password []byte) KeyProvider {
	switch r.kdf {
	case KDFArgon2id:
		return NewPasswordKeyProvider(password, Argon2idParams{
			Memory:      r.params.Memory,
			Iterations:  r.params.Iterations,
			Parallelism: r.params.Parallelism,
		})
	default:
		return NewPasswordKeyProviderPBKDF2(password, PBKDF2Params{
			Iterations: int(r.params.Iterations),
		})
	}
}

// encodeRecord serializes an envelope and its derivation parameters
func encodeRecord(env *Envelope, kdf KDF, params kdfParams, codecName, id string) ([]byte, error) {
	rec := backupRecord{
		Header:     RecordHeader,
		Version:    env.Version,
		ID:         id,
		Timestamp:  env.Timestamp.UTC().Format(time.RFC3339Nano),
		Compressed: env.Compressed,
		Encrypted:  base64.StdEncoding.EncodeToString(env.Ciphertext),
		IV:         hex.EncodeToString(env.IV),
		Salt:       hex.EncodeToString(env.Salt),
		AuthTag:    hex.EncodeToString(env.AuthTag),
		Algorithm:  env.Algorithm.String(),
		KDF:        kdf.String(),
		KDFParams:  params,
		Codec:      codecName,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup record: %w", err)
	}
	return data, nil
}

// decodeRecord parses a backup record. The header and version are checked
// first; a foreign or unsupported file never reaches the cipher.
func decodeRecord(name string, data []byte) (*decodedRecord, error) {
	var probe struct {
		Header  string `json:"header"`
		Version int    `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ValidationError{Field: "header", Value: name, Message: "not a backup record", Err: ErrInvalidHeader}
	}
	if probe.Header != RecordHeader {
		return nil, &ValidationError{Field: "header", Value: probe.Header, Message: "not a backup record", Err: ErrInvalidHeader}
	}
	if probe.Version != EnvelopeVersion {
		return nil, &ValidationError{
			Field:   "version",
			Value:   probe.Version,
			Message: fmt.Sprintf("unsupported backup version %d", probe.Version),
			Err:     ErrUnsupportedVersion,
		}
	}

	var rec backupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, malformed("record", err.Error())
	}

	suite, err := ParseCipherSuite(rec.Algorithm)
	if err != nil {
		return nil, &ValidationError{Field: "algorithm", Value: rec.Algorithm, Message: "unsupported algorithm", Err: err}
	}
	kdf, err := ParseKDF(rec.KDF)
	if err != nil {
		return nil, &ValidationError{Field: "kdf", Value: rec.KDF, Message: "unsupported key derivation function", Err: err}
	}
	if err := checkKDFParams(kdf, rec.KDFParams); err != nil {
		return nil, err
	}
	if rec.Codec != rawCodec {
		if _, err := codec.ByName(rec.Codec); err != nil {
			return nil, malformed("codec", err.Error())
		}
	}

	ct, err := base64.StdEncoding.DecodeString(rec.Encrypted)
	if err != nil {
		return nil, malformed("encrypted", "not base64")
	}
	iv, err := hex.DecodeString(rec.IV)
	if err != nil {
		return nil, malformed("iv", "not hex")
	}
	salt, err := hex.DecodeString(rec.Salt)
	if err != nil || len(salt) == 0 {
		return nil, malformed("salt", "missing or not hex")
	}
	tag, err := hex.DecodeString(rec.AuthTag)
	if err != nil {
		return nil, malformed("authTag", "not hex")
	}

	env := &Envelope{
		Ciphertext: ct,
		IV:         iv,
		Salt:       salt,
		AuthTag:    tag,
		Algorithm:  suite,
		Version:    rec.Version,
		Compressed: rec.Compressed,
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
		env.Timestamp = ts
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	return &decodedRecord{
		envelope: env,
		kdf:      kdf,
		params:   rec.KDFParams,
		codec:    rec.Codec,
		id:       rec.ID,
	}, nil
}

// checkKDFParams bounds the derivation cost recorded in a backup
func checkKDFParams(kdf KDF, p kdfParams) error {
	switch kdf {
	case KDFArgon2id:
		switch {
		case p.Iterations == 0 || p.Iterations > maxArgon2Iterations:
			return malformed("kdfParams", fmt.Sprintf("argon2id iterations must be between 1 and %d", maxArgon2Iterations))
		case p.Memory == 0 || p.Memory > maxArgon2Memory:
			return malformed("kdfParams", fmt.Sprintf("argon2id memory must be between 1 and %d KiB", maxArgon2Memory))
		case p.Parallelism == 0 || p.Parallelism > maxArgon2Parallelism:
			return malformed("kdfParams", fmt.Sprintf("argon2id parallelism must be between 1 and %d", maxArgon2Parallelism))
		}
	default:
		if p.Iterations > maxPBKDF2Iterations {
			return malformed("kdfParams", fmt.Sprintf("pbkdf2 iterations exceed %d", maxPBKDF2Iterations))
		}
	}
	return nil
}

func malformed(field, msg string) error {
	return &ValidationError{Field: field, Message: msg, Err: ErrInvalidEnvelope}
}

// backupName returns the file name for a backup taken at ts
func backupName(ts time.Time, ext string) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(ts.UTC().Format(nameTimeLayout))
	return BackupPrefix + stamp + "." + ext
}

// parseBackupName extracts the creation time encoded in a backup file name.
// ok is false for names that do not follow the convention or carry a
// different extension.
func parseBackupName(name, ext string) (time.Time, bool) {
	m := backupNamePattern.FindStringSubmatch(name)
	if m == nil || m[6] != ext {
		return time.Time{}, false
	}
	frac := m[5] + strings.Repeat("0", 9-len(m[5]))
	ts, err := time.Parse(nameTimeLayout, fmt.Sprintf("%sT%s:%s:%s.%sZ", m[1], m[2], m[3], m[4], frac))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
