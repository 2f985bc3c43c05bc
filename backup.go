package sealbackup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/absfs/sealbackup/internal/codec"
)

// BackupOptions overrides store settings for a single Create call
type BackupOptions struct {
	// Compress overrides Config.Compress when set
	Compress *bool
}

// BackupResult describes a backup that was written
type BackupResult struct {
	Success    bool
	BackupPath string
	BackupName string
	Timestamp  time.Time
	Size       int64
	ID         string

	// Pruned lists backups removed by the retention pass that followed
	Pruned []string
}

// VerifyResult is the outcome of checking a backup against a password
type VerifyResult struct {
	Valid      bool
	ID         string
	Timestamp  time.Time
	Compressed bool
	// Reason explains why Valid is false
	Reason string
}

// BackupMeta describes a backup file found by List
type BackupMeta struct {
	Name       string
	Path       string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// BackupStore writes, reads and prunes password-encrypted backups in a
// single directory of an absfs.FileSystem
type BackupStore struct {
	fs     absfs.FileSystem
	config Config
	codec  codec.Codec
	logger *logrus.Logger

	// mu serializes name reservation so two creates in this process never
	// pick the same file name
	mu sync.Mutex
}

// NewBackupStore creates a BackupStore. The config is copied; zero fields
// take their defaults.
func NewBackupStore(fsys absfs.FileSystem, config *Config) (*BackupStore, error) {
	if fsys == nil {
		return nil, ErrNilFileSystem
	}
	if config == nil {
		return nil, ErrNilConfig
	}

	cfg := *config
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	return &BackupStore{
		fs:     fsys,
		config: cfg,
		codec:  c,
		logger: cfg.Logger,
	}, nil
}

// Config returns a copy of the effective configuration
func (s *BackupStore) Config() Config {
	return s.config
}

// Create encrypts data under password and writes it as a new backup, then
// applies the retention limit. Strings, byte slices and json.RawMessage are
// stored as given; any other value is encoded with the configured codec.
// Retention failures are logged and never fail the create.
func (s *BackupStore) Create(data any, password []byte, opts *BackupOptions) (*BackupResult, error) {
	payload, codecName, err := s.encodePayload(data)
	if err != nil {
		return nil, err
	}

	compress := s.config.Compress
	if opts != nil && opts.Compress != nil {
		compress = *opts.Compress
	}

	result, err := s.write(payload, codecName, compress, password)
	if err != nil {
		return nil, err
	}

	pruned, err := s.Cleanup()
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"event": "retention_failed",
			"dir":   s.config.BackupDir,
		}).WithError(err).Warn("retention cleanup failed")
	}
	result.Pruned = pruned
	return result, nil
}

// Restore decrypts a backup and decodes its payload. Values stored through
// a codec come back as the codec decodes them into an interface (for JSON:
// map[string]any, []any, float64, string, bool or nil). If the payload does
// not decode, the plaintext is returned as a string.
func (s *BackupStore) Restore(name string, password []byte) (any, error) {
	plaintext, rec, err := s.open(name, password)
	if err != nil {
		return nil, err
	}

	var v any
	if err := rec.payloadCodec().Unmarshal(plaintext, &v); err != nil {
		return string(plaintext), nil
	}
	return v, nil
}

// RestoreInto decrypts a backup and decodes its payload into v. A *string
// or *[]byte receives the plaintext unchanged.
func (s *BackupStore) RestoreInto(name string, password []byte, v any) error {
	plaintext, rec, err := s.open(name, password)
	if err != nil {
		return err
	}

	switch dst := v.(type) {
	case *string:
		*dst = string(plaintext)
		return nil
	case *[]byte:
		*dst = plaintext
		return nil
	}

	if err := rec.payloadCodec().Unmarshal(plaintext, v); err != nil {
		return NewCorruptionError(s.resolve(name), "failed to decode payload", err)
	}
	return nil
}

// Verify reports whether password opens the backup. A wrong password or a
// tampered file yields Valid false with a reason; validation and
// filesystem problems are returned as errors.
func (s *BackupStore) Verify(name string, password []byte) (*VerifyResult, error) {
	_, rec, err := s.open(name, password)
	switch {
	case err == nil:
		return &VerifyResult{
			Valid:      true,
			ID:         rec.id,
			Timestamp:  rec.envelope.Timestamp,
			Compressed: rec.envelope.Compressed,
		}, nil
	case IsEncryptionError(err), IsCorruptionError(err):
		return &VerifyResult{Valid: false, Reason: err.Error()}, nil
	default:
		return nil, err
	}
}

// List returns the backups in the backup directory, newest first. Files
// that do not follow the backup naming convention are ignored. A missing
// directory yields an empty list.
func (s *BackupStore) List() ([]BackupMeta, error) {
	infos, err := readDir(s.fs, s.config.BackupDir)
	if err != nil {
		if isNotExist(err) {
			return []BackupMeta{}, nil
		}
		return nil, NewIOError("list", s.config.BackupDir, err)
	}

	metas := make([]BackupMeta, 0, len(infos))
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		created, ok := parseBackupName(info.Name(), s.config.Extension)
		if !ok {
			continue
		}
		metas = append(metas, BackupMeta{
			Name:       info.Name(),
			Path:       path.Join(s.config.BackupDir, info.Name()),
			Size:       info.Size(),
			CreatedAt:  created,
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].Name > metas[j].Name
	})
	return metas, nil
}

// Cleanup deletes the oldest backups beyond MaxBackups, oldest first, and
// returns the names it removed. A deletion that fails is logged and
// skipped. MaxBackups of zero disables retention.
func (s *BackupStore) Cleanup() ([]string, error) {
	if s.config.MaxBackups <= 0 {
		return nil, nil
	}

	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(metas) <= s.config.MaxBackups {
		return nil, nil
	}

	excess := metas[s.config.MaxBackups:]
	var pruned []string
	for i := len(excess) - 1; i >= 0; i-- {
		m := excess[i]
		if err := s.fs.Remove(m.Path); err != nil {
			s.logger.WithFields(logrus.Fields{
				"event":  "backup_prune_failed",
				"backup": m.Name,
			}).WithError(err).Warn("failed to delete old backup")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"event":  "backup_pruned",
			"backup": m.Name,
		}).Info("deleted old backup")
		pruned = append(pruned, m.Name)
	}
	return pruned, nil
}

// encodePayload turns data into the bytes that get encrypted and names the
// codec needed to read them back
func (s *BackupStore) encodePayload(data any) ([]byte, string, error) {
	nilData := &ValidationError{Field: "data", Message: "data cannot be nil", Err: ErrNilData}

	switch v := data.(type) {
	case nil:
		return nil, "", nilData
	case string:
		return []byte(v), rawCodec, nil
	case []byte:
		if v == nil {
			return nil, "", nilData
		}
		return v, rawCodec, nil
	case json.RawMessage:
		if v == nil {
			return nil, "", nilData
		}
		return v, rawCodec, nil
	}

	// a nil map, slice or pointer would be stored as null
	switch rv := reflect.ValueOf(data); rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, "", nilData
		}
	}

	payload, err := s.codec.Marshal(data)
	if err != nil {
		return nil, "", &ValidationError{Field: "data", Message: fmt.Sprintf("cannot encode with %s: %v", s.codec.Name(), err), Err: err}
	}
	return payload, s.codec.Name(), nil
}

// write seals payload under a freshly salted key and stores it under a new
// backup name
func (s *BackupStore) write(payload []byte, codecName string, compress bool, password []byte) (*BackupResult, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	body, err := maybeCompress(compress, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}

	provider, err := newKeyProvider(password, s.config.KDF, s.config.PBKDF2, s.config.Argon2id)
	if err != nil {
		return nil, err
	}
	salt, err := provider.GenerateSalt()
	if err != nil {
		return nil, NewEncryptionError("encrypt", "", err)
	}
	key, err := provider.DeriveKey(salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	env, err := Encrypt(s.config.Cipher, key, body)
	if err != nil {
		return nil, err
	}
	env.Salt = salt
	env.Compressed = compress

	if err := s.fs.MkdirAll(s.config.BackupDir, 0700); err != nil {
		return nil, NewIOError("mkdir", s.config.BackupDir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, name, err := s.reserveName(s.config.Clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	env.Timestamp = ts

	id := uuid.NewString()
	record, err := encodeRecord(env, s.config.KDF, s.kdfParams(), codecName, id)
	if err != nil {
		return nil, err
	}

	final := path.Join(s.config.BackupDir, name)
	tmp := path.Join(s.config.BackupDir, "."+name+"."+uuid.NewString()+".tmp")
	if err := writeFile(s.fs, tmp, record, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600); err != nil {
		_ = s.fs.Remove(tmp)
		return nil, NewIOError("write", tmp, err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return nil, NewIOError("rename", final, err)
	}

	s.logger.WithFields(logrus.Fields{
		"event":      "backup_created",
		"backup":     name,
		"id":         id,
		"compressed": compress,
		"algorithm":  env.Algorithm.String(),
		"kdf":        s.config.KDF.String(),
	}).Info("backup created")

	return &BackupResult{
		Success:    true,
		BackupPath: final,
		BackupName: name,
		Timestamp:  ts,
		Size:       int64(len(record)),
		ID:         id,
	}, nil
}

// reserveName picks the first unused backup name at or after ts
func (s *BackupStore) reserveName(ts time.Time) (time.Time, string, error) {
	for {
		name := backupName(ts, s.config.Extension)
		taken, err := exists(s.fs, path.Join(s.config.BackupDir, name))
		if err != nil {
			return time.Time{}, "", NewIOError("stat", name, err)
		}
		if !taken {
			return ts, name, nil
		}
		ts = ts.Add(time.Nanosecond)
	}
}

func (s *BackupStore) kdfParams() kdfParams {
	if s.config.KDF == KDFArgon2id {
		return kdfParams{
			Iterations:  s.config.Argon2id.Iterations,
			Memory:      s.config.Argon2id.Memory,
			Parallelism: s.config.Argon2id.Parallelism,
		}
	}
	return kdfParams{Iterations: uint32(s.config.PBKDF2.Iterations)}
}

// open reads, authenticates and decompresses a backup
func (s *BackupStore) open(name string, password []byte) ([]byte, *decodedRecord, error) {
	if err := ValidateFilePath(name); err != nil {
		return nil, nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, nil, err
	}

	p := s.resolve(name)
	data, err := readFile(s.fs, p)
	if err != nil {
		return nil, nil, NewIOError("read", p, err)
	}

	rec, err := decodeRecord(p, data)
	if err != nil {
		return nil, nil, err
	}

	key, err := rec.provider(password).DeriveKey(rec.envelope.Salt)
	if err != nil {
		return nil, nil, err
	}
	defer zero(key)

	body, err := Decrypt(rec.envelope, key)
	if err != nil {
		var ee *EncryptionError
		if errors.As(err, &ee) {
			ee.Path = p
		}
		return nil, nil, err
	}

	plaintext, err := maybeDecompress(rec.envelope.Compressed, body)
	if err != nil {
		return nil, nil, NewCorruptionError(p, "failed to decompress payload", err)
	}
	return plaintext, rec, nil
}

// resolve maps a bare file name into the backup directory
func (s *BackupStore) resolve(name string) string {
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	return path.Join(s.config.BackupDir, name)
}
