package sealbackup

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"github.com/sirupsen/logrus"

	"github.com/absfs/sealbackup/internal/clock"
)

const (
	concurrentLoadAttempts = 10
	concurrentLoadDelay    = 10 * time.Millisecond
)

// keyFile is the on-disk form of the system key
type keyFile struct {
	Key     string `json:"key"`
	Created string `json:"created"`
}

// KeyStoreConfig configures a KeyStore
type KeyStoreConfig struct {
	// Path of the key file on the filesystem (required)
	Path string

	// Policy applied when an existing key file is malformed or unreadable
	Policy KeyLoadPolicy

	// Clock stamps the created field; defaults to the system clock
	Clock clock.Clock

	// Logger receives creation and regeneration events
	Logger *logrus.Logger
}

// KeyStore owns the system key: a random key generated once, persisted to a
// permission-restricted file and cached in memory for the life of the
// process. It is safe for concurrent use.
//
// The file is created with mode 0600 inside a 0700 directory. On platforms
// without POSIX permission bits (Windows) these modes are best-effort and
// the key is only as protected as the ACL of the directory holding it.
type KeyStore struct {
	fs     absfs.FileSystem
	path   string
	policy KeyLoadPolicy
	clock  clock.Clock
	logger *logrus.Logger

	mu  sync.Mutex
	key []byte
}

// NewKeyStore creates a KeyStore. Nothing is read or written until Key is
// first called.
func NewKeyStore(fsys absfs.FileSystem, config KeyStoreConfig) (*KeyStore, error) {
	if fsys == nil {
		return nil, ErrNilFileSystem
	}
	if err := ValidateFilePath(config.Path); err != nil {
		return nil, err
	}
	if config.Policy != KeyLoadLenient && config.Policy != KeyLoadStrict {
		return nil, NewValidationError("policy", config.Policy, "unknown key load policy")
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &KeyStore{
		fs:     fsys,
		path:   config.Path,
		policy: config.Policy,
		clock:  config.Clock,
		logger: config.Logger,
	}, nil
}

// DefaultKeyStorePath returns the per-user location of the system key file
func DefaultKeyStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "sealbackup", "system-key.json"), nil
}

// Path returns the key file location
func (ks *KeyStore) Path() string {
	return ks.path
}

// Policy returns the configured load-failure policy
func (ks *KeyStore) Policy() KeyLoadPolicy {
	return ks.policy
}

// Cached reports whether the key is held in memory
func (ks *KeyStore) Cached() bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.key != nil
}

// Key returns the system key, loading it from the key file or creating the
// file on first use. Repeated calls, in this process or after a restart,
// return the same key until Clear or Rotate is called. The returned slice
// is a copy.
func (ks *KeyStore) Key() ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.key == nil {
		key, err := ks.loadOrCreate()
		if err != nil {
			return nil, err
		}
		ks.cache(key)
	}

	out := make([]byte, len(ks.key))
	copy(out, ks.key)
	return out, nil
}

// Clear drops the cached key and removes the key file. Every value
// encrypted with the old key becomes unreadable.
func (ks *KeyStore) Clear() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.evict()
	if err := ks.fs.Remove(ks.path); err != nil && !isNotExist(err) {
		return NewKeyStoreError(ks.path, "failed to remove key file", NewIOError("remove", ks.path, err))
	}
	ks.logger.WithFields(logrus.Fields{
		"event": "system_key_cleared",
		"path":  ks.path,
	}).Info("system key cleared")
	return nil
}

// Rotate clears the current key and creates a new one
func (ks *KeyStore) Rotate() ([]byte, error) {
	if err := ks.Clear(); err != nil {
		return nil, err
	}
	return ks.Key()
}

func (ks *KeyStore) cache(key []byte) {
	if err := lockMemory(key); err != nil {
		ks.logger.WithError(err).Debug("unable to lock system key in memory")
	}
	ks.key = key
}

func (ks *KeyStore) evict() {
	if ks.key == nil {
		return
	}
	zero(ks.key)
	_ = unlockMemory(ks.key)
	ks.key = nil
}

func (ks *KeyStore) loadOrCreate() ([]byte, error) {
	data, err := readFile(ks.fs, ks.path)
	switch {
	case err == nil:
		key, perr := parseKeyFile(data)
		if perr == nil {
			return key, nil
		}
		return ks.recover("malformed key file", perr)
	case isNotExist(err):
		return ks.create()
	default:
		return ks.recover("unreadable key file", NewIOError("read", ks.path, err))
	}
}

// create writes a new key with exclusive-create semantics. If another
// process wins the race, its key is loaded instead.
func (ks *KeyStore) create() ([]byte, error) {
	key, data, err := ks.newKeyFile()
	if err != nil {
		return nil, err
	}

	if err := ks.fs.MkdirAll(path.Dir(ks.path), 0700); err != nil {
		return nil, NewKeyStoreError(ks.path, "failed to create key directory", NewIOError("mkdir", path.Dir(ks.path), err))
	}

	err = writeFile(ks.fs, ks.path, data, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if isExist(err) {
		zero(key)
		return ks.loadConcurrent()
	}
	if err != nil {
		return nil, NewKeyStoreError(ks.path, "failed to write key file", NewIOError("write", ks.path, err))
	}

	ks.restrict()
	ks.logger.WithFields(logrus.Fields{
		"event": "system_key_created",
		"path":  ks.path,
	}).Info("system key created")
	return key, nil
}

// loadConcurrent reads a key file another process created first. The
// winner may still be writing, so an empty or partial file is re-read a
// few times before the load-failure policy applies.
func (ks *KeyStore) loadConcurrent() ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < concurrentLoadAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(concurrentLoadDelay)
		}
		existing, err := readFile(ks.fs, ks.path)
		if err != nil {
			lastErr = NewIOError("read", ks.path, err)
			continue
		}
		key, err := parseKeyFile(existing)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return ks.recover("malformed key file", lastErr)
}

// recover applies the load-failure policy to an existing key file
func (ks *KeyStore) recover(reason string, cause error) ([]byte, error) {
	if ks.policy == KeyLoadStrict {
		return nil, NewKeyStoreError(ks.path, reason, cause)
	}

	ks.logger.WithFields(logrus.Fields{
		"event":  "system_key_regenerated",
		"path":   ks.path,
		"reason": reason,
		"error":  cause.Error(),
	}).Warn("regenerating system key; values encrypted with the previous key can no longer be decrypted")

	key, data, err := ks.newKeyFile()
	if err != nil {
		return nil, err
	}
	if err := ks.fs.MkdirAll(path.Dir(ks.path), 0700); err != nil {
		return nil, NewKeyStoreError(ks.path, "failed to create key directory", NewIOError("mkdir", path.Dir(ks.path), err))
	}
	if err := writeFile(ks.fs, ks.path, data, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600); err != nil {
		return nil, NewKeyStoreError(ks.path, "failed to rewrite key file", NewIOError("write", ks.path, err))
	}
	ks.restrict()
	return key, nil
}

// restrict re-applies 0600 in case the file pre-existed with wider bits
func (ks *KeyStore) restrict() {
	if err := ks.fs.Chmod(ks.path, 0600); err != nil {
		ks.logger.WithError(err).WithField("path", ks.path).Debug("unable to restrict key file permissions")
	}
}

func (ks *KeyStore) newKeyFile() ([]byte, []byte, error) {
	key, err := randomBytes(KeySize)
	if err != nil {
		return nil, nil, NewKeyStoreError(ks.path, "failed to generate key", err)
	}
	data, err := json.MarshalIndent(keyFile{
		Key:     hex.EncodeToString(key),
		Created: ks.clock.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return nil, nil, NewKeyStoreError(ks.path, "failed to encode key file", err)
	}
	return key, data, nil
}

func parseKeyFile(data []byte) ([]byte, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	if len(kf.Key) != hex.EncodedLen(KeySize) {
		return nil, fmt.Errorf("key must be %d hex characters, got %d", hex.EncodedLen(KeySize), len(kf.Key))
	}
	key, err := hex.DecodeString(kf.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return key, nil
}
