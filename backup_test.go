package sealbackup

import (
	"encoding/json"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupGreetingScenario(t *testing.T) {
	store, fsys := newTestStore(t, nil)

	data := map[string]any{"greeting": "hello"}
	res, err := store.Create(data, testPassword, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ID)
	assert.True(t, strings.HasPrefix(res.BackupName, "backup-"))
	assert.True(t, strings.HasSuffix(res.BackupName, ".json"))
	assert.Equal(t, path.Join("/backups", res.BackupName), res.BackupPath)
	assert.Positive(t, res.Size)

	// the file on disk never contains the plaintext
	raw, err := readFile(fsys, res.BackupPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hello")
	assert.Contains(t, string(raw), `"header": "SEALBACKUP"`)

	got, err := store.Restore(res.BackupPath, testPassword)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	v, err := store.Verify(res.BackupName, testPassword)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, res.ID, v.ID)
	assert.Equal(t, res.Timestamp, v.Timestamp)

	v, err = store.Verify(res.BackupName, []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Reason)

	_, err = store.Restore(res.BackupName, []byte("wrong"))
	require.Error(t, err)
	assert.True(t, IsEncryptionError(err))
	assert.Equal(t, FailureBadPassword, Classify(err))
}

func TestBackupRoundTripGrid(t *testing.T) {
	large := strings.Repeat("línea de configuración ✓\n", 20000)
	payloads := map[string]any{
		"empty string": "",
		"text":         "just some text, not json",
		"unicode":      "日本語 🚀 größe",
		"large":        large,
		"object":       map[string]any{"a": float64(1), "nested": map[string]any{"b": []any{"x", true, nil}}},
	}

	for _, compress := range []bool{false, true} {
		store, _ := newTestStore(t, func(c *Config) { c.MaxBackups = 0 })
		for name, data := range payloads {
			compress := compress
			t.Run(name, func(t *testing.T) {
				res, err := store.Create(data, testPassword, &BackupOptions{Compress: &compress})
				require.NoError(t, err)

				got, err := store.Restore(res.BackupName, testPassword)
				require.NoError(t, err)
				assert.Equal(t, data, got)

				v, err := store.Verify(res.BackupName, testPassword)
				require.NoError(t, err)
				assert.True(t, v.Valid)
				assert.Equal(t, compress, v.Compressed)
			})
		}
	}
}

func TestBackupRawJSONIsParsedOnRestore(t *testing.T) {
	store, _ := newTestStore(t, nil)

	res, err := store.Create(json.RawMessage(`{"theme":"dark","size":12}`), testPassword, nil)
	require.NoError(t, err)

	got, err := store.Restore(res.BackupName, testPassword)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark", "size": float64(12)}, got)

	var s string
	require.NoError(t, store.RestoreInto(res.BackupName, testPassword, &s))
	assert.Equal(t, `{"theme":"dark","size":12}`, s)
}

func TestBackupRestoreInto(t *testing.T) {
	type settings struct {
		Theme string   `json:"theme" msgpack:"theme"`
		Paths []string `json:"paths" msgpack:"paths"`
	}
	want := settings{Theme: "dark", Paths: []string{"/a", "/b"}}

	for _, codecName := range []string{"json", "msgpack"} {
		t.Run(codecName, func(t *testing.T) {
			store, _ := newTestStore(t, func(c *Config) { c.Codec = codecName; c.Compress = true })

			res, err := store.Create(want, testPassword, nil)
			require.NoError(t, err)

			var got settings
			require.NoError(t, store.RestoreInto(res.BackupName, testPassword, &got))
			assert.Equal(t, want, got)

			var wrong int
			err = store.RestoreInto(res.BackupName, testPassword, &wrong)
			assert.True(t, IsCorruptionError(err))
		})
	}
}

func TestBackupMsgPackRestore(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.Codec = "msgpack" })

	res, err := store.Create(map[string]any{"greeting": "hello"}, testPassword, nil)
	require.NoError(t, err)

	got, err := store.Restore(res.BackupName, testPassword)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello"}, got)
}

func TestBackupAlternateSuites(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"xchacha20-poly1305", func(c *Config) { c.Cipher = CipherXChaCha20Poly1305 }},
		{"argon2id", fastArgon2},
		{"xchacha with argon2id", func(c *Config) { fastArgon2(c); c.Cipher = CipherXChaCha20Poly1305 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, tt.mutate)

			res, err := store.Create("secret settings", testPassword, nil)
			require.NoError(t, err)

			got, err := store.Restore(res.BackupName, testPassword)
			require.NoError(t, err)
			assert.Equal(t, "secret settings", got)

			v, err := store.Verify(res.BackupName, []byte("nope"))
			require.NoError(t, err)
			assert.False(t, v.Valid)
		})
	}
}

func TestBackupRecordCarriesKDFParams(t *testing.T) {
	store, fsys := newTestStore(t, fastArgon2)

	res, err := store.Create("x", testPassword, nil)
	require.NoError(t, err)

	raw, err := readFile(fsys, res.BackupPath)
	require.NoError(t, err)

	var rec backupRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "argon2id", rec.KDF)
	assert.Equal(t, uint32(8*1024), rec.KDFParams.Memory)
	assert.Equal(t, uint32(1), rec.KDFParams.Iterations)
	assert.Equal(t, "raw", rec.Codec)
	assert.Equal(t, res.ID, rec.ID)

	// a store configured differently still restores it
	other, err := NewBackupStore(fsys, &Config{BackupDir: "/backups", Logger: quietLogger()})
	require.NoError(t, err)
	got, err := other.Restore(res.BackupName, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestBackupCreateValidation(t *testing.T) {
	store, _ := newTestStore(t, nil)

	_, err := store.Create(nil, testPassword, nil)
	assert.ErrorIs(t, err, ErrNilData)
	assert.True(t, IsValidationError(err))

	_, err = store.Create([]byte(nil), testPassword, nil)
	assert.ErrorIs(t, err, ErrNilData)

	var nilMap map[string]any
	var nilSlice []int
	var nilPtr *struct{ Theme string }
	for _, data := range []any{nilMap, nilSlice, nilPtr, json.RawMessage(nil)} {
		_, err = store.Create(data, testPassword, nil)
		assert.ErrorIs(t, err, ErrNilData, "%T", data)
		assert.True(t, IsValidationError(err), "%T", data)
	}

	// empty but non-nil values are still data
	_, err = store.Create(map[string]any{}, testPassword, nil)
	require.NoError(t, err)

	_, err = store.Create("data", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = store.Create(make(chan int), testPassword, nil)
	assert.True(t, IsValidationError(err))

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackupRestoreErrors(t *testing.T) {
	store, fsys := newTestStore(t, nil)

	_, err := store.Restore("backup-2024-01-01T00-00-00-000000000Z.json", testPassword)
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, FailureFileSystem, Classify(err))

	_, err = store.Verify("missing.json", testPassword)
	assert.Equal(t, FailureFileSystem, Classify(err))

	_, err = store.Restore("", testPassword)
	assert.True(t, IsValidationError(err))

	require.NoError(t, fsys.MkdirAll("/backups", 0700))
	write := func(name, body string) {
		require.NoError(t, writeFile(fsys, "/backups/"+name, []byte(body), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600))
	}

	write("foreign.json", `{"header":"SOMETHING-ELSE","version":1}`)
	_, err = store.Restore("foreign.json", testPassword)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = store.Verify("foreign.json", testPassword)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	write("garbage.json", `not json at all`)
	_, err = store.Restore("garbage.json", testPassword)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	write("future.json", `{"header":"SEALBACKUP","version":2}`)
	_, err = store.Restore("future.json", testPassword)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Equal(t, FailureValidation, Classify(err))
}

func TestBackupRejectsHostileKDFParams(t *testing.T) {
	tests := []struct {
		name   string
		kdf    string
		params kdfParams
	}{
		{"pbkdf2 iterations", "pbkdf2-sha256", kdfParams{Iterations: maxPBKDF2Iterations + 1}},
		{"argon2id everything", "argon2id", kdfParams{Iterations: 10000000, Memory: 4 * 1024 * 1024, Parallelism: 255}},
		{"argon2id iterations", "argon2id", kdfParams{Iterations: maxArgon2Iterations + 1, Memory: 8 * 1024, Parallelism: 1}},
		{"argon2id memory", "argon2id", kdfParams{Iterations: 1, Memory: maxArgon2Memory + 1, Parallelism: 1}},
		{"argon2id parallelism", "argon2id", kdfParams{Iterations: 1, Memory: 8 * 1024, Parallelism: maxArgon2Parallelism + 1}},
		{"argon2id zero iterations", "argon2id", kdfParams{Memory: 8 * 1024, Parallelism: 1}},
	}

	store, fsys := newTestStore(t, nil)
	res, err := store.Create(map[string]any{"greeting": "hello"}, testPassword, nil)
	require.NoError(t, err)
	original, err := readFile(fsys, res.BackupPath)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec backupRecord
			require.NoError(t, json.Unmarshal(original, &rec))
			rec.KDF = tt.kdf
			rec.KDFParams = tt.params
			data, err := json.Marshal(rec)
			require.NoError(t, err)
			require.NoError(t, writeFile(fsys, res.BackupPath, data, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600))

			_, err = store.Restore(res.BackupName, testPassword)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
			assert.Equal(t, FailureValidation, Classify(err))

			_, err = store.Verify(res.BackupName, testPassword)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestBackupTamperedRecord(t *testing.T) {
	store, fsys := newTestStore(t, nil)

	res, err := store.Create(map[string]any{"greeting": "hello"}, testPassword, nil)
	require.NoError(t, err)

	raw, err := readFile(fsys, res.BackupPath)
	require.NoError(t, err)
	var rec backupRecord
	require.NoError(t, json.Unmarshal(raw, &rec))

	// flip one hex digit of the tag
	tag := []byte(rec.AuthTag)
	if tag[0] == '0' {
		tag[0] = '1'
	} else {
		tag[0] = '0'
	}
	rec.AuthTag = string(tag)
	tampered, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, writeFile(fsys, res.BackupPath, tampered, os.O_WRONLY|os.O_TRUNC, 0600))

	v, err := store.Verify(res.BackupName, testPassword)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	_, err = store.Restore(res.BackupName, testPassword)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestBackupRetention(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.MaxBackups = 3 })

	var names []string
	for i := 1; i <= 5; i++ {
		res, err := store.Create(map[string]any{"n": i}, testPassword, nil)
		require.NoError(t, err)
		names = append(names, res.BackupName)
	}

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, names[4], list[0].Name)
	assert.Equal(t, names[3], list[1].Name)
	assert.Equal(t, names[2], list[2].Name)

	for i, want := range []float64{5, 4, 3} {
		got, err := store.Restore(list[i].Name, testPassword)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": want}, got)
	}
}

func TestBackupCreateReportsPruned(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.MaxBackups = 1 })

	first, err := store.Create("one", testPassword, nil)
	require.NoError(t, err)
	assert.Empty(t, first.Pruned)

	second, err := store.Create("two", testPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{first.BackupName}, second.Pruned)
}

func TestBackupUnlimitedRetention(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.MaxBackups = 0 })

	for i := 0; i < 4; i++ {
		_, err := store.Create("x", testPassword, nil)
		require.NoError(t, err)
	}
	pruned, err := store.Cleanup()
	require.NoError(t, err)
	assert.Empty(t, pruned)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestBackupCleanupSkipsDirectories(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store, fsys := newTestStore(t, func(c *Config) { c.MaxBackups = 0; c.Logger = logger })

	for i := 0; i < 4; i++ {
		_, err := store.Create("x", testPassword, nil)
		require.NoError(t, err)
	}
	list, err := store.List()
	require.NoError(t, err)
	oldest := list[3]

	// a directory that carries a backup name is never pruned
	require.NoError(t, fsys.Remove(oldest.Path))
	require.NoError(t, fsys.MkdirAll(path.Join(oldest.Path, "child"), 0700))

	store.config.MaxBackups = 1
	pruned, err := store.Cleanup()
	require.NoError(t, err)
	assert.Len(t, pruned, 2)
	assert.Equal(t, list[2].Name, pruned[0])
	assert.Equal(t, list[1].Name, pruned[1])

	remaining, err := store.List()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, list[0].Name, remaining[0].Name)

	ok, err := exists(fsys, oldest.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["event"] == "backup_pruned" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestBackupCleanupLogsRemovalFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store, fsys := newTestStore(t, func(c *Config) { c.MaxBackups = 0; c.Logger = logger })

	for i := 0; i < 3; i++ {
		_, err := store.Create("x", testPassword, nil)
		require.NoError(t, err)
	}
	list, err := store.List()
	require.NoError(t, err)

	// removal fails inside a read-only directory
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	require.NoError(t, fsys.Chmod("/backups", 0500))
	t.Cleanup(func() { _ = fsys.Chmod("/backups", 0700) })

	store.config.MaxBackups = 1
	pruned, err := store.Cleanup()
	require.NoError(t, err)
	assert.Empty(t, pruned)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["event"] == "backup_prune_failed" {
			warnings++
		}
	}
	assert.Equal(t, len(list)-1, warnings)
}

func TestBackupListIgnoresForeignFiles(t *testing.T) {
	store, fsys := newTestStore(t, nil)

	empty, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	res, err := store.Create("x", testPassword, nil)
	require.NoError(t, err)

	for _, name := range []string{"notes.txt", "backup-latest.json", "backup-2024-01-01T00-00-00-000Z.txt"} {
		require.NoError(t, writeFile(fsys, "/backups/"+name, []byte("x"), os.O_WRONLY|os.O_CREATE, 0600))
	}
	require.NoError(t, fsys.MkdirAll("/backups/backup-2030-01-01T00-00-00-000000000Z.json", 0700))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.BackupName, list[0].Name)
	assert.Equal(t, res.Timestamp, list[0].CreatedAt)
}

func TestBackupNameCollision(t *testing.T) {
	fixed := newTestClock()
	fixed.SetStep(0)
	store, _ := newTestStore(t, func(c *Config) { c.Clock = fixed; c.MaxBackups = 0 })

	a, err := store.Create("a", testPassword, nil)
	require.NoError(t, err)
	b, err := store.Create("b", testPassword, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.BackupName, b.BackupName)
	assert.Equal(t, time.Nanosecond, b.Timestamp.Sub(a.Timestamp))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.BackupName, list[0].Name)
}

func TestBackupNameFormat(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 123456789, time.UTC)
	name := backupName(ts, "json")
	assert.Equal(t, "backup-2024-03-05T14-07-09-123456789Z.json", name)

	parsed, ok := parseBackupName(name, "json")
	require.True(t, ok)
	assert.True(t, ts.Equal(parsed))

	short, ok := parseBackupName("backup-2024-03-05T14-07-09-123Z.json", "json")
	require.True(t, ok)
	assert.Equal(t, 123000000, short.Nanosecond())

	_, ok = parseBackupName(name, "bak")
	assert.False(t, ok)
	_, ok = parseBackupName("backup-2024-03-05.json", "json")
	assert.False(t, ok)
}

func TestBackupCustomExtension(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.Extension = "sbak" })

	res, err := store.Create("x", testPassword, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.BackupName, ".sbak"))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestNewBackupStoreValidation(t *testing.T) {
	fsys := newTempDirFS(t)

	_, err := NewBackupStore(nil, DefaultConfig("/b"))
	assert.ErrorIs(t, err, ErrNilFileSystem)

	_, err = NewBackupStore(fsys, nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	_, err = NewBackupStore(fsys, &Config{})
	assert.True(t, IsValidationError(err))

	store, err := NewBackupStore(fsys, &Config{BackupDir: "/b", Logger: quietLogger()})
	require.NoError(t, err)
	cfg := store.Config()
	assert.Equal(t, "json", cfg.Extension)
	assert.Equal(t, 0, cfg.MaxBackups)
}
