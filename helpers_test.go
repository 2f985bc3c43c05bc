package sealbackup

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/absfs/sealbackup/internal/clock"
)

var testPassword = []byte("p@ss1234")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestClock returns a mock clock that advances one second per reading
func newTestClock() *clock.Mock {
	c := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.SetStep(time.Second)
	return c
}

// newTestStore returns a BackupStore on a DirFS rooted in a temp dir
func newTestStore(t *testing.T, mutate func(c *Config)) (*BackupStore, *DirFS) {
	t.Helper()

	fsys, err := NewDirFS(t.TempDir())
	require.NoError(t, err)

	config := DefaultConfig("/backups")
	config.Clock = newTestClock()
	config.Logger = quietLogger()
	if mutate != nil {
		mutate(config)
	}

	store, err := NewBackupStore(fsys, config)
	require.NoError(t, err)
	return store, fsys
}

// fastArgon2 keeps Argon2id tests quick
func fastArgon2(c *Config) {
	c.KDF = KDFArgon2id
	c.Argon2id = Argon2idParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}
}
