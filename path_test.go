package sealbackup

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/absfs/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPathService(t *testing.T) (*PathService, *KeyStore) {
	t.Helper()
	fsys, err := memfs.NewFS()
	require.NoError(t, err)

	keys := newTestKeyStore(t, fsys, KeyLoadStrict)
	svc, err := NewPathService(keys, PathConfig{Clock: newTestClock(), Logger: quietLogger()})
	require.NoError(t, err)
	return svc, keys
}

func TestPathRoundTrip(t *testing.T) {
	svc, _ := newTestPathService(t)
	explicit := randomKey(t)

	paths := []string{
		"/home/user/docs/report.pdf",
		"relative/path/file.txt",
		"C:\\Users\\user\\Documents",
		"/tmp/日本語/ファイル.txt",
		"x",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			enc, err := svc.EncryptPath(p, nil)
			require.NoError(t, err)
			assert.NotContains(t, enc, p)
			assert.True(t, svc.IsEncryptedPath(enc))

			dec, err := svc.DecryptPath(enc, nil)
			require.NoError(t, err)
			assert.Equal(t, p, dec)

			enc, err = svc.EncryptPath(p, explicit)
			require.NoError(t, err)
			dec, err = svc.DecryptPath(enc, explicit)
			require.NoError(t, err)
			assert.Equal(t, p, dec)
		})
	}
}

func TestPathEncryptionIsRandomized(t *testing.T) {
	svc, _ := newTestPathService(t)

	a, err := svc.EncryptPath("/home/user", nil)
	require.NoError(t, err)
	b, err := svc.EncryptPath("/home/user", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPathEnvelopeShape(t *testing.T) {
	svc, _ := newTestPathService(t)

	enc, err := svc.EncryptPath("/home/user", nil)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(enc), &fields))
	assert.Equal(t, "path", fields["type"])
	assert.Equal(t, float64(1), fields["version"])
	assert.Equal(t, "aes-256-gcm", fields["algorithm"])
	assert.Len(t, fields["iv"], IVSize*2)
	assert.Len(t, fields["authTag"], TagSize*2)
	assert.NotContains(t, fields, "salt")
	assert.False(t, strings.Contains(enc, "\n"), "envelope should be compact")
}

func TestPathWrongKey(t *testing.T) {
	svc, keys := newTestPathService(t)

	enc, err := svc.EncryptPath("/secret/place", nil)
	require.NoError(t, err)

	_, err = svc.DecryptPath(enc, randomKey(t))
	require.Error(t, err)
	assert.True(t, IsEncryptionError(err))

	// rotating the system key makes old envelopes unreadable
	_, err = keys.Rotate()
	require.NoError(t, err)
	_, err = svc.DecryptPath(enc, nil)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestPathValidation(t *testing.T) {
	svc, _ := newTestPathService(t)

	_, err := svc.EncryptPath("", nil)
	assert.True(t, IsValidationError(err))

	_, err = svc.EncryptPath("/x", make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidKey)

	for _, bad := range []string{
		"",
		"/plain/path",
		"{}",
		`{"encrypted":"00","iv":"00","authTag":"00","version":1,"type":"file","timestamp":""}`,
		`{"encrypted":"zz","iv":"00","authTag":"00","version":1,"type":"path","timestamp":""}`,
		`{"encrypted":"00","iv":"00","authTag":"00","version":1,"type":"path","timestamp":"","extra":true}`,
	} {
		_, err := svc.DecryptPath(bad, nil)
		assert.True(t, IsValidationError(err), "value %q: %v", bad, err)
		assert.False(t, svc.IsEncryptedPath(bad), bad)
	}
}

func TestPathRejectsTrailingData(t *testing.T) {
	svc, _ := newTestPathService(t)

	enc, err := svc.EncryptPath("/a/b", nil)
	require.NoError(t, err)
	assert.True(t, svc.IsEncryptedPath(enc+"\n"), "trailing whitespace is allowed")

	for _, suffix := range []string{"}", "]", " {}", "x"} {
		value := enc + suffix
		assert.False(t, svc.IsEncryptedPath(value), "suffix %q", suffix)
		_, err := svc.DecryptPath(value, nil)
		assert.True(t, IsValidationError(err), "suffix %q: %v", suffix, err)
	}
}

func TestPathUnsupportedVersion(t *testing.T) {
	svc, _ := newTestPathService(t)

	enc, err := svc.EncryptPath("/a/b", nil)
	require.NoError(t, err)

	var pe pathEnvelope
	require.NoError(t, json.Unmarshal([]byte(enc), &pe))
	pe.Version = 2
	bumped, err := json.Marshal(pe)
	require.NoError(t, err)

	_, err = svc.DecryptPath(string(bumped), nil)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.False(t, IsEncryptedPath(string(bumped)))
}

func TestPathInfo(t *testing.T) {
	svc, _ := newTestPathService(t)

	t.Run("plaintext", func(t *testing.T) {
		info := svc.PathInfo("/home/user/report.pdf")
		assert.False(t, info.IsEncrypted)
		assert.Equal(t, "/home/user/report.pdf", info.Path)
		assert.Equal(t, "report.pdf", info.Basename)
		assert.Equal(t, "/home/user", info.Dirname)
		assert.Equal(t, ".pdf", info.Ext)
		assert.True(t, info.IsAbsolute)
	})

	t.Run("encrypted", func(t *testing.T) {
		enc, err := svc.EncryptPath("/home/user/report.pdf", nil)
		require.NoError(t, err)

		info := svc.PathInfo(enc)
		assert.True(t, info.IsEncrypted)
		assert.Equal(t, EncryptedPlaceholder, info.Path)
		assert.Equal(t, EncryptedPlaceholder, info.Dirname)
		assert.Equal(t, "report.pdf", info.Basename)
		assert.Equal(t, ".pdf", info.Ext)
		assert.True(t, info.IsAbsolute)
	})

	t.Run("undecryptable", func(t *testing.T) {
		enc, err := svc.EncryptPath("/home/user/report.pdf", randomKey(t))
		require.NoError(t, err)

		info := svc.PathInfo(enc)
		assert.True(t, info.IsEncrypted)
		assert.Equal(t, InvalidPlaceholder, info.Path)
		assert.Equal(t, InvalidPlaceholder, info.Basename)
		assert.Equal(t, InvalidPlaceholder, info.Dirname)
		assert.Equal(t, InvalidPlaceholder, info.Ext)
		assert.False(t, info.IsAbsolute)
	})
}

func TestPathXChaCha(t *testing.T) {
	_, keys := newTestPathService(t)
	svc, err := NewPathService(keys, PathConfig{Cipher: CipherXChaCha20Poly1305, Logger: quietLogger()})
	require.NoError(t, err)

	enc, err := svc.EncryptPath("/var/lib/app", nil)
	require.NoError(t, err)
	assert.Contains(t, enc, `"algorithm":"xchacha20-poly1305"`)

	dec, err := svc.DecryptPath(enc, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/app", dec)
}

func TestNewPathServiceValidation(t *testing.T) {
	_, err := NewPathService(nil, PathConfig{})
	assert.ErrorIs(t, err, ErrNilKeyStore)

	_, keys := newTestPathService(t)
	_, err = NewPathService(keys, PathConfig{Cipher: CipherSuite(5)})
	assert.True(t, IsValidationError(err))
}
