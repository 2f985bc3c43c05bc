package sealbackup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	k1, err := DeriveKey(testPassword, salt)
	require.NoError(t, err)
	k2, err := DeriveKey(testPassword, salt)
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.True(t, bytes.Equal(k1, k2))
}

func TestDeriveKeyDependsOnInputs(t *testing.T) {
	salt1, err := GenerateSalt()
	require.NoError(t, err)
	salt2, err := GenerateSalt()
	require.NoError(t, err)
	require.False(t, bytes.Equal(salt1, salt2))

	base, err := DeriveKey(testPassword, salt1)
	require.NoError(t, err)

	otherSalt, err := DeriveKey(testPassword, salt2)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(base, otherSalt))

	otherPassword, err := DeriveKey([]byte("p@ss1235"), salt1)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(base, otherPassword))
}

func TestDeriveKeyRejectsEmptyInput(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	_, err = DeriveKey(nil, salt)
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = DeriveKey(testPassword, nil)
	assert.True(t, IsValidationError(err))
}

func TestPBKDF2MinimumIterations(t *testing.T) {
	p := NewPasswordKeyProviderPBKDF2(testPassword, PBKDF2Params{Iterations: 1000})
	salt, err := p.GenerateSalt()
	require.NoError(t, err)

	_, err = p.DeriveKey(salt)
	assert.True(t, IsValidationError(err))
}

func TestArgon2idProvider(t *testing.T) {
	p := NewPasswordKeyProvider(testPassword, Argon2idParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})

	salt, err := p.GenerateSalt()
	require.NoError(t, err)

	k1, err := p.DeriveKey(salt)
	require.NoError(t, err)
	k2, err := p.DeriveKey(salt)
	require.NoError(t, err)
	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)

	pb, err := DeriveKey(testPassword, salt)
	require.NoError(t, err)
	assert.NotEqual(t, pb, k1)
}

func TestNewKeyProvider(t *testing.T) {
	p, err := newKeyProvider(testPassword, KDFPBKDF2SHA256, PBKDF2Params{}, Argon2idParams{})
	require.NoError(t, err)
	salt, err := p.GenerateSalt()
	require.NoError(t, err)
	got, err := p.DeriveKey(salt)
	require.NoError(t, err)
	want, err := DeriveKey(testPassword, salt)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	a, err := newKeyProvider(testPassword, KDFArgon2id, PBKDF2Params{}, Argon2idParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	require.NoError(t, err)
	ak, err := a.DeriveKey(salt)
	require.NoError(t, err)
	assert.NotEqual(t, want, ak)

	_, err = newKeyProvider(testPassword, KDF(9), PBKDF2Params{}, Argon2idParams{})
	assert.ErrorIs(t, err, ErrUnsupportedKDF)
}

func TestParseKDF(t *testing.T) {
	k, err := ParseKDF("")
	require.NoError(t, err)
	assert.Equal(t, KDFPBKDF2SHA256, k)

	k, err = ParseKDF("argon2id")
	require.NoError(t, err)
	assert.Equal(t, KDFArgon2id, k)

	_, err = ParseKDF("scrypt")
	assert.ErrorIs(t, err, ErrUnsupportedKDF)
}
