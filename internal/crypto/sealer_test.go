package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("correct horse", minIterations)
	require.NoError(t, err)

	plain := []byte(`{"version":1,"positions":[]}`)
	sealed, err := s.Seal(plain)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, string(sealed), "positions")

	got, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	again, err := s.Seal(plain)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh salt and nonce per seal")
}

func TestOpenWrongPassphrase(t *testing.T) {
	a, err := NewSealer("one", minIterations)
	require.NoError(t, err)
	b, err := NewSealer("two", minIterations)
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestNewSealerValidation(t *testing.T) {
	_, err := NewSealer("", 0)
	assert.Error(t, err)
	_, err = NewSealer("x", 10)
	assert.Error(t, err)

	s, err := NewSealer("x", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, s.iterations)
}

func TestIsSealed(t *testing.T) {
	assert.False(t, IsSealed([]byte(`{"version":1,"positions":[]}`)))
	assert.False(t, IsSealed([]byte("plain text")))
	assert.False(t, IsSealed(nil))
}
