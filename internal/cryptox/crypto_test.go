package cryptox

import (
	"testing"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer([]byte("host-secret"), []byte("0123456789abcdef"))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t)

	plain := common.GenerateRandByteArray(4096)
	box, err := s.Seal(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, box)

	got, err := s.Open(box)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestSealer_DistinctNonces(t *testing.T) {
	s := newTestSealer(t)

	a, err := s.Seal([]byte("chunk"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("chunk"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_TamperDetected(t *testing.T) {
	s := newTestSealer(t)

	box, err := s.Seal([]byte("chunk"))
	require.NoError(t, err)
	box[len(box)-1] ^= 0xff

	_, err = s.Open(box)
	require.Error(t, err)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	s := newTestSealer(t)
	box, err := s.Seal([]byte("chunk"))
	require.NoError(t, err)

	other, err := NewSealer([]byte("another-secret"), []byte("0123456789abcdef"))
	require.NoError(t, err)
	_, err = other.Open(box)
	require.Error(t, err)
}

func TestSealer_MalformedBox(t *testing.T) {
	s := newTestSealer(t)
	_, err := s.Open([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedBox)
}
