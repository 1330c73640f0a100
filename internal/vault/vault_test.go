package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New("correct-horse-battery-staple")
	require.NoError(t, err)

	sealed, err := v.Seal("ya29.refresh-token-value")
	require.NoError(t, err)
	require.NotEmpty(t, sealed)
	require.NotContains(t, sealed, "ya29")

	opened, err := v.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "ya29.refresh-token-value", opened)
}

func TestEmptyStringRoundTrips(t *testing.T) {
	v, err := New("key")
	require.NoError(t, err)

	sealed, err := v.Seal("")
	require.NoError(t, err)
	require.Equal(t, "", sealed)

	opened, err := v.Open("")
	require.NoError(t, err)
	require.Equal(t, "", opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	v, err := New("key")
	require.NoError(t, err)

	sealed, err := v.Seal("secret")
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-1] ^= 0x01
	_, err = v.Open(string(tampered))
	require.Error(t, err)
}

func TestWrongKeyCannotOpen(t *testing.T) {
	v1, err := New("key-one")
	require.NoError(t, err)
	v2, err := New("key-two")
	require.NoError(t, err)

	sealed, err := v1.Seal("secret")
	require.NoError(t, err)

	_, err = v2.Open(sealed)
	require.Error(t, err)
}
