package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	c, err := NewCrypto(key)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", ciphertext)

	plain, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "hunter2", plain)
}

func TestCryptoDecryptEmptyStringIsNoop(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCrypto(key)
	require.NoError(t, err)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	require.Equal(t, "", plain)
}

func TestCryptoRejectsWrongKeyLength(t *testing.T) {
	_, err := NewCrypto("dG9vc2hvcnQ=")
	require.Error(t, err)
}
