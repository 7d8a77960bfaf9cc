package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor(t *testing.T) {
	_, err := NewEncryptor("")
	require.ErrorIs(t, err, ErrKeyEmpty)

	enc, err := NewEncryptor("correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, enc)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "short password", plaintext: "pw123"},
		{name: "unicode", plaintext: "pässwörd-密码"},
		{name: "long value", plaintext: "a very long credential value that spans more than one block of the underlying cipher"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := enc.Encrypt(tc.plaintext)
			require.NoError(t, err)

			if tc.plaintext == "" {
				assert.Empty(t, token)
			} else {
				assert.NotEqual(t, tc.plaintext, token)
			}

			got, err := enc.Decrypt(token)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, got)
		})
	}
}

func TestEncryptIsSalted(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	first, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)

	second, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)

	// A fresh salt and nonce per value must yield distinct tokens.
	assert.NotEqual(t, first, second)
}

func TestDecryptWithWrongKey(t *testing.T) {
	enc, err := NewEncryptor("the-right-key")
	require.NoError(t, err)

	token, err := enc.Encrypt("sensitive")
	require.NoError(t, err)

	other, err := NewEncryptor("the-wrong-key")
	require.NoError(t, err)

	_, err = other.Decrypt(token)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestDecryptMalformed(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%not-base64%%%"},
		{name: "too short", token: "AAAA"},
		{name: "salt only", token: "AAAAAAAAAAAAAAAAAAAAAA=="},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := enc.Decrypt(tc.token)
			require.ErrorIs(t, err, ErrMalformedCiphertext)
		})
	}
}
