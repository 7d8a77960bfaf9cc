// Package secret provides reversible encryption for credential fields that
// must be recoverable, such as the VPN password embedded in generated client
// configurations. Hashing is not an option for these fields.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen     = 32 // AES-256
	iterations = 10000
	saltLen    = 16
)

var (
	// ErrKeyEmpty is returned when the encryption key material is empty.
	ErrKeyEmpty = errors.New("encryption key cannot be empty")

	// ErrMalformedCiphertext is returned when a stored value cannot be decoded.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// Encryptor encrypts and decrypts short strings with AES-256-GCM. The key is
// derived from a configured passphrase with PBKDF2; a fresh random salt and
// nonce are used per value, so equal plaintexts produce distinct ciphertexts.
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor from the configured passphrase.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, ErrKeyEmpty
	}

	return &Encryptor{passphrase: []byte(passphrase)}, nil
}

// Encrypt returns a base64 token of salt || nonce || sealed plaintext.
// Empty input encrypts to the empty string.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	token := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	token = append(token, salt...)
	token = append(token, nonce...)
	token = append(token, sealed...)

	return base64.StdEncoding.EncodeToString(token), nil
}

// Decrypt reverses Encrypt. The empty string decrypts to the empty string.
func (e *Encryptor) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	if len(raw) < saltLen {
		return "", ErrMalformedCiphertext
	}

	salt, rest := raw[:saltLen], raw[saltLen:]

	gcm, err := e.aead(salt)
	if err != nil {
		return "", err
	}

	if len(rest) < gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	return string(plaintext), nil
}

// aead builds the AES-GCM cipher for the given salt.
func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
