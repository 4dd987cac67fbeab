package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	MinCipherSecretLength = 32
	cipherTagSize         = chacha20poly1305.Overhead
)

var (
	ErrCipherSecretTooShort = errors.New("encryption secret must be at least 32 characters long")
	ErrInvalidCiphertext    = errors.New("invalid encrypted payload")
)

// SecretCipher seals small secrets (TOTP seeds) for storage.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type AEADCipher struct {
	key []byte
}

// NewCipher derives a 256-bit key as SHA-256 of secret.
func NewCipher(secret string) (*AEADCipher, error) {
	if len(secret) < MinCipherSecretLength {
		return nil, ErrCipherSecretTooShort
	}
	sum := sha256.Sum256([]byte(secret))
	return &AEADCipher{key: sum[:]}, nil
}

// Encrypt returns base64(nonce | tag | ciphertext).
func (c *AEADCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-cipherTagSize], sealed[len(sealed)-cipherTagSize:]

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, body...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *AEADCipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	ns := aead.NonceSize()
	if len(data) < ns+cipherTagSize {
		return "", ErrInvalidCiphertext
	}
	nonce := data[:ns]
	tag := data[ns : ns+cipherTagSize]
	body := data[ns+cipherTagSize:]

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
