package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmptySecret is returned when no key material is configured.
var ErrEmptySecret = errors.New("crypto: empty secret")

// deriveKey normalizes key material to 32 bytes using SHA-256.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func newGCM(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptString seals plaintext with AES-GCM. The nonce is prepended to the ciphertext.
func EncryptString(secret string, plaintext string) ([]byte, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// DecryptToString opens data produced by EncryptString.
func DecryptToString(secret string, payload []byte) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(payload) < nonceSize {
		return "", io.ErrUnexpectedEOF
	}
	plain, err := gcm.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptJSON marshals v and seals the result.
func EncryptJSON(secret string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal sealed value: %w", err)
	}
	return EncryptString(secret, string(raw))
}

// DecryptJSON opens payload and unmarshals it into v. An empty payload leaves v untouched.
func DecryptJSON(secret string, payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	plain, err := DecryptToString(secret, payload)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(plain), v)
}
