// Package secret is the app-level reversible message cipher. The key is a
// static application secret, so this is obfuscation at rest, not a security
// boundary; per-conversation key agreement would replace it.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"
)

const envelopePrefix = "enc:v1:"

type Cipher struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from the shared secret with HKDF-SHA256 and
// returns an AES-GCM cipher around it.
func New(appSecret string) (*Cipher, error) {
	h := hkdf.New(sha256.New, []byte(appSecret), nil, []byte("pingme-message-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals text into a base64 envelope. Empty input passes through.
func (c *Cipher) Encrypt(text string) (string, error) {
	if text == "" {
		return text, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(text), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. Input that is not a valid
// envelope is returned unchanged, so plaintext from before encryption was
// introduced still renders.
func (c *Cipher) Decrypt(text string) string {
	if len(text) <= len(envelopePrefix) || text[:len(envelopePrefix)] != envelopePrefix {
		return text
	}
	raw, err := base64.StdEncoding.DecodeString(text[len(envelopePrefix):])
	if err != nil || len(raw) < c.aead.NonceSize() {
		return text
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return text
	}
	return string(plain)
}
