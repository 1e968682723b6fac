package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeyEnv is the environment variable holding a hex encoded 32-byte key.
const KeyEnv = "RULEAST_MASTER_KEY"

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrInvalidKey is returned for keys that are not KeySize bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes")

// LoadKey returns the snapshot key from the environment, then from keyPath,
// generating and saving a new key there if neither holds a valid one.
// The second result reports whether a new key was generated.
func LoadKey(keyPath string) ([]byte, bool, error) {
	// 1. Check Environmental Variable
	if envKey := os.Getenv(KeyEnv); envKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(envKey))
		if err == nil && len(key) == KeySize {
			return key, false, nil
		}
	}

	// 2. Check Key File
	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err == nil && len(key) == KeySize {
			return key, false, nil
		}
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	// 3. Generate New Key
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save key to %s: %w", keyPath, err)
	}
	return key, true, nil
}

// Cipher seals and opens data with AES-GCM.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher creates a Cipher for a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt returns Nonce + Ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return c.gcm.Open(nil, nonce, ciphertext, nil)
}
