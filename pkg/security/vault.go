package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// Vault seals and opens small secrets with AES-256-GCM. Sealed blobs carry
// the nonce prepended, so each one is self-contained.
type Vault struct {
	key []byte // 32 bytes for AES-256
}

// NewVault creates a vault from a raw 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// NewVaultFromPassphrase derives the key from a passphrase with SHA-256.
func NewVaultFromPassphrase(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault passphrase cannot be empty")
	}
	hash := sha256.Sum256([]byte(passphrase))
	return NewVault(hash[:])
}

// Seal encrypts plaintext and prepends the nonce.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot seal empty data")
	}
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed blob too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed blob: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
