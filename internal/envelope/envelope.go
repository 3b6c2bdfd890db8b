package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the envelope key length in bytes (AES-256).
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes (96 bits).
	NonceSize = 12
)

// ErrDecryption is returned when authenticated decryption fails: a tampered
// ciphertext or nonce, or the wrong key. No partial plaintext is ever
// returned alongside it.
var ErrDecryption = errors.New("envelope: decryption failed")

// GenerateKey produces a fresh 256-bit envelope key from the OS CSPRNG.
// Keys are single-use: one key encrypts exactly one recovery phrase and is
// never derived from user input.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("envelope: key generation failed: %w", err)
	}
	return key, nil
}

// Encrypt seals a recovery phrase under the given envelope key with
// AES-256-GCM. A fresh nonce is generated per call and returned separately
// so it can be stored alongside the ciphertext.
//
// Parameters:
// - plaintext string: The recovery phrase, encoded as UTF-8 before sealing.
// - key []byte: A KeySize-byte envelope key.
//
// Returns:
// - []byte: The ciphertext including the GCM authentication tag.
// - []byte: The nonce used for this encryption.
// - error: An error if the key is malformed or the random source fails.
func Encrypt(plaintext string, key []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("envelope: nonce generation failed: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a ciphertext produced by Encrypt. It returns ErrDecryption
// if the authentication tag does not verify.
func Decrypt(ciphertext, nonce, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(nonce) != NonceSize {
		return "", ErrDecryption
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// Zero overwrites key material in place. Best effort: the runtime may have
// copied the slice's backing array before this runs.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("envelope: expected %d-byte key, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
