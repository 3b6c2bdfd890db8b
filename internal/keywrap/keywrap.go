// Package keywrap binds a single-use envelope key to a long-lived RSA key
// pair. The client wraps with a widely distributable public key; only the
// private key holder (the KMS boundary) can ever unwrap. All PEM handling
// lives here so malformed keys are rejected in one place.
package keywrap

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPublicKey is returned when a PEM block cannot be parsed
	// or does not contain an RSA public key.
	ErrInvalidPublicKey = errors.New("keywrap: invalid public key")

	// ErrUnwrap is returned when the ciphertext was wrapped under a
	// different key pair or has been corrupted.
	ErrUnwrap = errors.New("keywrap: unwrap failed")
)

// Wrap encrypts raw envelope key bytes under the recipient's RSA public key
// using OAEP with SHA-256. A 256-bit key fits the OAEP payload limit at
// RSA-2048 and above.
func Wrap(envelopeKey []byte, publicKeyPem string) ([]byte, error) {
	pub, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return nil, err
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, envelopeKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return wrapped, nil
}

// Unwrap recovers envelope key bytes wrapped by Wrap. Only the KMS boundary
// service holds a private key to call this with.
func Unwrap(wrapped []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrUnwrap
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	return key, nil
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(publicKeyPem string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPem))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ParsePrivateKey decodes a PEM-encoded RSA private key, accepting both
// PKCS#1 and PKCS#8 encodings.
func ParsePrivateKey(privateKeyPem string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPem))
	if block == nil {
		return nil, errors.New("keywrap: invalid private key PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keywrap: invalid private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("keywrap: private key is not RSA")
	}
	return key, nil
}

// MarshalPublicKey encodes an RSA public key as a PEM string, the format
// handed to clients for wrapping.
func MarshalPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicKeyPemFromDER wraps raw PKIX DER bytes (as returned by AWS KMS
// GetPublicKey) into a PEM string.
func PublicKeyPemFromDER(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}
