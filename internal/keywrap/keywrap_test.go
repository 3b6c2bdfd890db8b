package keywrap

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/blazewallet/schedvault/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubPem, err := MarshalPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, pubPem
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	priv, pubPem := generateKeyPair(t)

	envelopeKey, err := envelope.GenerateKey()
	require.NoError(t, err)

	wrapped, err := Wrap(envelopeKey, pubPem)
	require.NoError(t, err)
	assert.NotEqual(t, envelopeKey, wrapped)

	unwrapped, err := Unwrap(wrapped, priv)
	require.NoError(t, err)
	assert.Equal(t, envelopeKey, unwrapped)
}

func TestUnwrapWithWrongKeyFails(t *testing.T) {
	_, pubPem := generateKeyPair(t)
	otherPriv, _ := generateKeyPair(t)

	envelopeKey, err := envelope.GenerateKey()
	require.NoError(t, err)

	wrapped, err := Wrap(envelopeKey, pubPem)
	require.NoError(t, err)

	_, err = Unwrap(wrapped, otherPriv)
	assert.ErrorIs(t, err, ErrUnwrap)
}

func TestUnwrapCorruptedCiphertext(t *testing.T) {
	priv, pubPem := generateKeyPair(t)

	envelopeKey, err := envelope.GenerateKey()
	require.NoError(t, err)

	wrapped, err := Wrap(envelopeKey, pubPem)
	require.NoError(t, err)

	wrapped[0] ^= 0x01
	_, err = Unwrap(wrapped, priv)
	assert.ErrorIs(t, err, ErrUnwrap)
}

func TestWrapRejectsBadPEM(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)

	_, err = Wrap(key, "not a pem block")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = Wrap(key, "-----BEGIN PUBLIC KEY-----\nZ2FyYmFnZQ==\n-----END PUBLIC KEY-----")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestParsePrivateKeyPKCS1AndPKCS8(t *testing.T) {
	priv, _ := generateKeyPair(t)

	// PKCS#1 via the public marshal helper is not applicable here, so
	// exercise both decode paths directly.
	pkcs1 := marshalPKCS1(t, priv)
	parsed, err := ParsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, priv.Equal(parsed))

	pkcs8 := marshalPKCS8(t, priv)
	parsed, err = ParsePrivateKey(pkcs8)
	require.NoError(t, err)
	assert.True(t, priv.Equal(parsed))
}

func TestPublicKeyPemFromDERRoundTrip(t *testing.T) {
	priv, _ := generateKeyPair(t)

	der := marshalPKIXDER(t, &priv.PublicKey)
	pemStr := PublicKeyPemFromDER(der)

	pub, err := ParsePublicKey(pemStr)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))
}
