package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhrase = "legal winner thank year wave sausage worth useful legal winner thank yellow"

func TestRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	ciphertext, nonce, err := Encrypt(testPhrase, key)
	require.NoError(t, err)
	require.Len(t, nonce, NonceSize)
	assert.NotContains(t, string(ciphertext), "winner")

	plaintext, err := Decrypt(ciphertext, nonce, key)
	require.NoError(t, err)
	assert.Equal(t, testPhrase, plaintext)
}

func TestKeysAreUnique(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestNoncesAreUnique(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, n1, err := Encrypt(testPhrase, key)
	require.NoError(t, err)
	_, n2, err := Encrypt(testPhrase, key)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestTamperDetection(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Encrypt(testPhrase, key)
	require.NoError(t, err)

	// flip one bit in every position of the ciphertext
	for i := range ciphertext {
		mutated := make([]byte, len(ciphertext))
		copy(mutated, ciphertext)
		mutated[i] ^= 0x01

		plaintext, err := Decrypt(mutated, nonce, key)
		assert.ErrorIs(t, err, ErrDecryption)
		assert.Empty(t, plaintext)
	}

	// flip one bit in the nonce
	badNonce := make([]byte, len(nonce))
	copy(badNonce, nonce)
	badNonce[0] ^= 0x01
	_, err = Decrypt(ciphertext, badNonce, key)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestWrongKeyFails(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	otherKey, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Encrypt(testPhrase, key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, nonce, otherKey)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestBadKeySize(t *testing.T) {
	_, _, err := Encrypt(testPhrase, []byte("short"))
	assert.Error(t, err)

	_, err = Decrypt([]byte("x"), make([]byte, NonceSize), []byte("short"))
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	Zero(key)
	for _, b := range key {
		assert.Zero(t, b)
	}
}
