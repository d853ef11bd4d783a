package algos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
)

const (
	// SymKeySize is the AES-256 key length of the payload envelope.
	SymKeySize = 32

	// IVSize is the CFB initialization vector length, appended to the ciphertext.
	IVSize = aes.BlockSize
)

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}

// EncryptCFB encrypts plaintext under a fresh random AES-256 key in CFB mode.
// It returns ciphertext‖IV and the generated key.
func EncryptCFB(plaintext []byte) (data, key []byte, err error) {
	key = make([]byte, SymKeySize)
	_, err = rand.Read(key)
	if nil != err {
		return nil, nil, wrapError(err, "failed symmetric key generation")
	}

	iv := make([]byte, IVSize)
	_, err = rand.Read(iv)
	if nil != err {
		return nil, nil, wrapError(err, "failed IV generation")
	}

	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, nil, wrapError(err, "failed AES cipher creation")
	}

	data = make([]byte, len(plaintext)+IVSize)
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(data, plaintext)
	copy(data[len(plaintext):], iv)

	return data, key, nil
}

// DecryptCFB decrypts a ciphertext‖IV buffer produced by EncryptCFB.
// It errors if data is not longer than the trailing IV.
func DecryptCFB(key, data []byte) ([]byte, error) {
	if len(data) <= IVSize {
		return nil, newError("encrypted data too short, %d <= %d", len(data), IVSize)
	}

	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed AES cipher creation")
	}

	ciphertext, iv := data[:len(data)-IVSize], data[len(data)-IVSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}
