// Package algos wraps the cryptographic primitives mandated by the Cipherise
// protocol: RSA PKCS#1 v1.5 signatures & encryption over SHA-256 digests, and
// the AES-256-CFB symmetric envelope used for payload exchange.
package algos

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

const (
	// ServiceKeyBits is the modulus size of Service keypairs.
	// Fixed by the protocol, device apps expect it.
	ServiceKeyBits = 1024

	publicKeyPEMType = "RSA PUBLIC KEY"
)

// GenerateKey generates a fresh Service RSA keypair.
func GenerateKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, ServiceKeyBits)
	return key, wrapError(err, "failed RSA key generation") // nil if err is nil
}

// ExportPrivateKeyDER returns the PKCS#1 DER encoding of key.
func ExportPrivateKeyDER(key *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(key)
}

// ParsePrivateKeyDER parses a PKCS#1 DER encoded private key.
func ParsePrivateKeyDER(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	return key, wrapError(err, "failed parsing private key DER") // nil if err is nil
}

// ExportPublicKeyPEM returns the PKCS#1 PEM encoding of key.
// This is the exact form hashed into key binding signatures, it must not vary.
func ExportPublicKeyPEM(key *rsa.PublicKey) string {
	block := pem.Block{Type: publicKeyPEMType, Bytes: x509.MarshalPKCS1PublicKey(key)}
	return string(pem.EncodeToMemory(&block))
}

// ParsePublicKeyPEM parses a PKCS#1 PEM encoded public key.
func ParsePublicKeyPEM(pemtext string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemtext))
	if nil == block || block.Type != publicKeyPEMType {
		return nil, newError("value is not a %s PEM block", publicKeyPEMType)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	return key, wrapError(err, "failed parsing public key DER") // nil if err is nil
}

// SignDigest signs a SHA-256 digest with key using RSA PKCS#1 v1.5.
func SignDigest(key *rsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	return sig, wrapError(err, "failed RSA signature") // nil if err is nil
}

// VerifyDigest reports whether sig is a valid PKCS#1 v1.5 signature of a
// SHA-256 digest under key.
func VerifyDigest(key *rsa.PublicKey, digest, sig []byte) bool {
	return nil == rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, sig)
}

// EncryptRSA encrypts data to key using RSA PKCS#1 v1.5.
func EncryptRSA(key *rsa.PublicKey, data []byte) ([]byte, error) {
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, key, data)
	return enc, wrapError(err, "failed RSA encryption") // nil if err is nil
}

// DecryptRSA decrypts a RSA PKCS#1 v1.5 ciphertext with key.
func DecryptRSA(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	dec, err := rsa.DecryptPKCS1v15(rand.Reader, key, data)
	return dec, wrapError(err, "failed RSA decryption") // nil if err is nil
}
