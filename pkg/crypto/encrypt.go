package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// Encrypt seals plaintext with AES-256-GCM under key and returns a
// base64-encoded nonce||ciphertext string suitable for storage in a
// metadata file or log field.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// GCM appends the authentication tag; the nonce is prefixed so
	// Decrypt can recover it without a separate field.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertextData := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey returns a cryptographically random 32-byte AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyString is GenerateKey for callers that store the key as an
// env var rather than raw bytes.
func GenerateKeyString() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// ValidateKey checks key is the right length for AES-256.
func ValidateKey(key []byte) error {
	if len(key) != 32 {
		return ErrInvalidKeyLength
	}
	return nil
}

func EncryptWithKeyString(plaintext, keyString string) (string, error) {
	return Encrypt(plaintext, []byte(keyString))
}

func DecryptWithKeyString(ciphertextBase64, keyString string) (string, error) {
	return Decrypt(ciphertextBase64, []byte(keyString))
}

// CredentialRef is the sealed form of the Kalshi credential the engine
// holds in memory. It never carries the api key or private key path in
// the clear, so it is safe to write into the trade log's companion
// metadata file or attach to a startup log line.
type CredentialRef struct {
	APIKeyFingerprint string `json:"api_key_fingerprint"`
	SealedAPIKey      string `json:"sealed_api_key"`
	SealedKeyPath     string `json:"sealed_private_key_path"`
	UseDemo           bool   `json:"use_demo"`
}

// SealCredential encrypts apiKey and privateKeyPath under key and returns
// a CredentialRef fit for on-disk metadata.
func SealCredential(apiKey, privateKeyPath string, useDemo bool, key []byte) (CredentialRef, error) {
	sealedKey, err := Encrypt(apiKey, key)
	if err != nil {
		return CredentialRef{}, err
	}
	sealedPath, err := Encrypt(privateKeyPath, key)
	if err != nil {
		return CredentialRef{}, err
	}
	return CredentialRef{
		APIKeyFingerprint: FingerprintAPIKey(apiKey),
		SealedAPIKey:      sealedKey,
		SealedKeyPath:     sealedPath,
		UseDemo:           useDemo,
	}, nil
}

// FingerprintAPIKey returns a short, non-reversible tag derived from an
// API key: its last 4 characters, or "****" if it is shorter than that.
// Operators can use it to tell which credential a metadata file belongs
// to without the key itself ever touching disk.
func FingerprintAPIKey(apiKey string) string {
	if len(apiKey) < 4 {
		return "****"
	}
	return "..." + apiKey[len(apiKey)-4:]
}
