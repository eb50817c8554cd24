package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/models"
)

const keyInfo = "filingstack-credentials-v1"

var (
	ErrEmptyKey     = errors.New("credentials encryption key is empty")
	ErrInvalidNonce = errors.New("stored nonce has the wrong size")
)

type Config struct {
	EncryptionKey string `env:"CREDENTIALS_ENCRYPTION_KEY,required"`
}

type credentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher derives an XChaCha20-Poly1305 key from secret. Every
// Encrypt call draws a fresh random nonce which is returned with the
// ciphertext and must be stored next to it.
func NewCredentialCipher(secret string) (interfaces.CredentialCipher, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, errors.Wrap(err, "failed to derive credentials key")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init cipher")
	}

	return &credentialCipher{aead: aead}, nil
}

func (c *credentialCipher) Encrypt(plaintext string) (models.EncryptedValue, error) {
	if plaintext == "" {
		return models.EncryptedValue{}, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedValue{}, errors.Wrap(err, "failed to generate nonce")
	}

	return models.EncryptedValue{
		Ciphertext: c.aead.Seal(nil, nonce, []byte(plaintext), nil),
		Nonce:      nonce,
	}, nil
}

func (c *credentialCipher) Decrypt(value models.EncryptedValue) (string, error) {
	if value.IsEmpty() {
		return "", nil
	}
	if len(value.Nonce) != c.aead.NonceSize() {
		return "", ErrInvalidNonce
	}

	plaintext, err := c.aead.Open(nil, value.Nonce, value.Ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt credential")
	}
	return string(plaintext), nil
}

// DecryptClientCredentials opens the app registration secrets of a client
// hosted configuration.
func DecryptClientCredentials(c interfaces.CredentialCipher, config *models.EmailConfiguration) (models.ClientCredentials, error) {
	var creds models.ClientCredentials
	var err error
	if creds.ClientID, err = c.Decrypt(config.ClientID); err != nil {
		return creds, fmt.Errorf("decrypt client id: %w: %v", apperrors.ErrConfiguration, err)
	}
	if creds.ClientSecret, err = c.Decrypt(config.ClientSecret); err != nil {
		return creds, fmt.Errorf("decrypt client secret: %w: %v", apperrors.ErrConfiguration, err)
	}
	if creds.TenantID, err = c.Decrypt(config.AzureTenantID); err != nil {
		return creds, fmt.Errorf("decrypt azure tenant id: %w: %v", apperrors.ErrConfiguration, err)
	}
	return creds, nil
}
