package interfaces

import "github.com/imsportal/filingstack/internal/models"

type CredentialCipher interface {
	Encrypt(plaintext string) (models.EncryptedValue, error)
	Decrypt(value models.EncryptedValue) (string, error)
}
