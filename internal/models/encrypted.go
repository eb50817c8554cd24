package models

// EncryptedValue is an AEAD ciphertext plus the random nonce it was sealed
// with. Embedded with a column prefix so each secret gets its own pair.
type EncryptedValue struct {
	Ciphertext []byte `gorm:"column:ciphertext;type:bytea" json:"-"`
	Nonce      []byte `gorm:"column:nonce;type:bytea" json:"-"`
}

func (v EncryptedValue) IsEmpty() bool {
	return len(v.Ciphertext) == 0
}
