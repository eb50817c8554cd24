package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoIDWithPrefix returns ids like "tnt_k3x9...". Panics only if the
// system random source fails.
func GenerateNanoIDWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(idAlphabet, size)
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}
