package testutil

import (
	"gallery-go/internal/encryption"
	"gallery-go/internal/gallery"
)

func NewTestEncryptor() gallery.Encryptor {
	return encryption.NewTestEncryptor()
}
