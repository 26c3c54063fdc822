package testutil

import (
	"gallery-go/internal/gallery"
	"gallery-go/internal/vault"
)

func NewTestVault() gallery.Vault {
	return vault.NewMemoryVault("test-vault")
}
