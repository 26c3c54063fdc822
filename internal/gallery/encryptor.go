package gallery

import "io"

// Encryptor protects backups and export archives. Encrypting needs only the
// public key; decrypting needs the passphrase that unlocks the private key.
type Encryptor interface {
	// Setup generates the key pair. The private key is stored encrypted with passphrase.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a DecryptionContext, or an error for a wrong passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
