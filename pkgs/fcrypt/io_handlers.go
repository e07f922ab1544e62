package fcrypt

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// EncryptReader encrypts r for every recipient and writes the armored result
// to w.
func EncryptReader(r io.Reader, w io.Writer, recipients ...age.Recipient) error {
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}

	armorWriter := armor.NewWriter(w)

	encryptor, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		_ = armorWriter.Close()
		return fmt.Errorf("failed to create encryptor: %w", err)
	}

	if _, err := io.Copy(encryptor, r); err != nil {
		_ = encryptor.Close()
		_ = armorWriter.Close()
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	// the age stream must be finalized before the armor footer is written
	if err := encryptor.Close(); err != nil {
		_ = armorWriter.Close()
		return fmt.Errorf("failed to finalize encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize armor: %w", err)
	}

	return nil
}

// DecryptReader decrypts armored data from r with the first matching identity
// and writes the plaintext to w.
func DecryptReader(r io.Reader, w io.Writer, identities ...age.Identity) error {
	if len(identities) == 0 {
		return errors.New("no identities")
	}

	decryptor, err := age.Decrypt(armor.NewReader(r), identities...)
	if err != nil {
		return fmt.Errorf("failed to create decryptor: %w", err)
	}

	if _, err := io.Copy(w, decryptor); err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}

	return nil
}
