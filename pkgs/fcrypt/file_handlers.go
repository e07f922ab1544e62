package fcrypt

import (
	"bytes"
	"fmt"
	"strings"

	"filippo.io/age"
	"github.com/spf13/afero"
)

// Ext is the suffix of encrypted files.
const Ext = ".age"

// EncryptedPath returns the path of the encrypted counterpart of path.
func EncryptedPath(path string) string {
	if strings.HasSuffix(path, Ext) {
		return path
	}
	return path + Ext
}

// PlainPath returns the path of the decrypted counterpart of path.
func PlainPath(path string) string {
	return strings.TrimSuffix(path, Ext)
}

// ReadEncrypted decrypts the file at path into memory.
func ReadEncrypted(fsys afero.Fs, path string, identities ...age.Identity) ([]byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	if err := DecryptReader(f, &buf, identities...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return buf.Bytes(), nil
}

// EncryptInPlace replaces <path> with an encrypted <path>.age. The plaintext
// is removed once the encrypted file has been written.
func EncryptInPlace(fsys afero.Fs, path string, recipients ...age.Recipient) (string, error) {
	out := EncryptedPath(path)
	if out == path {
		return "", fmt.Errorf("file %s already has the %s extension", path, Ext)
	}

	in, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = in.Close() }()

	var buf bytes.Buffer
	if err := EncryptReader(in, &buf, recipients...); err != nil {
		return "", err
	}

	if err := afero.WriteFile(fsys, out, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}

	return out, fsys.Remove(path)
}

// DecryptInPlace replaces <path>.age with its plaintext <path>. The encrypted
// file is removed once the plaintext has been written.
func DecryptInPlace(fsys afero.Fs, path string, identities ...age.Identity) (string, error) {
	if !strings.HasSuffix(path, Ext) {
		return "", fmt.Errorf("file %s does not have the %s extension", path, Ext)
	}

	data, err := ReadEncrypted(fsys, path, identities...)
	if err != nil {
		return "", err
	}

	out := PlainPath(path)
	if err := afero.WriteFile(fsys, out, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}

	return out, fsys.Remove(path)
}
