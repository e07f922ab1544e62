package fcrypt

import (
	"bufio"
	"fmt"
	"strings"

	"filippo.io/age"
	"github.com/spf13/afero"
)

func LoadPublicKey(key string) (*age.X25519Recipient, error) {
	ageRecipient, err := age.ParseX25519Recipient(key)
	if err != nil {
		return nil, fmt.Errorf("error parsing age public key='%s': %w", key, err)
	}

	return ageRecipient, nil
}

func LoadPrivateKey(key string) (*age.X25519Identity, error) {
	ageIdentity, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("error parsing age private key: %w", err)
	}

	return ageIdentity, nil
}

// LoadPublicKeys parses every key, stopping at the first invalid one.
func LoadPublicKeys(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		r, err := LoadPublicKey(key)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no valid recipients found")
	}

	return recipients, nil
}

// LoadIdentityFile reads an age identity file as written by age-keygen.
// Comments and blank lines are ignored.
func LoadIdentityFile(fsys afero.Fs, path string) ([]age.Identity, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity file: %w", err)
	}
	defer func() { _ = f.Close() }()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identities from %s: %w", path, err)
	}

	return identities, nil
}

// LoadRecipientsFile reads public keys, one per line. Comments and blank lines
// are ignored.
func LoadRecipientsFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			keys = append(keys, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipients file: %w", err)
	}

	return keys, nil
}
