// Package snapcrypto encrypts the re-exec/crash-backup state blob
// (spec §6.4) at rest using age, rehomed from the teacher's secrets
// package (which used age to decrypt bootstrap secret bundles) to the
// opposite direction: encrypting a snapshot before it touches disk.
package snapcrypto

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// LoadOrCreateIdentity reads an X25519 identity from path, generating
// and persisting a fresh one if the file does not exist yet. The
// supervisor's own restart path needs this identity to be stable
// across re-execs, since --state-fd hands the next process a blob
// encrypted under the previous process's key.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseIdentity(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read snapshot key %s: %w", path, err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate snapshot key: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write snapshot key %s: %w", path, err)
	}
	return identity, nil
}

func parseIdentity(data []byte) (*age.X25519Identity, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot key: %w", err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("snapshot key file has no identity line")
}

// Encrypt wraps plaintext (a spec §6.4 snapshot blob) in an age
// envelope addressed to identity's own public key, so whichever
// process holds the key file can decrypt it again after re-exec or
// crash recovery.
func Encrypt(identity *age.X25519Identity, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("open age writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("write snapshot plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close age writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt reverses Encrypt. Per spec §7's re-exec recovery strategy,
// callers should treat any error here as "proceed as a fresh boot"
// rather than a fatal condition.
func Decrypt(identity *age.X25519Identity, ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("open age reader: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot plaintext: %w", err)
	}
	return plaintext, nil
}
