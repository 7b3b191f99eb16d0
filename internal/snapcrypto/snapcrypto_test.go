package snapcrypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateIdentityGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.key")

	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected identity file to be written: %v", err)
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("reload identity: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("expected reloading to return the same identity, got different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.key")
	identity, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	plaintext := []byte(`{"jobs":[{"class":"web","state":"RUNNING"}]}`)
	ciphertext, err := Encrypt(identity, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(ciphertext) == 0 {
		t.Fatalf("expected non-empty ciphertext")
	}

	decrypted, err := Decrypt(identity, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptFailsWithWrongIdentity(t *testing.T) {
	pathA := filepath.Join(t.TempDir(), "a.key")
	pathB := filepath.Join(t.TempDir(), "b.key")
	idA, err := LoadOrCreateIdentity(pathA)
	if err != nil {
		t.Fatalf("create identity A: %v", err)
	}
	idB, err := LoadOrCreateIdentity(pathB)
	if err != nil {
		t.Fatalf("create identity B: %v", err)
	}

	ciphertext, err := Encrypt(idA, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(idB, ciphertext); err == nil {
		t.Fatalf("expected decrypt under the wrong identity to fail")
	}
}

func TestLoadOrCreateIdentityRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.key")
	if err := os.WriteFile(path, []byte("not an age identity\n"), 0o600); err != nil {
		t.Fatalf("write corrupt key file: %v", err)
	}
	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Fatalf("expected an error loading a corrupt identity file")
	}
}
