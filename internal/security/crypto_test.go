package security

import (
	"os"
	"path/filepath"
	"testing"

	"memvault/internal/errors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	cases := []string{
		"",
		"hello world",
		"multi\nline\ntext with unicode: héllo wörld 你好",
		string(make([]byte, 64*1024)),
	}
	for _, text := range cases {
		ct, err := enc.Encrypt(text)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if got != text {
			t.Errorf("round-trip mismatch for %d-byte input", len(text))
		}
	}
}

func TestEncryptProducesDistinctCiphertext(t *testing.T) {
	enc, err := NewEncryptor(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	a, _ := enc.Encrypt("same input")
	b, _ := enc.Encrypt("same input")
	if string(a) == string(b) {
		t.Error("two encryptions of the same input must differ (random nonce)")
	}
}

func TestDecryptCorruptCiphertext(t *testing.T) {
	enc, err := NewEncryptor(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	ct, _ := enc.Encrypt("payload")
	ct[len(ct)-1] ^= 0xff

	_, err = enc.Decrypt(ct)
	if !errors.IsEncryption(err) {
		t.Errorf("expected ErrEncryption for corrupt ciphertext, got %v", err)
	}

	_, err = enc.Decrypt([]byte{0x01})
	if !errors.IsEncryption(err) {
		t.Errorf("expected ErrEncryption for truncated ciphertext, got %v", err)
	}
}

func TestKeyFilePersistsAcrossConstruction(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key")

	enc1, err := NewEncryptor(keyFile)
	if err != nil {
		t.Fatalf("first construction: %v", err)
	}
	ct, _ := enc1.Encrypt("survives restart")

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 0600", info.Mode().Perm())
	}

	// A second encryptor from the same file must decrypt the first's output.
	enc2, err := NewEncryptor(keyFile)
	if err != nil {
		t.Fatalf("second construction: %v", err)
	}
	got, err := enc2.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt with reloaded key: %v", err)
	}
	if got != "survives restart" {
		t.Errorf("got %q", got)
	}
}

func TestEmptyKeyFileIsFatal(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewEncryptor(keyFile)
	if !errors.IsEncryption(err) {
		t.Errorf("expected ErrEncryption for empty key file, got %v", err)
	}
}
