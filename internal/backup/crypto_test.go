package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt 2: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := deriveKey("passphrase", salt)
	key2 := deriveKey("passphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}

	other := deriveKey("other", salt)
	if bytes.Equal(key1, other) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}

	original := []byte("shopping list snapshot payload")
	encrypted, err := Encrypt(original, "passphrase-123", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if bytes.Contains(encrypted, original) {
		t.Error("ciphertext should not contain plaintext")
	}
	if !bytes.Equal(encrypted[:saltSize], salt) {
		t.Error("output should start with salt")
	}

	decrypted, err := Decrypt(encrypted, "passphrase-123")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, original) {
		t.Error("decrypted content should match original")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	encrypted, err := Encrypt([]byte("secret data"), "correct-password", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := Decrypt(encrypted, "wrong-password"); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	salt, _ := GenerateSalt()
	encrypted, err := Encrypt([]byte("secret data"), "password", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	encrypted[saltSize+nonceSize+1] ^= 0xFF

	if _, err := Decrypt(encrypted, "password"); err == nil {
		t.Fatal("expected error with tampered ciphertext")
	}
}

func TestDecryptTooSmall(t *testing.T) {
	if _, err := Decrypt([]byte("too short"), "password"); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "lists.db")
	encPath := filepath.Join(dir, "lists.db.enc")
	decPath := filepath.Join(dir, "restored.db")

	original := []byte("sqlite database contents")
	if err := os.WriteFile(srcPath, original, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}

	if err := EncryptFile(srcPath, encPath, "passphrase", salt); err != nil {
		t.Fatalf("encrypt file: %v", err)
	}
	if err := DecryptFile(encPath, decPath, "passphrase"); err != nil {
		t.Fatalf("decrypt file: %v", err)
	}

	restored, err := os.ReadFile(decPath)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Error("restored content should match original")
	}
}

func TestEncryptEmptyFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "empty.db")
	encPath := filepath.Join(dir, "empty.db.enc")
	decPath := filepath.Join(dir, "empty-restored.db")

	if err := os.WriteFile(srcPath, nil, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	salt, _ := GenerateSalt()
	if err := EncryptFile(srcPath, encPath, "password", salt); err != nil {
		t.Fatalf("encrypt empty file: %v", err)
	}
	if err := DecryptFile(encPath, decPath, "password"); err != nil {
		t.Fatalf("decrypt empty file: %v", err)
	}

	restored, _ := os.ReadFile(decPath)
	if len(restored) != 0 {
		t.Errorf("expected empty restored file, got %d bytes", len(restored))
	}
}
