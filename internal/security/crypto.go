package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"

	"memvault/internal/errors"
)

// keyDerivationInfo binds derived keys to this subsystem. Changing it makes
// existing ciphertext undecryptable.
const keyDerivationInfo = "memvault-chunk-encryption-v1"

// Encryptor provides AES-256-GCM authenticated encryption for chunk
// payloads. The key is derived once at construction and held read-only for
// the process lifetime; there is no rotation.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor loads (or generates) the key file and derives the AEAD key.
// Any failure here is fatal to engine construction.
func NewEncryptor(keyFile string) (*Encryptor, error) {
	material, err := loadOrCreateKey(keyFile)
	if err != nil {
		return nil, err
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, material, nil, []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(errors.ErrEncryption, err.Error())
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEncryption, err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEncryption, err.Error())
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals text with a random nonce prepended to the ciphertext.
func (e *Encryptor) Encrypt(text string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(errors.ErrEncryption, err.Error())
	}
	return e.aead.Seal(nonce, nonce, []byte(text), nil), nil
}

// Decrypt opens data produced by Encrypt. Corrupt or truncated ciphertext
// returns ErrEncryption; the caller must treat the payload as lost.
func (e *Encryptor) Decrypt(data []byte) (string, error) {
	ns := e.aead.NonceSize()
	if len(data) < ns {
		return "", errors.Wrap(errors.ErrEncryption, "ciphertext shorter than nonce")
	}
	plain, err := e.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errors.Wrap(errors.ErrEncryption, err.Error())
	}
	return string(plain), nil
}

// loadOrCreateKey reads the key file, generating 32 random bytes
// (base64-encoded, mode 0600) when it does not exist. Key material of any
// length is accepted; trailing whitespace is tolerated.
func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		material := strings.TrimSpace(string(data))
		if material == "" {
			return nil, errors.Wrapf(errors.ErrEncryption, "key file %s is empty", path)
		}
		return []byte(material), nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrEncryption, "read key file %s: %v", path, err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, errors.Wrap(errors.ErrEncryption, err.Error())
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrapf(errors.ErrEncryption, "create key dir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, errors.Wrapf(errors.ErrEncryption, "write key file %s: %v", path, err)
	}
	return []byte(encoded), nil
}
