package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

const (
	encFileSuffix = ".enc"
	kdfIterations = 100_000
	kdfKeyLen     = 32
	gcmNonceSize  = 12
)

// kdfSalt is static: the derived key must be reproducible from the
// passphrase alone, and the files it protects are per-user already.
var kdfSalt = []byte("bbctl_salt_v1")

// PassphraseFunc supplies the master passphrase. confirm is true when
// the passphrase will be used to encrypt new data.
type PassphraseFunc func(confirm bool) ([]byte, error)

// EncryptedFile stores each secret as an AES-256-GCM sealed blob under
// Dir, one file per key, mode 0600 inside a 0700 directory. The
// passphrase is requested on every call and never cached.
type EncryptedFile struct {
	Dir        string
	Passphrase PassphraseFunc
}

func (f *EncryptedFile) path(key string) string {
	return filepath.Join(f.Dir, key+encFileSuffix)
}

func deriveKey(passphrase []byte) []byte {
	return pbkdf2.Key(passphrase, kdfSalt, kdfIterations, kdfKeyLen, sha256.New)
}

func (f *EncryptedFile) Set(_, key, value string) error {
	passphrase, err := f.Passphrase(true)
	if err != nil {
		return fmt.Errorf("failed to read master password: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aesgcm.Seal(nonce, nonce, []byte(value), nil)

	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return &errs.ConfigError{
			Message:    fmt.Sprintf("Failed to create secret storage directory: %v", err),
			Suggestion: fmt.Sprintf("Check that %s is writable", f.Dir),
			Err:        err,
		}
	}
	if err := os.WriteFile(f.path(key), sealed, 0o600); err != nil {
		return &errs.ConfigError{
			Message:    fmt.Sprintf("Failed to store secret: %v", err),
			Suggestion: fmt.Sprintf("Check that %s is writable", f.Dir),
			Err:        err,
		}
	}
	return nil
}

func (f *EncryptedFile) Get(_, key string) (string, bool, error) {
	sealed, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(sealed) < gcmNonceSize {
		return "", false, decryptError(fmt.Errorf("ciphertext too short"))
	}

	passphrase, err := f.Passphrase(false)
	if err != nil {
		return "", false, fmt.Errorf("failed to read master password: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return "", false, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false, err
	}
	plaintext, err := aesgcm.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], nil)
	if err != nil {
		// Wrong passphrase and a corrupted file are indistinguishable
		// under an authenticated cipher; both are hard auth failures,
		// never "nothing stored".
		return "", false, decryptError(err)
	}
	return string(plaintext), true, nil
}

func (f *EncryptedFile) Delete(_, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *EncryptedFile) Description() string { return "encrypted local file" }

func decryptError(err error) error {
	return &errs.AuthError{
		Message:    fmt.Sprintf("Failed to decrypt stored data: %v", err),
		Suggestion: "Check your master password or run 'bbctl auth login' to re-authenticate",
		Err:        err,
	}
}
