package secrets

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// Keyring stores secrets in the OS-native secret facility.
type Keyring struct{}

func (Keyring) Set(namespace, key, value string) error {
	return keyring.Set(namespace, key, value)
}

func (Keyring) Get(namespace, key string) (string, bool, error) {
	value, err := keyring.Get(namespace, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (Keyring) Delete(namespace, key string) error {
	if err := keyring.Delete(namespace, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func (Keyring) Description() string { return "system keyring" }

// native wraps Keyring with fallback-file migration: once a value lands
// in the keyring, any stale encrypted file for the same key is removed.
type native struct {
	kr          Keyring
	fallbackDir string
}

func (n *native) Set(namespace, key, value string) error {
	if err := n.kr.Set(namespace, key, value); err != nil {
		return err
	}
	if n.fallbackDir != "" {
		stale := filepath.Join(n.fallbackDir, key+encFileSuffix)
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (n *native) Get(namespace, key string) (string, bool, error) {
	return n.kr.Get(namespace, key)
}

func (n *native) Delete(namespace, key string) error {
	return n.kr.Delete(namespace, key)
}

func (n *native) Description() string { return n.kr.Description() }
