package secrets

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

const probeKey = "availability_probe"

// Select probes the OS keyring once and returns the backend to use for
// the remainder of the process. When the keyring is unusable the
// encrypted-file fallback is returned and a one-time warning is printed
// to warn.
func Select(fallbackDir string, passphrase PassphraseFunc, warn io.Writer) Backend {
	if keyringAvailable() {
		return &native{fallbackDir: fallbackDir}
	}
	_, _ = fmt.Fprintln(warn, "Warning: system keyring is unavailable; falling back to encrypted local storage.")
	_, _ = fmt.Fprintln(warn, "For better security, consider setting up a system keyring.")
	return &EncryptedFile{Dir: fallbackDir, Passphrase: passphrase}
}

// keyringAvailable writes a throwaway entry, reads it back, and deletes
// it. Any failure, including a mismatched read-back, marks the keyring
// unavailable.
func keyringAvailable() bool {
	var kr Keyring
	probe := uuid.NewString()
	if err := kr.Set(Namespace, probeKey, probe); err != nil {
		return false
	}
	value, found, err := kr.Get(Namespace, probeKey)
	_ = kr.Delete(Namespace, probeKey)
	return err == nil && found && value == probe
}
