// Package secrets provides durable storage for credentials behind a
// uniform backend interface: the OS keyring when available, an
// encrypted file otherwise. The backend is selected once per process.
package secrets

// Backend stores opaque named secrets. Implementations must treat a
// missing entry as (found=false, nil error); errors are reserved for
// storage that exists but cannot be used.
type Backend interface {
	Set(namespace, key, value string) error
	Get(namespace, key string) (value string, found bool, err error)
	Delete(namespace, key string) error

	// Description names the backend for status output.
	Description() string
}

// Namespace scopes bbctl entries in the native keyring. File-backed
// storage derives file names from the key alone.
const Namespace = "bbctl"
