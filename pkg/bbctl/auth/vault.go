package auth

import (
	"encoding/json"

	"github.com/forgecli/bbctl/pkg/bbctl/secrets"
)

const credentialsKey = "credentials"

// Vault stores the single basic-auth credential pair. Store and Delete
// fail soft (return false) so callers can warn instead of crash; Get
// distinguishes "nothing stored" from "stored but unreadable", the
// latter surfacing as an authentication error from the backend.
type Vault struct {
	Backend secrets.Backend
}

func (v *Vault) Store(creds Credentials) bool {
	payload, err := json.Marshal(creds)
	if err != nil {
		return false
	}
	return v.Backend.Set(secrets.Namespace, credentialsKey, string(payload)) == nil
}

func (v *Vault) Get() (Credentials, bool, error) {
	payload, found, err := v.Backend.Get(secrets.Namespace, credentialsKey)
	if err != nil || !found {
		return Credentials{}, false, err
	}
	var creds Credentials
	if json.Unmarshal([]byte(payload), &creds) != nil {
		// Decrypted fine but holds no parseable record: treat as absent.
		return Credentials{}, false, nil
	}
	return creds, true, nil
}

func (v *Vault) Delete() bool {
	return v.Backend.Delete(secrets.Namespace, credentialsKey) == nil
}

func (v *Vault) Has() bool {
	_, found, err := v.Get()
	return err == nil && found
}
