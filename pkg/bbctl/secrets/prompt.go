package secrets

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// ReadSecret prints a prompt to w and reads a line from the terminal
// without echo.
func ReadSecret(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	value, err := readPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// TerminalPassphrase returns a PassphraseFunc that prompts on the
// terminal every time it is called.
func TerminalPassphrase(w io.Writer) PassphraseFunc {
	return func(confirm bool) ([]byte, error) {
		if confirm {
			return ReadSecret(w, "Enter a master password to encrypt your credentials: ")
		}
		return ReadSecret(w, "Enter your master password: ")
	}
}
