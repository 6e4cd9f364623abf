package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrUnavailable is returned when no passphrase is configured and there is
// no terminal to prompt on.
var ErrUnavailable = errors.New("passphrase: not set and no terminal available")

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The first result is cached.
type Source struct {
	envVar string
	prompt string

	lookupEnv    func(string) (string, bool)
	isTerminal   func() bool
	readPassword func() ([]byte, error)
	out          io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the terminal with prompt.
func NewSource(envVar, prompt string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		prompt:       prompt,
		lookupEnv:    os.LookupEnv,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
		out:          os.Stderr,
	}
}

// Get returns the cached passphrase or resolves it on first use. An
// environment value is used verbatim; a prompted value must not be blank.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%w: set %s or run interactively", ErrUnavailable, s.envVar)
			} else {
				s.err = ErrUnavailable
			}
			return
		}

		fmt.Fprintf(s.out, "%s: ", s.prompt)
		raw, err := s.readPassword()
		fmt.Fprintln(s.out)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("passphrase cannot be empty")
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
