// Package passphrase resolves keystore passphrases for the burnrouter
// commands.
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

var (
	ErrNoTerminal = errors.New("passphrase: no terminal available")
	ErrBlank      = errors.New("passphrase: prompted passphrase cannot be blank")
	ErrMismatch   = errors.New("passphrase: confirmation does not match")
)

// Option customises a Source.
type Option func(*Source)

// WithConfirmation asks for the passphrase twice when prompting. Used when a
// new keystore is being written.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// Source resolves a passphrase once, from an environment variable or by
// prompting on the controlling terminal, and caches the result.
type Source struct {
	envVar  string
	confirm bool

	fd           int
	out          io.Writer
	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)

	once  sync.Once
	value string
	err   error
}

func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{
		envVar:       strings.TrimSpace(envVar),
		fd:           int(os.Stdin.Fd()),
		out:          os.Stderr,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the passphrase. A set environment variable wins and is used
// verbatim, including the empty value that unlocks keystores generated by
// config.Load. Prompted passphrases must not be blank.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				s.value = value
				return
			}
		}
		s.value, s.err = s.prompt()
	})
	return s.value, s.err
}

func (s *Source) prompt() (string, error) {
	if !s.isTerminal(s.fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("%w: set %s", ErrNoTerminal, s.envVar)
		}
		return "", ErrNoTerminal
	}
	first, err := s.read("Keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", ErrBlank
	}
	if s.confirm {
		second, err := s.read("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func (s *Source) read(label string) (string, error) {
	fmt.Fprint(s.out, label)
	raw, err := s.readPassword(s.fd)
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("passphrase: read: %w", err)
	}
	return string(raw), nil
}
