package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func fakeTerminal(s *Source, answers ...string) *bytes.Buffer {
	var out bytes.Buffer
	s.out = &out
	s.isTerminal = func(int) bool { return true }
	s.readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("eof")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
	return &out
}

func TestSourceUsesEnvironment(t *testing.T) {
	t.Setenv("SETTLECTL_TEST_PASS", "hunter2")
	src := NewSource("SETTLECTL_TEST_PASS")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("unexpected passphrase %q", got)
	}
	t.Setenv("SETTLECTL_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "hunter2" {
		t.Fatalf("expected cached passphrase, got %q", again)
	}
}

func TestSourceAcceptsExplicitEmpty(t *testing.T) {
	t.Setenv("SETTLECTL_TEST_EMPTY", "")
	got, err := NewSource("SETTLECTL_TEST_EMPTY").Get()
	if err != nil || got != "" {
		t.Fatalf("expected empty passphrase, got %q, %v", got, err)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("SETTLECTL_TEST_UNSET")
	src.isTerminal = func(int) bool { return false }
	_, err := src.Get()
	if !errors.Is(err, ErrNoTerminal) || !strings.Contains(err.Error(), "SETTLECTL_TEST_UNSET") {
		t.Fatalf("expected no terminal error naming the variable, got %v", err)
	}
}

func TestSourcePrompts(t *testing.T) {
	src := NewSource("")
	out := fakeTerminal(src, "correct horse")
	got, err := src.Get()
	if err != nil || got != "correct horse" {
		t.Fatalf("unexpected prompt result %q, %v", got, err)
	}
	if !strings.Contains(out.String(), "Keystore passphrase:") {
		t.Fatalf("prompt not written: %q", out.String())
	}
}

func TestSourceRejectsBlankPrompt(t *testing.T) {
	src := NewSource("")
	fakeTerminal(src, "   ")
	if _, err := src.Get(); !errors.Is(err, ErrBlank) {
		t.Fatalf("expected ErrBlank, got %v", err)
	}
}

func TestSourceConfirmation(t *testing.T) {
	src := NewSource("", WithConfirmation())
	fakeTerminal(src, "one", "two")
	if _, err := src.Get(); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	src = NewSource("", WithConfirmation())
	fakeTerminal(src, "same", "same")
	if got, err := src.Get(); err != nil || got != "same" {
		t.Fatalf("confirmed passphrase rejected: %q, %v", got, err)
	}
}
