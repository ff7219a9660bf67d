package fetch

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindTransient covers timeouts, connection failures, 429 and 5xx.
	KindTransient Kind = iota
	// KindTerminal covers every 4xx other than 404.
	KindTerminal
	KindNotFound
	// KindChallenge is an anti-bot interstitial, the source is blocking us.
	KindChallenge
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindNotFound:
		return "not-found"
	case KindChallenge:
		return "challenge"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrTransient = errors.New("transient fetch failure")
	ErrTerminal  = errors.New("terminal fetch failure")
	ErrNotFound  = errors.New("not found")
	ErrChallenge = errors.New("anti-bot challenge")
)

// Error is returned by Fetcher.Fetch for every classified failure.
type Error struct {
	Kind     Kind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrTerminal:
		return e.Kind == KindTerminal
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrChallenge:
		return e.Kind == KindChallenge
	}
	return false
}

// KindOf returns the kind of a fetch error, ok is false when err did not
// come from a fetch.
func KindOf(err error) (kind Kind, ok bool) {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind, true
	}
	return 0, false
}
