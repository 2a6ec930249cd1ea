package timing

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindExecution Kind = iota
	KindAppNotFound
	KindAppNotRunning
	KindPermissionDenied
	KindSubscriptionRequired
	KindParsing
)

func (k Kind) String() string {
	switch k {
	case KindAppNotFound:
		return "AppNotFound"
	case KindAppNotRunning:
		return "AppNotRunning"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindSubscriptionRequired:
		return "SubscriptionRequired"
	case KindParsing:
		return "ParsingError"
	default:
		return "ExecutionError"
	}
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrAppNotFound          = &FetchError{Kind: KindAppNotFound}
	ErrAppNotRunning        = &FetchError{Kind: KindAppNotRunning}
	ErrPermissionDenied     = &FetchError{Kind: KindPermissionDenied}
	ErrSubscriptionRequired = &FetchError{Kind: KindSubscriptionRequired}
	ErrParsing              = &FetchError{Kind: KindParsing}
	ErrExecution            = &FetchError{Kind: KindExecution}
)

type FetchError struct {
	Kind     Kind
	Strategy string
	Err      error
}

func (e *FetchError) Error() string {
	msg := e.Kind.String()
	if e.Strategy != "" {
		msg = e.Strategy + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether trying again may succeed without user action.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindExecution || e.Kind == KindParsing
}

// IsRetryable reports whether err is a FetchError worth retrying. Errors of other
// types are treated as transient.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return true
}

// AppleScript error numbers that osascript prints to stderr.
var stderrKinds = []struct {
	needle string
	kind   Kind
}{
	{"(-1743)", KindPermissionDenied},
	{"not authorized to send apple events", KindPermissionDenied},
	{"(-600)", KindAppNotRunning},
	{"isn't running", KindAppNotRunning},
	{"(-10814)", KindAppNotFound},
	{"(-1728)", KindAppNotFound},
	{"can't get application", KindAppNotFound},
	{"can’t get application", KindAppNotFound},
	{"unable to find application", KindAppNotFound},
	{"subscription", KindSubscriptionRequired},
	{"timing connect", KindSubscriptionRequired},
	{"requires timing expert", KindSubscriptionRequired},
}

// classify maps a failed osascript run to a FetchError.
func classify(strategy string, stderr []byte, err error) *FetchError {
	if errors.Is(err, exec.ErrNotFound) {
		return &FetchError{Kind: KindAppNotFound, Strategy: strategy, Err: fmt.Errorf("osascript not available: %w", err)}
	}

	msg := strings.TrimSpace(string(stderr))
	lower := strings.ToLower(msg)
	kind := KindExecution
	for _, k := range stderrKinds {
		if strings.Contains(lower, k.needle) {
			kind = k.kind
			break
		}
	}

	switch {
	case err == nil:
		err = errors.New(msg)
	case msg != "":
		err = fmt.Errorf("%w: %s", err, msg)
	}
	return &FetchError{Kind: kind, Strategy: strategy, Err: err}
}
