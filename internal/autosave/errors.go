package autosave

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityLookupFailed means the acting user could not be resolved from the credential.
	ErrIdentityLookupFailed = errors.New("identity lookup failed")
	// ErrPersistenceRequestFailed means the server rejected the save or answered with something unusable.
	ErrPersistenceRequestFailed = errors.New("persistence request failed")
	// ErrTransportFailed means the request never got a response.
	ErrTransportFailed = errors.New("transport failed")
)

// SaveError is returned by Backend implementations and by Flush. Kind is one of
// the sentinel errors above.
type SaveError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *SaveError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	}
	return e.Kind.Error()
}

func (e *SaveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps any error into a *SaveError. Errors that already carry a kind keep
// it; anything else is attributed to fallback.
func classify(err error, fallback error) *SaveError {
	var se *SaveError
	if errors.As(err, &se) {
		return se
	}
	for _, kind := range []error{ErrIdentityLookupFailed, ErrPersistenceRequestFailed, ErrTransportFailed} {
		if errors.Is(err, kind) {
			return &SaveError{Kind: kind, Err: err}
		}
	}
	return &SaveError{Kind: fallback, Err: err}
}
