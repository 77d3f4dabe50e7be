package autosave

import (
	"errors"
	"fmt"
	"testing"
)

func TestSaveError_Is(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &SaveError{Kind: ErrTransportFailed, Err: cause}

	if !errors.Is(err, ErrTransportFailed) {
		t.Error("expected errors.Is(err, ErrTransportFailed)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrPersistenceRequestFailed) {
		t.Error("did not expect errors.Is(err, ErrPersistenceRequestFailed)")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		fallback error
		want     error
	}{
		{"plain error takes fallback", errors.New("boom"), ErrPersistenceRequestFailed, ErrPersistenceRequestFailed},
		{"wrapped sentinel keeps kind", fmt.Errorf("dial: %w", ErrTransportFailed), ErrIdentityLookupFailed, ErrTransportFailed},
		{"save error passes through", &SaveError{Kind: ErrTransportFailed}, ErrPersistenceRequestFailed, ErrTransportFailed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err, tt.fallback)
			if got.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestSaveError_Error(t *testing.T) {
	t.Parallel()

	err := &SaveError{Kind: ErrPersistenceRequestFailed, StatusCode: 500, Err: errors.New("Internal Server Error")}
	want := "persistence request failed (status 500): Internal Server Error"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
