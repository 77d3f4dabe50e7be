package autosave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/oauth2"

	"github.com/benvon/wellness-sessions/internal/autosave"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu       sync.Mutex
	userID   string
	meErr    error
	saveFn   func(autosave.SaveRequest) (autosave.SaveResult, error)
	meCalls  int
	requests []autosave.SaveRequest
}

func (b *fakeBackend) Me(ctx context.Context, token *oauth2.Token) (autosave.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meCalls++
	if b.meErr != nil {
		return autosave.Identity{}, b.meErr
	}
	id := b.userID
	if id == "" {
		id = "user-1"
	}
	return autosave.Identity{ID: id}, nil
}

func (b *fakeBackend) SaveDraft(ctx context.Context, token *oauth2.Token, req autosave.SaveRequest) (autosave.SaveResult, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	fn := b.saveFn
	b.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return autosave.SaveResult{ID: "d1"}, nil
}

func (b *fakeBackend) Requests() []autosave.SaveRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]autosave.SaveRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("no access token stored")
}

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
}

func newReconciler(t *testing.T, backend *fakeBackend, opts ...autosave.Option) (*autosave.Reconciler, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	opts = append([]autosave.Option{autosave.WithClock(clock)}, opts...)
	r := autosave.New(staticToken(), backend, opts...)
	t.Cleanup(r.Close)
	return r, clock
}

func TestReconciler_DebouncesUntilQuiet(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("T")
	clock.Advance(time.Second)
	r.SetTitle("Ti")
	clock.Advance(time.Second)
	r.SetTitle("Tit")

	clock.Advance(4*time.Second + 999*time.Millisecond)
	require.Empty(t, backend.Requests(), "save fired before the quiet period elapsed")

	clock.Advance(time.Millisecond)
	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 7*time.Second, clock.Now())
	assert.Equal(t, "Tit", reqs[0].Title)
	assert.Equal(t, autosave.DraftStatus, reqs[0].Status)
	assert.Equal(t, "user-1", reqs[0].User)
	assert.Nil(t, reqs[0].ID)
}

func TestReconciler_NeverSavesEmptyDraft(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("   ")
	assert.False(t, r.Dirty())
	clock.Advance(time.Minute)

	r.SetTitle("x")
	r.SetTitle("")
	assert.False(t, r.Dirty())
	clock.Advance(time.Minute)

	require.NoError(t, r.Flush(context.Background()))
	assert.Empty(t, backend.Requests())
	backend.mu.Lock()
	assert.Zero(t, backend.meCalls)
	backend.mu.Unlock()
}

func TestReconciler_ReusesDraftIdentity(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("Morning")
	clock.Advance(5 * time.Second)
	require.Equal(t, "d1", r.DraftID())

	backend.mu.Lock()
	backend.saveFn = func(autosave.SaveRequest) (autosave.SaveResult, error) {
		return autosave.SaveResult{ID: "other"}, nil
	}
	backend.mu.Unlock()

	r.AddTag("calm")
	clock.Advance(5 * time.Second)

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[1].ID)
	assert.Equal(t, "d1", *reqs[1].ID)
	assert.Equal(t, []string{"calm"}, reqs[1].Tags)
	assert.Equal(t, "d1", r.DraftID(), "identity must not change once assigned")
}

func TestReconciler_SuccessClearsDirty(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("Breathing")
	r.AddTag("calm")
	r.SetFileReference("https://cdn.example.com/breathing.json")
	require.True(t, r.Dirty())

	clock.Advance(5 * time.Second)

	st := r.State()
	assert.False(t, st.Dirty)
	assert.Equal(t, autosave.StatusSaved, st.Status)
	assert.Nil(t, st.LastError)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	want := autosave.Draft{Title: "Breathing", Tags: []string{"calm"}, FileReference: "https://cdn.example.com/breathing.json"}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].JSONFileURL)
	assert.Equal(t, "https://cdn.example.com/breathing.json", *reqs[0].JSONFileURL)

	clock.Advance(3 * time.Second)
	assert.Equal(t, autosave.StatusIdle, r.State().Status)
	assert.False(t, r.Dirty())
}

func TestReconciler_SnapshotIsNotAliased(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTags([]string{"a", "b"})
	clock.Advance(5 * time.Second)
	r.RemoveTag("a")

	snap, _ := r.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Tags)
	assert.True(t, r.Dirty())
}

func TestReconciler_FailureKeepsSnapshotAndDirty(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		saveFn: func(autosave.SaveRequest) (autosave.SaveResult, error) {
			return autosave.SaveResult{}, &autosave.SaveError{Kind: autosave.ErrPersistenceRequestFailed, StatusCode: 500}
		},
	}
	r, clock := newReconciler(t, backend)

	r.SetTitle("Draft")
	clock.Advance(5 * time.Second)

	st := r.State()
	assert.Equal(t, autosave.StatusError, st.Status)
	assert.True(t, st.Dirty)
	assert.ErrorIs(t, st.LastError, autosave.ErrPersistenceRequestFailed)
	assert.Empty(t, st.DraftID)
	_, saved := r.Snapshot()
	assert.False(t, saved)

	clock.Advance(3 * time.Second)
	st = r.State()
	assert.Equal(t, autosave.StatusIdle, st.Status)
	assert.True(t, st.Dirty)

	clock.Advance(time.Hour)
	assert.Len(t, backend.Requests(), 1, "a failure must not schedule a retry")
}

func TestReconciler_FailureAfterSuccessKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("v1")
	clock.Advance(5 * time.Second)

	backend.mu.Lock()
	backend.saveFn = func(autosave.SaveRequest) (autosave.SaveResult, error) {
		return autosave.SaveResult{}, &autosave.SaveError{Kind: autosave.ErrTransportFailed, Err: errors.New("connection reset")}
	}
	backend.mu.Unlock()

	r.SetTitle("v2")
	clock.Advance(5 * time.Second)

	snap, _ := r.Snapshot()
	assert.Equal(t, "v1", snap.Title)
	assert.True(t, r.Dirty())
	assert.ErrorIs(t, r.State().LastError, autosave.ErrTransportFailed)
}

func TestReconciler_IdentityFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		creds   oauth2.TokenSource
		meErr   error
		wantErr error
	}{
		{
			name:    "identity endpoint rejects",
			creds:   staticToken(),
			meErr:   &autosave.SaveError{Kind: autosave.ErrIdentityLookupFailed, StatusCode: 401},
			wantErr: autosave.ErrIdentityLookupFailed,
		},
		{
			name:    "identity endpoint unreachable",
			creds:   staticToken(),
			meErr:   &autosave.SaveError{Kind: autosave.ErrTransportFailed, Err: errors.New("dial tcp: refused")},
			wantErr: autosave.ErrTransportFailed,
		},
		{
			name:    "untyped error counts as identity failure",
			creds:   staticToken(),
			meErr:   errors.New("boom"),
			wantErr: autosave.ErrIdentityLookupFailed,
		},
		{
			name:    "missing credential",
			creds:   failingTokenSource{},
			wantErr: autosave.ErrIdentityLookupFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{meErr: tt.meErr}
			clock := &manualClock{}
			r := autosave.New(tt.creds, backend, autosave.WithClock(clock))
			t.Cleanup(r.Close)

			r.SetTitle("T")
			clock.Advance(5 * time.Second)

			st := r.State()
			assert.Equal(t, autosave.StatusError, st.Status)
			assert.True(t, st.Dirty)
			assert.ErrorIs(t, st.LastError, tt.wantErr)
			assert.Empty(t, backend.Requests(), "persistence must not be called without an identity")
		})
	}
}

func TestReconciler_EditDuringSaveStaysDirty(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		saveFn: func(autosave.SaveRequest) (autosave.SaveResult, error) {
			close(started)
			<-release
			return autosave.SaveResult{ID: "d1"}, nil
		},
	}
	r, clock := newReconciler(t, backend)

	r.SetTitle("first")
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(5 * time.Second)
	}()

	<-started
	assert.Equal(t, autosave.StatusSaving, r.State().Status)
	r.SetTitle("first, edited")
	close(release)
	<-advanced

	st := r.State()
	assert.Equal(t, autosave.StatusSaved, st.Status)
	assert.True(t, st.Dirty, "a newer edit must not be marked saved")
	snap, _ := r.Snapshot()
	assert.Equal(t, "first", snap.Title)

	backend.mu.Lock()
	backend.saveFn = nil
	backend.mu.Unlock()

	clock.Advance(5 * time.Second)
	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "first, edited", reqs[1].Title)
	require.NotNil(t, reqs[1].ID)
	assert.Equal(t, "d1", *reqs[1].ID)
	assert.False(t, r.Dirty())
}

func TestReconciler_DebounceDuringSaveIsCoalesced(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int
	backend := &fakeBackend{}
	backend.saveFn = func(autosave.SaveRequest) (autosave.SaveResult, error) {
		calls++
		if calls == 1 {
			started <- struct{}{}
			<-release
		}
		return autosave.SaveResult{ID: "d1"}, nil
	}
	r, clock := newReconciler(t, backend, autosave.WithDebounce(time.Second))

	r.SetTitle("a")
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(time.Second)
	}()
	<-started

	r.SetTitle("ab")
	r.SetTitle("abc")

	second := make(chan struct{})
	go func() {
		defer close(second)
		// Fires the debounce for "abc" while the first save is still out.
		clock.Advance(time.Second)
	}()
	<-second
	assert.Len(t, backend.Requests(), 1, "only one save may be in flight")

	close(release)
	<-advanced

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "abc", reqs[1].Title)
	require.NotNil(t, reqs[1].ID)
	assert.Equal(t, "d1", *reqs[1].ID)
	assert.False(t, r.Dirty())
}

func TestReconciler_EditAfterCoalescedDebounceWaitsForQuiet(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int
	backend := &fakeBackend{}
	backend.saveFn = func(autosave.SaveRequest) (autosave.SaveResult, error) {
		calls++
		if calls == 1 {
			started <- struct{}{}
			<-release
		}
		return autosave.SaveResult{ID: "d1"}, nil
	}
	r, clock := newReconciler(t, backend, autosave.WithDebounce(time.Second))

	r.SetTitle("a")
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(time.Second)
	}()
	<-started

	// t=1s: edit while the first save is out, its debounce fires at t=2s.
	r.SetTitle("ab")
	clock.Advance(time.Second)
	require.Len(t, backend.Requests(), 1)

	// t=2.5s: a newer edit restarts the quiet period.
	clock.Advance(500 * time.Millisecond)
	r.SetTitle("abc")

	close(release)
	<-advanced
	assert.Len(t, backend.Requests(), 1, "no save may follow an edit before the debounce elapses")
	assert.True(t, r.Dirty())

	clock.Advance(999 * time.Millisecond)
	assert.Len(t, backend.Requests(), 1)

	clock.Advance(time.Millisecond)
	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "abc", reqs[1].Title)
	assert.False(t, r.Dirty())
}

func TestReconciler_RevertingEditCancelsSave(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("A")
	clock.Advance(5 * time.Second)
	require.Len(t, backend.Requests(), 1)

	r.SetTitle("AB")
	assert.True(t, r.Dirty())
	r.SetTitle("A")
	assert.False(t, r.Dirty())

	clock.Advance(time.Minute)
	assert.Len(t, backend.Requests(), 1)
}

func TestReconciler_TagOrderIsMaterial(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTags([]string{"x", "y"})
	clock.Advance(5 * time.Second)
	require.False(t, r.Dirty())

	r.SetTags([]string{"y", "x"})
	assert.True(t, r.Dirty())
}

func TestReconciler_StatusDecaySupersededByNewerSave(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend, autosave.WithDebounce(time.Second))

	r.SetTitle("one")
	clock.Advance(time.Second) // first save at t=1
	require.Equal(t, autosave.StatusSaved, r.State().Status)

	clock.Advance(500 * time.Millisecond)
	r.SetTitle("two")
	clock.Advance(time.Second) // second save at t=2.5

	backend.mu.Lock()
	backend.saveFn = func(autosave.SaveRequest) (autosave.SaveResult, error) {
		return autosave.SaveResult{}, errors.New("boom")
	}
	backend.mu.Unlock()
	r.SetTitle("three")
	clock.Advance(time.Second) // failing save at t=3.5

	clock.Advance(600 * time.Millisecond) // t=4.1, first save's decay would have fired at t=4
	st := r.State()
	assert.Equal(t, autosave.StatusError, st.Status, "older decay must not clear a newer status")

	clock.Advance(3 * time.Second)
	assert.Equal(t, autosave.StatusIdle, r.State().Status)
}

func TestReconciler_CloseCancelsPendingSave(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("leaving")
	r.Close()
	clock.Advance(time.Minute)

	assert.Empty(t, backend.Requests())
	assert.ErrorIs(t, r.Flush(context.Background()), autosave.ErrClosed)

	r.SetTitle("ignored")
	assert.Equal(t, "leaving", r.Draft().Title)
}

func TestReconciler_CloseDuringSaveDropsResult(t *testing.T) {
	t.Parallel()

	backend := &blockingBackend{fakeBackend: &fakeBackend{}, entered: make(chan struct{})}

	var mu sync.Mutex
	var states []autosave.State
	clock := &manualClock{}
	r := autosave.New(staticToken(), backend,
		autosave.WithClock(clock),
		autosave.WithListener(func(st autosave.State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}),
	)

	r.SetTitle("bye")
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(5 * time.Second)
	}()
	<-backend.entered

	mu.Lock()
	before := len(states)
	mu.Unlock()

	r.Close()
	<-advanced

	mu.Lock()
	after := len(states)
	mu.Unlock()
	assert.Equal(t, before, after, "listener must not fire after Close")
	assert.Equal(t, autosave.StatusSaving, r.State().Status, "state is frozen at Close")
	assert.Empty(t, r.DraftID())
	assert.ErrorIs(t, backend.Err(), context.Canceled)
	assert.Empty(t, backend.Requests())
}

// blockingBackend holds the identity lookup until the request context ends.
type blockingBackend struct {
	*fakeBackend
	entered chan struct{}

	errMu sync.Mutex
	err   error
}

func (b *blockingBackend) Me(ctx context.Context, token *oauth2.Token) (autosave.Identity, error) {
	close(b.entered)
	<-ctx.Done()
	b.errMu.Lock()
	b.err = ctx.Err()
	b.errMu.Unlock()
	return autosave.Identity{}, &autosave.SaveError{Kind: autosave.ErrTransportFailed, Err: ctx.Err()}
}

func (b *blockingBackend) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

func TestReconciler_FlushSavesImmediately(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend)

	r.SetTitle("now")
	require.NoError(t, r.Flush(context.Background()))
	require.Len(t, backend.Requests(), 1)
	assert.Equal(t, "d1", r.DraftID())

	clock.Advance(time.Minute)
	assert.Len(t, backend.Requests(), 1, "flush must cancel the pending debounce")
}

func TestReconciler_FlushReturnsFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		saveFn: func(autosave.SaveRequest) (autosave.SaveResult, error) {
			return autosave.SaveResult{}, &autosave.SaveError{Kind: autosave.ErrPersistenceRequestFailed, StatusCode: 400}
		},
	}
	r, _ := newReconciler(t, backend)

	r.SetTitle("bad")
	err := r.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, autosave.ErrPersistenceRequestFailed)
	assert.Equal(t, autosave.StatusError, r.State().Status)
}

func TestReconciler_MissingSaveIDIsFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		saveFn: func(autosave.SaveRequest) (autosave.SaveResult, error) {
			return autosave.SaveResult{}, nil
		},
	}
	r, clock := newReconciler(t, backend)

	r.SetTitle("T")
	clock.Advance(5 * time.Second)

	st := r.State()
	assert.Equal(t, autosave.StatusError, st.Status)
	assert.ErrorIs(t, st.LastError, autosave.ErrPersistenceRequestFailed)
	assert.True(t, st.Dirty)
}

func TestReconciler_InitialDraftResumesIdentity(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, clock := newReconciler(t, backend,
		autosave.WithInitialDraft("existing", autosave.Draft{Title: "Saved", Tags: []string{"t"}}),
	)

	assert.False(t, r.Dirty())
	r.SetTitle("Saved!")
	clock.Advance(5 * time.Second)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].ID)
	assert.Equal(t, "existing", *reqs[0].ID)
	assert.Equal(t, "existing", r.DraftID())
}

func TestReconciler_ListenerSeesTransitions(t *testing.T) {
	t.Parallel()

	var statuses []autosave.Status
	backend := &fakeBackend{}
	clock := &manualClock{}
	r := autosave.New(staticToken(), backend,
		autosave.WithClock(clock),
		autosave.WithListener(func(st autosave.State) { statuses = append(statuses, st.Status) }),
	)
	t.Cleanup(r.Close)

	r.SetTitle("T")
	clock.Advance(8 * time.Second)

	want := []autosave.Status{
		autosave.StatusIdle,   // edit
		autosave.StatusSaving, // debounce fired
		autosave.StatusSaved,  // save done
		autosave.StatusIdle,   // decay
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestReconciler_SystemClock(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r := autosave.New(staticToken(), backend,
		autosave.WithDebounce(20*time.Millisecond),
		autosave.WithStatusDecay(20*time.Millisecond),
	)
	defer r.Close()

	r.SetTitle("real timers")
	require.Eventually(t, func() bool {
		return r.State().Status == autosave.StatusSaved
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return r.State().Status == autosave.StatusIdle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, backend.Requests(), 1)
}
