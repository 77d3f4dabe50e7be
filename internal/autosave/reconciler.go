package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDebounce is how long edits must be quiet before a save is sent.
	DefaultDebounce = 5 * time.Second
	// DefaultStatusDecay is how long "saved" or "error" stays visible.
	DefaultStatusDecay = 3 * time.Second
	// DefaultRequestTimeout bounds one save round trip (identity lookup plus persistence).
	DefaultRequestTimeout = 30 * time.Second
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("autosave: reconciler closed")

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithDebounce sets the quiet period before a save.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) { r.debounce = d }
}

// WithStatusDecay sets how long a saved/error status is shown before reverting to idle.
func WithStatusDecay(d time.Duration) Option {
	return func(r *Reconciler) { r.decay = d }
}

// WithRequestTimeout bounds each save round trip.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.requestTimeout = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithListener registers fn to receive the state after every change.
// fn is called without internal locks held and must not block for long.
func WithListener(fn func(State)) Option {
	return func(r *Reconciler) { r.listener = fn }
}

// WithInitialDraft resumes editing a draft the server already holds under id.
func WithInitialDraft(id string, d Draft) Option {
	return func(r *Reconciler) {
		r.draftID = id
		r.working = d.Clone()
		r.snapshot = d.Clone()
		r.hasSnapshot = true
	}
}

// Reconciler is the autosave loop behind a session form.
//
// Every mutation recomputes the dirty flag against the last acknowledged snapshot
// and, when dirty, restarts the debounce task. When the task fires the current
// working draft is sent. At most one save is in flight; a debounce that fires
// during a save is coalesced into a single follow-up save of the latest draft.
// Failures only change the status; they never schedule a retry on their own.
type Reconciler struct {
	creds          CredentialProvider
	backend        Backend
	clock          Clock
	debounce       time.Duration
	decay          time.Duration
	requestTimeout time.Duration
	logger         *zap.Logger
	listener       func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	working     Draft
	snapshot    Draft
	hasSnapshot bool
	draftID     string
	dirty       bool
	status      Status
	lastErr     error

	pending     Task
	debounceGen uint64
	decayTask   Task
	attempt     uint64

	inFlight   bool
	rerun      bool
	saveCancel context.CancelFunc
	saveDone   chan struct{}

	closed bool
}

// New creates a Reconciler. creds supplies the bearer token, backend performs the
// identity lookup and the draft save.
func New(creds CredentialProvider, backend Backend, opts ...Option) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		creds:          creds,
		backend:        backend,
		clock:          SystemClock,
		debounce:       DefaultDebounce,
		decay:          DefaultStatusDecay,
		requestTimeout: DefaultRequestTimeout,
		logger:         zap.NewNop(),
		ctx:            ctx,
		cancel:         cancel,
		status:         StatusIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dirty = r.isDirtyLocked()
	return r
}

// SetTitle replaces the title.
func (r *Reconciler) SetTitle(title string) {
	r.mutate(func(d Draft) Draft {
		d.Title = title
		return d
	})
}

// SetFileReference replaces the JSON file URL.
func (r *Reconciler) SetFileReference(ref string) {
	r.mutate(func(d Draft) Draft {
		d.FileReference = ref
		return d
	})
}

// AddTag appends a tag. Blank and duplicate tags leave the draft untouched.
func (r *Reconciler) AddTag(tag string) {
	r.mutate(func(d Draft) Draft { return d.WithTag(tag) })
}

// RemoveTag removes a tag if present.
func (r *Reconciler) RemoveTag(tag string) {
	r.mutate(func(d Draft) Draft { return d.WithoutTag(tag) })
}

// SetTags replaces all tags. Tags are trimmed and deduplicated.
func (r *Reconciler) SetTags(tags []string) {
	r.mutate(func(d Draft) Draft {
		d.Tags = normalizeTags(tags)
		return d
	})
}

// Update replaces the whole working draft.
func (r *Reconciler) Update(d Draft) {
	r.mutate(func(Draft) Draft {
		out := d.Clone()
		out.Tags = normalizeTags(out.Tags)
		return out
	})
}

func (r *Reconciler) mutate(edit func(Draft) Draft) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.working = edit(r.working.Clone())
	r.dirty = r.isDirtyLocked()
	if r.dirty {
		r.scheduleLocked()
	} else {
		r.cancelPendingLocked()
	}
	st := r.stateLocked()
	r.mu.Unlock()
	r.notify(st)
}

func (r *Reconciler) isDirtyLocked() bool {
	if !r.hasSnapshot {
		return !r.working.IsEmpty()
	}
	return !r.working.Equal(r.snapshot)
}

func (r *Reconciler) scheduleLocked() {
	r.cancelPendingLocked()
	gen := r.debounceGen
	r.pending = r.clock.AfterFunc(r.debounce, func() { r.fire(gen) })
	r.logger.Debug("autosave_scheduled", zap.Duration("debounce", r.debounce))
}

// cancelPendingLocked stops the debounce task and invalidates a callback that
// may already be waiting for the lock. A follow-up requested by an earlier
// debounce is dropped too: the edit that got here either restarts the quiet
// period or made the draft clean again.
func (r *Reconciler) cancelPendingLocked() {
	r.debounceGen++
	r.rerun = false
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

func (r *Reconciler) fire(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.debounceGen {
		r.mu.Unlock()
		return
	}
	r.pending = nil
	if r.inFlight {
		r.rerun = true
		r.mu.Unlock()
		r.logger.Debug("autosave_coalesced_with_in_flight_save")
		return
	}
	job, ok := r.beginSaveLocked(r.ctx)
	st := r.stateLocked()
	r.mu.Unlock()
	if !ok {
		return
	}
	r.notify(st)
	_ = r.run(job)
}

type saveJob struct {
	ctx     context.Context
	cancel  context.CancelFunc
	draft   Draft
	draftID string
	attempt uint64
}

// beginSaveLocked claims the in-flight slot for the current working draft.
// It refuses when there is nothing new to send or the draft is empty.
func (r *Reconciler) beginSaveLocked(parent context.Context) (saveJob, bool) {
	if !r.dirty || r.working.IsEmpty() {
		return saveJob{}, false
	}
	ctx, cancel := context.WithTimeout(parent, r.requestTimeout)
	stop := context.AfterFunc(r.ctx, cancel)
	r.attempt++
	job := saveJob{
		ctx: ctx,
		cancel: func() {
			stop()
			cancel()
		},
		draft:   r.working.Clone(),
		draftID: r.draftID,
		attempt: r.attempt,
	}
	if r.decayTask != nil {
		r.decayTask.Stop()
		r.decayTask = nil
	}
	r.status = StatusSaving
	r.lastErr = nil
	r.inFlight = true
	r.saveCancel = job.cancel
	r.saveDone = make(chan struct{})
	return job, true
}

func (r *Reconciler) run(job saveJob) error {
	res, err := r.save(job)
	r.finish(job, res, err)
	return err
}

// save performs the identity lookup and the persistence call. Every failure is
// returned as a *SaveError.
func (r *Reconciler) save(job saveJob) (SaveResult, error) {
	token, err := r.creds.Token()
	if err != nil {
		return SaveResult{}, &SaveError{Kind: ErrIdentityLookupFailed, Err: err}
	}

	ident, err := r.backend.Me(job.ctx, token)
	if err != nil {
		return SaveResult{}, classify(err, ErrIdentityLookupFailed)
	}
	if ident.ID == "" {
		return SaveResult{}, &SaveError{Kind: ErrIdentityLookupFailed, Err: errors.New("identity response has no id")}
	}

	req := NewSaveRequest(job.draft, ident.ID, job.draftID)
	res, err := r.backend.SaveDraft(job.ctx, token, req)
	if err != nil {
		return SaveResult{}, classify(err, ErrPersistenceRequestFailed)
	}
	if res.ID == "" {
		return SaveResult{}, &SaveError{Kind: ErrPersistenceRequestFailed, Err: errors.New("save response has no id")}
	}
	return res, nil
}

func (r *Reconciler) finish(job saveJob, res SaveResult, err error) {
	job.cancel()

	r.mu.Lock()
	close(r.saveDone)
	r.inFlight = false
	r.saveCancel = nil
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("autosave_result_dropped_after_close", zap.Uint64("attempt", job.attempt))
		return
	}

	if err == nil {
		if r.draftID == "" {
			r.draftID = res.ID
		}
		r.snapshot = job.draft
		r.hasSnapshot = true
		// An edit made while the request was out keeps the draft dirty.
		r.dirty = r.isDirtyLocked()
		r.status = StatusSaved
		r.lastErr = nil
		r.logger.Info("autosave_succeeded",
			zap.String("draft_id", r.draftID),
			zap.Bool("dirty", r.dirty),
		)
	} else {
		r.status = StatusError
		r.lastErr = err
		r.logger.Warn("autosave_failed",
			zap.String("draft_id", r.draftID),
			zap.Error(err),
		)
	}
	r.scheduleDecayLocked(job.attempt)

	rerun := r.rerun
	r.rerun = false
	st := r.stateLocked()
	r.mu.Unlock()
	r.notify(st)

	if rerun {
		r.startFollowUp()
	}
}

func (r *Reconciler) startFollowUp() {
	r.mu.Lock()
	if r.closed || r.inFlight {
		r.mu.Unlock()
		return
	}
	job, ok := r.beginSaveLocked(r.ctx)
	st := r.stateLocked()
	r.mu.Unlock()
	if !ok {
		return
	}
	r.notify(st)
	_ = r.run(job)
}

func (r *Reconciler) scheduleDecayLocked(attempt uint64) {
	if r.decayTask != nil {
		r.decayTask.Stop()
	}
	r.decayTask = r.clock.AfterFunc(r.decay, func() {
		r.mu.Lock()
		if r.closed || r.attempt != attempt || (r.status != StatusSaved && r.status != StatusError) {
			r.mu.Unlock()
			return
		}
		r.status = StatusIdle
		r.lastErr = nil
		r.decayTask = nil
		st := r.stateLocked()
		r.mu.Unlock()
		r.notify(st)
	})
}

// Flush cancels the debounce and saves right away if there are unsaved changes.
// If a save is already running it waits for it first. Unlike the background
// path, the failure is also returned to the caller.
func (r *Reconciler) Flush(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrClosed
		}
		r.cancelPendingLocked()
		if r.inFlight {
			done := r.saveDone
			r.rerun = false
			r.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		job, ok := r.beginSaveLocked(ctx)
		st := r.stateLocked()
		r.mu.Unlock()
		if !ok {
			return nil
		}
		r.notify(st)
		return r.run(job)
	}
}

// Close stops the loop: pending timers are cancelled and an in-flight save is
// abandoned without touching state. Close is idempotent.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancelPendingLocked()
	if r.decayTask != nil {
		r.decayTask.Stop()
		r.decayTask = nil
	}
	if r.saveCancel != nil {
		r.saveCancel()
	}
	r.cancel()
}

func (r *Reconciler) stateLocked() State {
	return State{
		Status:    r.status,
		Dirty:     r.dirty,
		DraftID:   r.draftID,
		LastError: r.lastErr,
	}
}

func (r *Reconciler) notify(st State) {
	if r.listener != nil {
		r.listener(st)
	}
}

// State returns the current indicator state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// Draft returns a copy of the working draft.
func (r *Reconciler) Draft() Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.working.Clone()
}

// Snapshot returns a copy of the last draft the server acknowledged, and false
// if nothing has been saved yet.
func (r *Reconciler) Snapshot() (Draft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Clone(), r.hasSnapshot
}

// DraftID returns the server id of the draft, or "" before the first successful save.
func (r *Reconciler) DraftID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draftID
}

// Dirty reports whether the working draft differs from the saved snapshot.
func (r *Reconciler) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}
