// Package tracker owns the conversion job lifecycle. Records move
// monotonically through uploading → processing → completed|failed; terminal
// states admit no further transitions. Writes to a single job are serialized
// here so at most one writer mutates a record at a time, with no cross-job
// locking.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chat2doc/chat2doc/internal/storage"
)

// ErrInvalidTransition indicates a status change outside the state machine.
// It is a coordinator bug, never a consequence of user input.
var ErrInvalidTransition = errors.New("invalid status transition")

// ArtifactRemover deletes stored artifacts by their opaque location.
type ArtifactRemover interface {
	Remove(location string) error
}

// Metadata is attached to a job on completion.
type Metadata struct {
	MessageCount int
	WordCount    int
	SkippedCount int
	Processing   time.Duration
}

// Tracker mediates all conversion record mutations.
type Tracker struct {
	store     *storage.Store
	artifacts ArtifactRemover
	logger    *slog.Logger

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
	subs     map[string][]chan storage.Status
}

// New creates a Tracker. artifacts may be nil, in which case deletes skip
// artifact cleanup.
func New(store *storage.Store, artifacts ArtifactRemover) *Tracker {
	return &Tracker{
		store:     store,
		artifacts: artifacts,
		logger:    slog.Default(),
		jobLocks:  make(map[string]*sync.Mutex),
		subs:      make(map[string][]chan storage.Status),
	}
}

// Create registers a new job. File submissions start at uploading, URL
// submissions at processing; any other initial state is rejected.
func (t *Tracker) Create(userID, originalFilename, platform string, initial storage.Status, inputLocation string) (storage.Conversion, error) {
	if initial != storage.StatusUploading && initial != storage.StatusProcessing {
		return storage.Conversion{}, fmt.Errorf("%w: cannot create job in state %q", ErrInvalidTransition, initial)
	}

	c := storage.Conversion{
		ID:               uuid.New().String(),
		UserID:           userID,
		OriginalFilename: originalFilename,
		Platform:         platform,
		Status:           initial,
		InputLocation:    inputLocation,
		CreatedAt:        time.Now().UTC(),
	}
	if err := t.store.CreateConversion(c); err != nil {
		return storage.Conversion{}, fmt.Errorf("creating conversion: %w", err)
	}
	t.logger.Info("conversion created", "conversion_id", c.ID, "user_id", userID, "status", initial)
	return c, nil
}

// Advance moves a job forward along the non-terminal edge of the state
// machine (uploading → processing). Terminal states are reached through
// Complete and Fail only.
func (t *Tracker) Advance(id string, to storage.Status) error {
	unlock := t.lockJob(id)
	defer unlock()

	cur, err := t.store.GetConversion(id)
	if err != nil {
		return err
	}
	if to != storage.StatusProcessing || cur.Status != storage.StatusUploading {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur.Status, to)
	}
	if err := t.store.SetConversionStatus(id, cur.Status, to); err != nil {
		return fmt.Errorf("advancing %s: %w", id, err)
	}
	t.notify(id, to, false)
	return nil
}

// Complete moves a job to the terminal completed state, attaching output
// locations and metadata atomically.
func (t *Tracker) Complete(id, pdfLocation, docxLocation string, meta Metadata) (storage.Conversion, error) {
	unlock := t.lockJob(id)
	defer unlock()

	cur, err := t.store.GetConversion(id)
	if err != nil {
		return storage.Conversion{}, err
	}
	if cur.Status != storage.StatusProcessing {
		return storage.Conversion{}, fmt.Errorf("%w: %s → completed", ErrInvalidTransition, cur.Status)
	}

	err = t.store.CompleteConversion(id, pdfLocation, docxLocation,
		meta.MessageCount, meta.WordCount, meta.SkippedCount, meta.Processing.Milliseconds())
	if err != nil {
		return storage.Conversion{}, fmt.Errorf("completing %s: %w", id, err)
	}
	t.notify(id, storage.StatusCompleted, true)
	t.logger.Info("conversion completed",
		"conversion_id", id,
		"messages", meta.MessageCount,
		"words", meta.WordCount,
		"duration_ms", meta.Processing.Milliseconds(),
	)
	return t.store.GetConversion(id)
}

// Fail moves a job to the terminal failed state with an error category and
// human-readable description.
func (t *Tracker) Fail(id, category, message string) (storage.Conversion, error) {
	unlock := t.lockJob(id)
	defer unlock()

	cur, err := t.store.GetConversion(id)
	if err != nil {
		return storage.Conversion{}, err
	}
	if cur.Status.Terminal() {
		return storage.Conversion{}, fmt.Errorf("%w: %s → failed", ErrInvalidTransition, cur.Status)
	}

	if err := t.store.FailConversion(id, category, message); err != nil {
		return storage.Conversion{}, fmt.Errorf("failing %s: %w", id, err)
	}
	t.notify(id, storage.StatusFailed, true)
	t.logger.Warn("conversion failed", "conversion_id", id, "category", category, "error", message)
	return t.store.GetConversion(id)
}

// SetPlatform refines a job's platform after content inspection.
func (t *Tracker) SetPlatform(id, platform string) error {
	unlock := t.lockJob(id)
	defer unlock()
	return t.store.SetConversionPlatform(id, platform)
}

// Get fetches one job.
func (t *Tracker) Get(id string) (storage.Conversion, error) {
	return t.store.GetConversion(id)
}

// List returns a user's jobs, newest first.
func (t *Tracker) List(userID string) ([]storage.Conversion, error) {
	return t.store.ListConversions(userID)
}

// Delete removes a job and, when present, its stored artifacts. Deleting an
// unknown id is a no-op.
func (t *Tracker) Delete(id string) error {
	unlock := t.lockJob(id)
	defer unlock()

	c, err := t.store.GetConversion(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if t.artifacts != nil {
		for _, loc := range []string{c.PDFPath, c.DOCXPath, c.InputLocation} {
			if loc == "" {
				continue
			}
			if err := t.artifacts.Remove(loc); err != nil {
				t.logger.Warn("artifact cleanup failed", "conversion_id", id, "location", loc, "error", err)
			}
		}
	}

	if err := t.store.DeleteConversion(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	t.closeSubs(id)
	return nil
}

// Subscribe returns a channel receiving subsequent status transitions for a
// job. The channel closes after a terminal status is delivered or when the
// returned cancel func runs.
func (t *Tracker) Subscribe(id string) (<-chan storage.Status, func()) {
	ch := make(chan storage.Status, 4)

	t.mu.Lock()
	t.subs[id] = append(t.subs[id], ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subs[id]
		for i, c := range subs {
			if c == ch {
				t.subs[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (t *Tracker) notify(id string, status storage.Status, terminal bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs[id] {
		select {
		case ch <- status:
		default: // slow subscriber; drop rather than block the pipeline
		}
	}
	if terminal {
		for _, ch := range t.subs[id] {
			close(ch)
		}
		delete(t.subs, id)
		delete(t.jobLocks, id)
	}
}

func (t *Tracker) closeSubs(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs[id] {
		close(ch)
	}
	delete(t.subs, id)
	delete(t.jobLocks, id)
}

// lockJob serializes mutations per job id.
func (t *Tracker) lockJob(id string) func() {
	t.mu.Lock()
	l, ok := t.jobLocks[id]
	if !ok {
		l = &sync.Mutex{}
		t.jobLocks[id] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
