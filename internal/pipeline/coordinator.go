// Package pipeline drives one conversion submission end-to-end: classify the
// input, extract a normalized conversation, render documents, and finalize
// the job record. Component failures never escape this boundary; callers
// observe them only through the finalized failed record.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chat2doc/chat2doc/internal/artifact"
	"github.com/chat2doc/chat2doc/internal/conversation"
	"github.com/chat2doc/chat2doc/internal/detect"
	"github.com/chat2doc/chat2doc/internal/extract"
	"github.com/chat2doc/chat2doc/internal/render"
	"github.com/chat2doc/chat2doc/internal/storage"
	"github.com/chat2doc/chat2doc/internal/tracker"
)

// Error categories stored on failed conversion records.
const (
	CategoryUnsupportedFormat = "unsupported_format"
	CategoryFetchError        = "fetch_error"
	CategoryExtractionError   = "extraction_error"
	CategoryRenderError       = "render_error"
	CategoryCancelled         = "cancelled"
)

// ErrUserBusy is returned pre-submission when a user already has the maximum
// number of in-flight jobs for their tier.
var ErrUserBusy = errors.New("too many conversions in flight")

// In-flight job caps per subscription tier.
const (
	freeInflightLimit    = 1
	premiumInflightLimit = 3
)

// Coordinator wires the conversion stages together.
type Coordinator struct {
	tracker   *tracker.Tracker
	store     *storage.Store
	artifacts *artifact.Store
	fetcher   *extract.Fetcher
	renderer  *render.Renderer
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

type userLimiter struct {
	sem   *semaphore.Weighted
	limit int64
}

// New creates a Coordinator. A nil fetcher gets the default 15s-timeout one.
func New(tr *tracker.Tracker, store *storage.Store, artifacts *artifact.Store, fetcher *extract.Fetcher) *Coordinator {
	if fetcher == nil {
		fetcher = extract.NewFetcher(nil)
	}
	return &Coordinator{
		tracker:   tr,
		store:     store,
		artifacts: artifacts,
		fetcher:   fetcher,
		renderer:  render.New(),
		logger:    slog.Default(),
		limiters:  make(map[string]*userLimiter),
	}
}

// SubmitFile converts an uploaded export. An unsupported extension is
// rejected before any record exists; every accepted submission returns a
// finalized record, completed or failed.
func (c *Coordinator) SubmitFile(ctx context.Context, userID, filename string, data []byte) (storage.Conversion, error) {
	release, err := c.acquireSlot(userID)
	if err != nil {
		return storage.Conversion{}, err
	}
	defer release()

	res, err := detect.File(filename, data)
	if err != nil {
		return storage.Conversion{}, fmt.Errorf("classifying %q: %w", filename, err)
	}

	inputLoc, err := c.artifacts.SaveInput(userID, filename, data)
	if err != nil {
		return storage.Conversion{}, fmt.Errorf("storing input: %w", err)
	}

	job, err := c.tracker.Create(userID, filename, string(res.Platform), storage.StatusUploading, inputLoc)
	if err != nil {
		return storage.Conversion{}, err
	}
	start := time.Now()

	if err := c.tracker.Advance(job.ID, storage.StatusProcessing); err != nil {
		return storage.Conversion{}, err
	}
	if ctx.Err() != nil {
		return c.finalizeFailure(ctx, job.ID, ctx.Err(), CategoryCancelled)
	}

	conv, err := c.extractFile(job.ID, res.Kind, data)
	if err != nil {
		return c.finalizeFailure(ctx, job.ID, err, CategoryExtractionError)
	}

	return c.renderAndComplete(ctx, job.ID, userID, conv, start)
}

// SubmitURL converts a shared conversation link. The URL itself is recorded
// as the input reference; fetching happens inside the job so network failures
// surface as a failed record, not a raised error.
func (c *Coordinator) SubmitURL(ctx context.Context, userID, url string) (storage.Conversion, error) {
	release, err := c.acquireSlot(userID)
	if err != nil {
		return storage.Conversion{}, err
	}
	defer release()

	res, err := detect.URL(url)
	if err != nil {
		return storage.Conversion{}, fmt.Errorf("classifying %q: %w", url, err)
	}

	job, err := c.tracker.Create(userID, url, string(res.Platform), storage.StatusProcessing, url)
	if err != nil {
		return storage.Conversion{}, err
	}
	start := time.Now()

	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return c.finalizeFailure(ctx, job.ID, err, CategoryFetchError)
	}

	conv, err := extractFetched(body)
	if err != nil {
		return c.finalizeFailure(ctx, job.ID, err, CategoryExtractionError)
	}

	return c.renderAndComplete(ctx, job.ID, userID, conv, start)
}

// extractFile runs the extraction strategy selected by the container kind.
func (c *Coordinator) extractFile(jobID string, kind detect.Kind, data []byte) (*conversation.Conversation, error) {
	switch kind {
	case detect.KindJSON:
		return extract.FromJSON(data)
	case detect.KindText:
		return extract.FromText(data)
	case detect.KindHTML:
		return extract.FromHTML(data)
	case detect.KindZip:
		conv, platform, err := extract.FromZip(data)
		if err != nil {
			return nil, err
		}
		if platform != detect.PlatformUnknown {
			if perr := c.tracker.SetPlatform(jobID, string(platform)); perr != nil {
				c.logger.Warn("platform refinement failed", "conversion_id", jobID, "error", perr)
			}
		}
		return conv, nil
	default:
		return nil, fmt.Errorf("%w: container kind %q", detect.ErrUnsupportedFormat, kind)
	}
}

// extractFetched parses a fetched share-link body, which is usually an HTML
// page but occasionally a raw JSON payload.
func extractFetched(body []byte) (*conversation.Conversation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return extract.FromJSON(trimmed)
	}
	return extract.FromHTML(body)
}

func (c *Coordinator) renderAndComplete(ctx context.Context, jobID, userID string, conv *conversation.Conversation, start time.Time) (storage.Conversion, error) {
	if ctx.Err() != nil {
		return c.finalizeFailure(ctx, jobID, ctx.Err(), CategoryCancelled)
	}

	artifacts, err := c.renderer.Render(ctx, conv)
	if err != nil {
		return c.finalizeFailure(ctx, jobID, err, CategoryRenderError)
	}

	pdfLoc, docxLoc, err := c.artifacts.SaveOutputs(userID, jobID, artifacts.PDF, artifacts.DOCX)
	if err != nil {
		return c.finalizeFailure(ctx, jobID, fmt.Errorf("%w: %v", render.ErrRender, err), CategoryRenderError)
	}

	return c.tracker.Complete(jobID, pdfLoc, docxLoc, tracker.Metadata{
		MessageCount: conv.MessageCount(),
		WordCount:    conv.WordCount(),
		SkippedCount: conv.Skipped,
		Processing:   time.Since(start),
	})
}

// finalizeFailure maps a stage error onto the taxonomy, fails the job, and
// returns the finalized record. The stage error itself is swallowed here.
func (c *Coordinator) finalizeFailure(ctx context.Context, jobID string, stageErr error, fallback string) (storage.Conversion, error) {
	category := classify(ctx, stageErr, fallback)
	job, err := c.tracker.Fail(jobID, category, stageErr.Error())
	if err != nil {
		return storage.Conversion{}, fmt.Errorf("finalizing failed job %s: %w", jobID, err)
	}
	return job, nil
}

func classify(ctx context.Context, err error, fallback string) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return CategoryCancelled
	case errors.Is(err, extract.ErrFetch):
		return CategoryFetchError
	case errors.Is(err, extract.ErrNoMessages):
		return CategoryExtractionError
	case errors.Is(err, render.ErrRender):
		return CategoryRenderError
	case errors.Is(err, detect.ErrUnsupportedFormat):
		return CategoryUnsupportedFormat
	default:
		return fallback
	}
}

// acquireSlot enforces the per-user in-flight cap. The limit follows the
// user's tier at submission time.
func (c *Coordinator) acquireSlot(userID string) (func(), error) {
	u, err := c.store.EnsureUser(userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	limit := int64(freeInflightLimit)
	if u.Subscription == storage.TierPremium {
		limit = premiumInflightLimit
	}

	c.mu.Lock()
	l, ok := c.limiters[userID]
	if !ok || l.limit != limit {
		l = &userLimiter{sem: semaphore.NewWeighted(limit), limit: limit}
		c.limiters[userID] = l
	}
	c.mu.Unlock()

	if !l.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: limit %d for user %s", ErrUserBusy, limit, userID)
	}
	return func() { l.sem.Release(1) }, nil
}
