package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
	"github.com/fairyhunter13/payload-sanitizer/pkg/textx"
)

// BatchService handles the asynchronous sanitization pipeline: submitting
// batches, reading their status, and the worker-side processing step.
type BatchService struct {
	Batches    domain.BatchRepository
	Queue      domain.Queue
	Idem       domain.IdempotencyStore
	Notifier   domain.Notifier
	StaleAfter time.Duration
}

// NewBatchService constructs a BatchService. Idem and Notifier may be nil
// when idempotency caching or callback delivery are not configured.
func NewBatchService(b domain.BatchRepository, q domain.Queue, idem domain.IdempotencyStore, n domain.Notifier, staleAfter time.Duration) BatchService {
	return BatchService{Batches: b, Queue: q, Idem: idem, Notifier: n, StaleAfter: staleAfter}
}

// Submit persists a queued batch and enqueues a sanitize task for it.
// When idemKey is non-empty, a prior submission under the same key returns
// the original batch id without creating a duplicate.
func (s BatchService) Submit(ctx domain.Context, items []*string, callbackURL, idemKey string) (string, error) {
	if idemKey != "" {
		if s.Idem != nil {
			if id, ok, err := s.Idem.Lookup(ctx, idemKey); err == nil && ok {
				return id, nil
			}
		}
		if b, err := s.Batches.FindByIdempotencyKey(ctx, idemKey); err == nil {
			return b.ID, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("op=batch.submit: idem lookup: %w", err)
		}
	}
	b := domain.Batch{
		Status:      domain.BatchQueued,
		Items:       items,
		CallbackURL: callbackURL,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if idemKey != "" {
		b.IdemKey = &idemKey
	}
	id, err := s.Batches.Create(ctx, b)
	if err != nil {
		return "", fmt.Errorf("op=batch.submit: %w", err)
	}
	if idemKey != "" && s.Idem != nil {
		if err := s.Idem.Remember(ctx, idemKey, id); err != nil {
			slog.Warn("idempotency remember failed", slog.String("batch_id", id), slog.Any("error", err))
		}
	}
	if _, err := s.Queue.EnqueueSanitize(ctx, domain.SanitizeTaskPayload{BatchID: id}); err != nil {
		msg := "enqueue failed"
		_ = s.Batches.UpdateStatus(ctx, id, domain.BatchFailed, &msg)
		return "", fmt.Errorf("op=batch.submit: enqueue: %w", err)
	}
	return id, nil
}

// Fetch returns the HTTP status code, response body, and ETag for a batch.
// It implements conditional responses (304 Not Modified) via If-None-Match
// and applies the stale timeout policy to queued/processing batches.
func (s BatchService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	b, err := s.Batches.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("%w: batch not found", domain.ErrNotFound)
		}
		return http.StatusInternalServerError, nil, "", err
	}
	if b.Status != domain.BatchCompleted {
		now := time.Now().UTC()
		stale := false
		if b.Status == domain.BatchQueued && now.Sub(b.CreatedAt) > s.StaleAfter {
			stale = true
		}
		if b.Status == domain.BatchProcessing && now.Sub(b.UpdatedAt) > s.StaleAfter {
			stale = true
		}
		if stale {
			slog.Warn("batch marked as stale", slog.String("batch_id", id), slog.String("status", string(b.Status)))
			msg := fmt.Sprintf("timeout: batch exceeded %s", s.StaleAfter)
			_ = s.Batches.UpdateStatus(ctx, id, domain.BatchFailed, &msg)
			b.Status = domain.BatchFailed
			b.Error = msg
		}
		m := map[string]any{"id": id, "status": string(b.Status)}
		if b.Status == domain.BatchFailed {
			m["error"] = map[string]any{"code": "INTERNAL", "message": b.Error}
		}
		etag := makeETag(m)
		if etag == ifNoneMatch {
			return http.StatusNotModified, nil, etag, nil
		}
		return http.StatusOK, m, etag, nil
	}
	m := map[string]any{
		"id": id, "status": string(domain.BatchCompleted),
		"items": b.Result,
	}
	etag := makeETag(m)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

// Process runs the sanitize step for one batch on the worker side. It is
// safe under queue redelivery: an already-completed batch is left alone.
func (s BatchService) Process(ctx domain.Context, batchID string) error {
	b, err := s.Batches.Get(ctx, batchID)
	if err != nil {
		return fmt.Errorf("op=batch.process: %w", err)
	}
	if b.Status == domain.BatchCompleted {
		slog.Info("batch already completed, skipping", slog.String("batch_id", batchID))
		return nil
	}
	if err := s.Batches.UpdateStatus(ctx, batchID, domain.BatchProcessing, nil); err != nil {
		return fmt.Errorf("op=batch.process: mark processing: %w", err)
	}
	observability.BatchesProcessing.Inc()
	defer observability.BatchesProcessing.Dec()

	result := textx.SanitizeBatch(b.Items)
	observability.ObserveBatchSize(len(b.Items))

	if err := s.Batches.SetResult(ctx, batchID, result); err != nil {
		msg := "storing result failed"
		_ = s.Batches.UpdateStatus(ctx, batchID, domain.BatchFailed, &msg)
		observability.BatchesFailedTotal.Inc()
		return fmt.Errorf("op=batch.process: set result: %w", err)
	}
	if err := s.Batches.UpdateStatus(ctx, batchID, domain.BatchCompleted, nil); err != nil {
		return fmt.Errorf("op=batch.process: mark completed: %w", err)
	}
	observability.BatchesCompletedTotal.Inc()

	if b.CallbackURL != "" && s.Notifier != nil {
		b.Result = result
		b.Status = domain.BatchCompleted
		if err := s.Notifier.Deliver(ctx, b.CallbackURL, b); err != nil {
			// Delivery has its own retry budget; a terminal failure does not
			// fail the batch, the caller can still poll for the result.
			slog.Warn("callback delivery failed", slog.String("batch_id", batchID), slog.Any("error", err))
		}
	}
	return nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}
