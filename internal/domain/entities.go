package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")
)

type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch represents one asynchronous sanitization request: the ordered items
// submitted by the caller and, once completed, the sanitized result.
// Invariants: when Status is completed, len(Result) == len(Items) and
// Result[i] is nil iff Items[i] is nil.
type Batch struct {
	ID          string
	Status      BatchStatus
	Error       string
	Items       []*string
	Result      []*string
	CallbackURL string
	IdemKey     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repositories (ports)

type BatchRepository interface {
	Create(ctx Context, b Batch) (string, error)
	Get(ctx Context, id string) (Batch, error)
	UpdateStatus(ctx Context, id string, status BatchStatus, errMsg *string) error
	SetResult(ctx Context, id string, result []*string) error
	FindByIdempotencyKey(ctx Context, key string) (Batch, error)
}

// Queue (port)

type Queue interface {
	EnqueueSanitize(ctx Context, payload SanitizeTaskPayload) (string, error)
}

// Notifier (port) delivers a completed batch to the caller's callback URL.

type Notifier interface {
	Deliver(ctx Context, callbackURL string, batch Batch) error
}

// IdempotencyStore (port) maps an Idempotency-Key header to a batch id for a
// bounded window so retried submissions return the original batch.

type IdempotencyStore interface {
	Lookup(ctx Context, key string) (string, bool, error)
	Remember(ctx Context, key, batchID string) error
}

// SanitizeTaskPayload is the queue message for one batch.
type SanitizeTaskPayload struct {
	BatchID string `json:"batch_id"`
}

// Context is an alias so the domain package does not spell out std context
// in every port signature. Adapters pass context.Context through unchanged.
type Context = context.Context
