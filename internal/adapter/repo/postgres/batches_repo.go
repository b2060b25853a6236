package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

// BatchRepo persists and loads batches from PostgreSQL using a minimal pgx pool.
// Items and results are stored as JSONB arrays so null slots survive the
// round trip with their positions intact.
type BatchRepo struct{ Pool PgxPool }

// PgxPool is a minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewBatchRepo constructs a BatchRepo with the given pool.
func NewBatchRepo(p PgxPool) *BatchRepo { return &BatchRepo{Pool: p} }

// Create inserts a new batch and returns its id (generates one if empty).
func (r *BatchRepo) Create(ctx domain.Context, b domain.Batch) (string, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Create")
	defer span.End()
	id := b.ID
	if id == "" {
		id = uuid.New().String()
	}
	items, err := json.Marshal(b.Items)
	if err != nil {
		return "", fmt.Errorf("op=batch.create: marshal items: %w", err)
	}
	q := `INSERT INTO batches (id, status, error, items, callback_url, idempotency_key, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.Pool.Exec(ctx, q, id, b.Status, b.Error, items, b.CallbackURL, b.IdemKey, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=batch.create: %w", err)
	}
	return id, nil
}

// Get loads a batch by id.
func (r *BatchRepo) Get(ctx domain.Context, id string) (domain.Batch, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Get")
	defer span.End()
	q := `SELECT id, status, COALESCE(error,''), items, COALESCE(result,'null'), COALESCE(callback_url,''), idempotency_key, created_at, updated_at FROM batches WHERE id=$1`
	return r.scanBatch(r.Pool.QueryRow(ctx, q, id), "batch.get")
}

// FindByIdempotencyKey loads a batch by idempotency key.
func (r *BatchRepo) FindByIdempotencyKey(ctx domain.Context, key string) (domain.Batch, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.FindByIdempotencyKey")
	defer span.End()
	q := `SELECT id, status, COALESCE(error,''), items, COALESCE(result,'null'), COALESCE(callback_url,''), idempotency_key, created_at, updated_at FROM batches WHERE idempotency_key=$1 LIMIT 1`
	return r.scanBatch(r.Pool.QueryRow(ctx, q, key), "batch.find_idem")
}

func (r *BatchRepo) scanBatch(row pgx.Row, op string) (domain.Batch, error) {
	var b domain.Batch
	var items, result []byte
	var idem *string
	if err := row.Scan(&b.ID, &b.Status, &b.Error, &items, &result, &b.CallbackURL, &idem, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Batch{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.Batch{}, fmt.Errorf("op=%s: %w", op, err)
	}
	b.IdemKey = idem
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return domain.Batch{}, fmt.Errorf("op=%s: unmarshal items: %w", op, err)
	}
	if err := json.Unmarshal(result, &b.Result); err != nil {
		return domain.Batch{}, fmt.Errorf("op=%s: unmarshal result: %w", op, err)
	}
	return b, nil
}

// UpdateStatus updates a batch's status and optional error message.
func (r *BatchRepo) UpdateStatus(ctx domain.Context, id string, status domain.BatchStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.UpdateStatus")
	defer span.End()
	q := `UPDATE batches SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	// Map nil errMsg to empty string to satisfy NOT NULL constraint on error column
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	_, err := r.Pool.Exec(ctx, q, id, status, errVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=batch.update_status: %w", err)
	}
	return nil
}

// SetResult stores the sanitized result for a batch.
func (r *BatchRepo) SetResult(ctx domain.Context, id string, result []*string) error {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.SetResult")
	defer span.End()
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("op=batch.set_result: marshal: %w", err)
	}
	q := `UPDATE batches SET result=$2, updated_at=$3 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=batch.set_result: %w", err)
	}
	return nil
}
