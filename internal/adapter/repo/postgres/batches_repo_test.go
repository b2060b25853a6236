package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// poolStub implements postgres.PgxPool for tests.
type poolStub struct {
	execErr  error
	execSQL  []string
	execArgs [][]any
	row      rowStub
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.NewCommandTag("DELETE 2"), p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func sp(s string) *string { return &s }

func TestBatchRepo_Create_GeneratesID(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewBatchRepo(pool)
	id, err := repo.Create(context.Background(), domain.Batch{
		Status: domain.BatchQueued,
		Items:  []*string{sp("a\nb"), nil},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, pool.execArgs, 1)
	// items serialized as JSON preserving the null slot
	items, ok := pool.execArgs[0][3].([]byte)
	require.True(t, ok)
	assert.JSONEq(t, `["a\nb", null]`, string(items))
}

func TestBatchRepo_Create_ExecError(t *testing.T) {
	t.Parallel()
	repo := postgres.NewBatchRepo(&poolStub{execErr: errors.New("db down")})
	_, err := repo.Create(context.Background(), domain.Batch{})
	require.Error(t, err)
}

func TestBatchRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewBatchRepo(pool)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchRepo_Get_ScansJSONColumns(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = "b-1"
		*dest[1].(*domain.BatchStatus) = domain.BatchCompleted
		*dest[2].(*string) = ""
		*dest[3].(*[]byte) = []byte(`["x\ny", null]`)
		*dest[4].(*[]byte) = []byte(`["x y", null]`)
		*dest[5].(*string) = "https://cb.local/hook"
		*dest[6].(**string) = nil
		*dest[7].(*time.Time) = now
		*dest[8].(*time.Time) = now
		return nil
	}}}
	repo := postgres.NewBatchRepo(pool)
	b, err := repo.Get(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, b.Status)
	require.Len(t, b.Items, 2)
	assert.Equal(t, "x\ny", *b.Items[0])
	assert.Nil(t, b.Items[1])
	require.Len(t, b.Result, 2)
	assert.Equal(t, "x y", *b.Result[0])
	assert.Nil(t, b.Result[1])
	assert.Equal(t, "https://cb.local/hook", b.CallbackURL)
}

func TestBatchRepo_UpdateStatus_NilErrBecomesEmpty(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewBatchRepo(pool)
	require.NoError(t, repo.UpdateStatus(context.Background(), "b-1", domain.BatchProcessing, nil))
	require.Len(t, pool.execArgs, 1)
	assert.Equal(t, "", pool.execArgs[0][2])
}

func TestBatchRepo_SetResult(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewBatchRepo(pool)
	require.NoError(t, repo.SetResult(context.Background(), "b-1", []*string{sp("done"), nil}))
	require.Len(t, pool.execArgs, 1)
	var got []*string
	require.NoError(t, json.Unmarshal(pool.execArgs[0][1].([]byte), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "done", *got[0])
	assert.Nil(t, got[1])
}

func TestCleanupService_DeletesTerminalBatches(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	svc := postgres.NewCleanupService(pool, 7)
	require.NoError(t, svc.CleanupOldData(context.Background()))
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "status IN ('completed','failed')")
}
