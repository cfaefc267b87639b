package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IDEA-FinAI/RagLLaVA/internal/repository"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs []execCall
	tag   string
	err   error
	row   pgx.Row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(f.tag), f.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(db *fakeDB) *RunRepo {
	return &RunRepo{db: db, now: func() time.Time { return fixedNow }}
}

func TestRunRepo_CreateRunFillsDefaults(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := newTestRepo(db)

	run := &repository.Run{Reranker: "lora_caption", Generator: "base_sft", Mode: "val"}
	require.NoError(t, repo.CreateRun(context.Background(), run))

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, fixedNow, run.StartedAt)
	assert.Equal(t, repository.RunRunning, run.Status)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "INSERT INTO eval_runs")
	assert.Equal(t, []byte("{}"), db.execs[0].args[5])
}

func TestRunRepo_AppendRecord(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := newTestRepo(db)
	id := uuid.New()

	require.NoError(t, repo.AppendRecord(context.Background(), id, 3, "g1", json.RawMessage(`{"guid":"g1"}`)))
	require.Len(t, db.execs, 1)
	assert.Equal(t, []any{id, 3, "g1", []byte(`{"guid":"g1"}`)}, db.execs[0].args)

	db.err = errors.New("connection reset")
	assert.ErrorContains(t, repo.AppendRecord(context.Background(), id, 4, "g2", nil), "failed to append record")
}

func TestRunRepo_FinishRun(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 1"}
	repo := newTestRepo(db)
	id := uuid.New()

	require.NoError(t, repo.FinishRun(context.Background(), id, repository.RunFinished, json.RawMessage(`{"f1":0.5}`), ""))
	args := db.execs[0].args
	assert.Equal(t, repository.RunFinished, args[1])
	assert.Equal(t, []byte(`{"f1":0.5}`), args[2])
	assert.Equal(t, fixedNow, args[4])

	db.tag = "UPDATE 0"
	err := repo.FinishRun(context.Background(), id, repository.RunFailed, nil, "boom")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, db.execs[1].args[2])
}

func TestRunRepo_GetRunNotFound(t *testing.T) {
	repo := newTestRepo(&fakeDB{row: errRow{err: pgx.ErrNoRows}})
	_, err := repo.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	repo = newTestRepo(&fakeDB{row: errRow{err: errors.New("timeout")}})
	_, err = repo.GetRun(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "failed to get run")
}

func TestRunRepo_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, newTestRepo(db).EnsureSchema(context.Background()))
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS eval_records")
}
