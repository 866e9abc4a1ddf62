package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/testutil"
	"github.com/roach88/hwpipe/internal/timing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.RecordRun(context.Background(), Run{Input: "a.fir", Status: StatusOK})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	runs, err := s2.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMigrateToV1_AddsOptionsColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY, seq INTEGER NOT NULL UNIQUE, input TEXT NOT NULL,
		pipeline TEXT NOT NULL, fingerprint TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL, failure TEXT NOT NULL DEFAULT '', total_ns INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	r, err := s.RecordRun(context.Background(), Run{Status: StatusOK, Options: map[string]string{"timing": "true"}})
	require.NoError(t, err)
	got, err := s.ReadRun(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "true", got.Options["timing"])
}

func TestRecordRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(testutil.NewSequentialIDGenerator()))

	in := Run{
		Input:       "top.fir",
		Pipeline:    "builtin.module(cse)",
		Fingerprint: "abc",
		Status:      StatusOK,
		Total:       3 * time.Millisecond,
		Options:     map[string]string{"verify_each": "true", "output": "top.v"},
		Timings: []Timing{
			{Depth: 0, Name: "Total", Duration: 3 * time.Millisecond, Count: 1},
			{Depth: 1, Name: "cse", Duration: time.Millisecond, Count: 2},
		},
	}
	stored, err := s.RecordRun(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-7000-8000-000000000001", stored.ID)
	assert.Equal(t, int64(1), stored.Seq)

	got, err := s.ReadRun(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Equal(t, 1, got.Timings[1].Position)
}

func TestRecordRun_GeneratesUUIDv7(t *testing.T) {
	s := createTestStore(t)
	r, err := s.RecordRun(context.Background(), Run{Status: StatusError, Failure: "boom"})
	require.NoError(t, err)
	id, err := uuid.Parse(r.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestRecordRun_RequiresStatus(t *testing.T) {
	s := createTestStore(t)
	_, err := s.RecordRun(context.Background(), Run{Input: "x"})
	assert.Error(t, err)
}

func TestRecordRun_RejectsUnknownStatus(t *testing.T) {
	s := createTestStore(t)
	_, err := s.RecordRun(context.Background(), Run{Status: "weird"})
	assert.Error(t, err)
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(testutil.NewSequentialIDGenerator()))
	for _, in := range []string{"a.fir", "b.fir", "c.fir"} {
		_, err := s.RecordRun(ctx, Run{Input: in, Status: StatusOK})
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c.fir", runs[0].Input)
	assert.Equal(t, int64(2), runs[1].Seq)
	assert.Empty(t, runs[0].Timings)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListRuns_EmptyStore(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLatestByFingerprint(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(testutil.NewSequentialIDGenerator()))
	_, err := s.RecordRun(ctx, Run{Input: "old.fir", Fingerprint: "f1", Status: StatusOK})
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, Run{Input: "new.fir", Fingerprint: "f1", Status: StatusOK})
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, Run{Input: "failed.fir", Fingerprint: "f1", Status: StatusPassFailure})
	require.NoError(t, err)

	r, err := s.LatestByFingerprint(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "new.fir", r.Input)

	_, err = s.LatestByFingerprint(ctx, "f2")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTimingsFrom(t *testing.T) {
	tm := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	root := tm.Root()
	require.NoError(t, root.Time("Parse", func() error { return nil }))
	pipeline := root.Nest("Pipeline")
	pipeline.Start()
	require.NoError(t, pipeline.Time("cse", func() error { return nil }))
	pipeline.Stop()

	rows := TimingsFrom(tm)
	require.Len(t, rows, 4)
	assert.Equal(t, Timing{Position: 0, Depth: 0, Name: "Total", Duration: tm.Total(), Count: 0}, rows[0])
	assert.Equal(t, "cse", rows[3].Name)
	assert.Equal(t, 2, rows[3].Depth)
	assert.Equal(t, 1, rows[3].Count)
}
