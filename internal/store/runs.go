package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/timing"
)

// Status is the outcome of a compilation.
type Status string

const (
	StatusOK          Status = "ok"
	StatusParseError  Status = "parse_error"
	StatusPassFailure Status = "pass_failure"
	StatusError       Status = "error"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded compilation.
type Run struct {
	ID          string
	Seq         int64
	Input       string
	Pipeline    string
	Fingerprint string
	Status      Status
	Failure     string
	Total       time.Duration
	Options     map[string]string
	Timings     []Timing
}

// Timing is one node of a run's timing tree in pre-order.
type Timing struct {
	Position int
	Depth    int
	Name     string
	Duration time.Duration
	Count    int
}

// TimingsFrom flattens a timing tree into rows.
func TimingsFrom(tm *timing.Manager) []Timing {
	var out []Timing
	tm.Walk(func(n timing.Node) {
		out = append(out, Timing{
			Position: len(out),
			Depth:    n.Depth,
			Name:     n.Name,
			Duration: n.Duration,
			Count:    n.Count,
		})
	})
	return out
}

// RecordRun stores r and its timings in one transaction. An empty ID is
// filled from the store's generator; Seq is always assigned by the store.
// The stored run is returned.
func (s *Store) RecordRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = s.ids.Generate()
	}
	if r.Status == "" {
		return Run{}, fmt.Errorf("record run: status is required")
	}
	optionsJSON, err := marshalOptions(r.Options)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&r.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, input, pipeline, fingerprint, status, failure, total_ns, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.Input,
		r.Pipeline,
		r.Fingerprint,
		string(r.Status),
		r.Failure,
		int64(r.Total),
		optionsJSON,
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	r.Timings = append([]Timing(nil), r.Timings...)
	for i, t := range r.Timings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pass_timings
			(run_id, position, depth, name, duration_ns, count)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, i, t.Depth, t.Name, int64(t.Duration), t.Count)
		if err != nil {
			return Run{}, fmt.Errorf("record run: timing %q: %w", t.Name, err)
		}
		r.Timings[i].Position = i
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first, without timings. A limit of
// zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, input, pipeline, fingerprint, status, failure, total_ns, options
		FROM runs
		ORDER BY seq DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run with its timings.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, input, pipeline, fingerprint, status, failure, total_ns, options
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	r.Timings, err = s.ReadTimings(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

// ReadTimings returns the timing rows of a run in pre-order.
func (s *Store) ReadTimings(ctx context.Context, runID string) ([]Timing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, depth, name, duration_ns, count
		FROM pass_timings
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query timings: %w", err)
	}
	defer rows.Close()

	timings := []Timing{}
	for rows.Next() {
		var t Timing
		var ns int64
		if err := rows.Scan(&t.Position, &t.Depth, &t.Name, &ns, &t.Count); err != nil {
			return nil, fmt.Errorf("scan timing: %w", err)
		}
		t.Duration = time.Duration(ns)
		timings = append(timings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timings: %w", err)
	}
	return timings, nil
}

// LatestByFingerprint returns the most recent successful run that produced
// fingerprint, or ErrRunNotFound.
func (s *Store) LatestByFingerprint(ctx context.Context, fingerprint string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, input, pipeline, fingerprint, status, failure, total_ns, options
		FROM runs
		WHERE fingerprint = ? AND status = 'ok'
		ORDER BY seq DESC
		LIMIT 1
	`, fingerprint)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: fingerprint %s", ErrRunNotFound, fingerprint)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var status, options string
	var total int64
	err := row.Scan(&r.ID, &r.Seq, &r.Input, &r.Pipeline, &r.Fingerprint, &status, &r.Failure, &total, &options)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Status = Status(status)
	r.Total = time.Duration(total)
	if r.Options, err = unmarshalOptions(options); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}

// marshalOptions stores options as canonical JSON so that identical
// configurations compare equal as text.
func marshalOptions(opts map[string]string) (string, error) {
	m := make(map[string]any, len(opts))
	for k, v := range opts {
		m[k] = v
	}
	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

func unmarshalOptions(s string) (map[string]string, error) {
	opts := map[string]string{}
	if err := json.Unmarshal([]byte(s), &opts); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return opts, nil
}
