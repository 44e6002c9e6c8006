package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/review"
)

// Store is the SQLite-backed repository for runs, checklists, results,
// extracted documents and the chunk-count memo.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection serialises the
	// engine's concurrent upserts and keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			document_names TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS checklists (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP,
			PRIMARY KEY (run_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS review_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			checklist_id INTEGER NOT NULL,
			evaluation TEXT NOT NULL,
			comment TEXT NOT NULL,
			file_id TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP,
			PRIMARY KEY (run_id, checklist_id)
		);`,
		`CREATE TABLE IF NOT EXISTS individual_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			checklist_id INTEGER NOT NULL,
			document_id TEXT NOT NULL,
			document_name TEXT NOT NULL,
			comment TEXT NOT NULL,
			PRIMARY KEY (run_id, checklist_id, document_id)
		);`,
		`CREATE TABLE IF NOT EXISTS review_documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			type TEXT NOT NULL,
			process_mode TEXT NOT NULL,
			text_content TEXT NOT NULL DEFAULT '',
			image_data TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_review_documents_doc ON review_documents(run_id, document_id);`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			file_id TEXT NOT NULL,
			purpose TEXT NOT NULL,
			total_chunks INTEGER NOT NULL,
			updated_at TIMESTAMP,
			PRIMARY KEY (file_id, purpose)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func runNotFound(id string) error {
	return apperr.New(apperr.CodeRunNotFound, fmt.Sprintf("review run %s not found", id), true)
}

// CreateRun inserts a new run with a generated id.
func (s *Store) CreateRun(ctx context.Context, name string) (review.Run, error) {
	now := s.now()
	run := review.Run{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(id, name, created_at, updated_at) VALUES(?, ?, ?, ?)`,
		run.ID, run.Name, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return review.Run{}, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

const runColumns = `id, name, status, message, document_names, created_at, updated_at`

func scanRun(row interface{ Scan(...any) error }) (review.Run, error) {
	var (
		r      review.Run
		status string
	)
	if err := row.Scan(&r.ID, &r.Name, &status, &r.Message, &r.DocumentNames, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return review.Run{}, err
	}
	r.Status = review.Status(status)
	return r, nil
}

// GetRun returns one run. A missing run is a RUN_NOT_FOUND error.
func (s *Store) GetRun(ctx context.Context, id string) (review.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Run{}, runNotFound(id)
	}
	if err != nil {
		return review.Run{}, fmt.Errorf("reading run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]review.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []review.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SetRunStatus records the run state and its user-facing message.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status review.Status, message string) error {
	return s.updateRun(ctx, runID, `UPDATE runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, s.now(), runID)
}

// SetRunDocumentNames records the display names of the run's documents.
func (s *Store) SetRunDocumentNames(ctx context.Context, runID, names string) error {
	return s.updateRun(ctx, runID, `UPDATE runs SET document_names = ?, updated_at = ? WHERE id = ?`,
		names, s.now(), runID)
}

func (s *Store) updateRun(ctx context.Context, runID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return runNotFound(runID)
	}
	return nil
}

// AddChecklists appends items to a run, numbering them after the existing
// ones, and returns the stored items.
func (s *Store) AddChecklists(ctx context.Context, runID string, contents []string) ([]review.ChecklistItem, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM checklists WHERE run_id = ?`, runID).Scan(&next); err != nil {
		return nil, fmt.Errorf("numbering checklists: %w", err)
	}
	now := s.now()
	items := make([]review.ChecklistItem, 0, len(contents))
	for _, c := range contents {
		next++
		if _, err := tx.ExecContext(ctx, `INSERT INTO checklists(run_id, id, content, created_at) VALUES(?, ?, ?, ?)`,
			runID, next, c, now); err != nil {
			return nil, fmt.Errorf("adding checklist: %w", err)
		}
		items = append(items, review.ChecklistItem{ID: next, Content: c})
	}
	return items, tx.Commit()
}

// GetChecklists returns the run's items ordered by id.
func (s *Store) GetChecklists(ctx context.Context, runID string) ([]review.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM checklists WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading checklists: %w", err)
	}
	defer rows.Close()

	var items []review.ChecklistItem
	for rows.Next() {
		var it review.ChecklistItem
		if err := rows.Scan(&it.ID, &it.Content); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteAllReviewResults removes the run's final and per-document results.
func (s *Store) DeleteAllReviewResults(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM review_results WHERE run_id = ?`,
		`DELETE FROM individual_results WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, runID); err != nil {
			return fmt.Errorf("deleting results: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertReviewResults writes final results. A second write for the same
// checklist item replaces the first.
func (s *Store) UpsertReviewResults(ctx context.Context, runID string, results []review.ReviewResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	for _, r := range results {
		_, err := tx.ExecContext(ctx, `INSERT INTO review_results(run_id, checklist_id, evaluation, comment, file_id, file_name, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, checklist_id) DO UPDATE SET evaluation=excluded.evaluation, comment=excluded.comment,
			file_id=excluded.file_id, file_name=excluded.file_name, updated_at=excluded.updated_at`,
			runID, r.ChecklistID, r.Evaluation, r.Comment, r.FileID, r.FileName, now)
		if err != nil {
			return fmt.Errorf("upserting result %d: %w", r.ChecklistID, err)
		}
	}
	return tx.Commit()
}

// UpsertIndividualResults writes per-document comments keyed by
// (checklist id, document id).
func (s *Store) UpsertIndividualResults(ctx context.Context, runID string, results []review.IndividualResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range results {
		_, err := tx.ExecContext(ctx, `INSERT INTO individual_results(run_id, checklist_id, document_id, document_name, comment)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(run_id, checklist_id, document_id) DO UPDATE SET document_name=excluded.document_name, comment=excluded.comment`,
			runID, r.ChecklistID, r.DocumentID, r.DocumentName, r.Comment)
		if err != nil {
			return fmt.Errorf("upserting individual result %d/%s: %w", r.ChecklistID, r.DocumentID, err)
		}
	}
	return tx.Commit()
}

// GetChecklistResultsWithIndividualResults joins the checklist items of the
// run with their final result, if any, and their per-document comments.
// With ids, only those items are returned; otherwise every item is.
func (s *Store) GetChecklistResultsWithIndividualResults(ctx context.Context, runID string, ids ...int) ([]review.ChecklistResult, error) {
	items, err := s.GetChecklists(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		want := make(map[int]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		kept := items[:0]
		for _, it := range items {
			if want[it.ID] {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	out := make([]review.ChecklistResult, len(items))
	index := make(map[int]int, len(items))
	for i, it := range items {
		out[i].Checklist = it
		index[it.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `SELECT checklist_id, evaluation, comment, file_id, file_name, updated_at
		FROM review_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r review.ReviewResult
		if err := rows.Scan(&r.ChecklistID, &r.Evaluation, &r.Comment, &r.FileID, &r.FileName, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[r.ChecklistID]; ok {
			out[i].Result = &r
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	irows, err := s.db.QueryContext(ctx, `SELECT checklist_id, document_id, document_name, comment
		FROM individual_results WHERE run_id = ? ORDER BY checklist_id, document_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading individual results: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var r review.IndividualResult
		if err := irows.Scan(&r.ChecklistID, &r.DocumentID, &r.DocumentName, &r.Comment); err != nil {
			return nil, err
		}
		if i, ok := index[r.ChecklistID]; ok {
			out[i].Individuals = append(out[i].Individuals, r)
		}
	}
	return out, irows.Err()
}

// GetMaxTotalChunksForDocument returns the largest chunk count recorded for
// the file and purpose, or 0.
func (s *Store) GetMaxTotalChunksForDocument(ctx context.Context, fileID, purpose string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT total_chunks FROM document_chunks WHERE file_id = ? AND purpose = ?`,
		fileID, purpose).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// RecordTotalChunksForDocument stores total unless a larger count is
// already recorded.
func (s *Store) RecordTotalChunksForDocument(ctx context.Context, fileID, purpose string, total int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO document_chunks(file_id, purpose, total_chunks, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(file_id, purpose) DO UPDATE SET total_chunks=MAX(total_chunks, excluded.total_chunks), updated_at=excluded.updated_at`,
		fileID, purpose, total, s.now())
	return err
}

// marshalImages encodes page images for the image_data column.
func marshalImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	return string(b), err
}
