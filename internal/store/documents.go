package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/review"
)

// DocumentCache is an extracted document stored for a run, so that chat
// can reuse it without extracting again.
type DocumentCache struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"runId"`
	Document  review.Document `json:"document"`
	CreatedAt time.Time       `json:"createdAt"`
}

const documentColumns = `id, run_id, document_id, file_id, name, path, type, process_mode, text_content, image_data, created_at`

func scanDocument(row interface{ Scan(...any) error }) (DocumentCache, error) {
	var (
		c      DocumentCache
		mode   string
		images string
	)
	d := &c.Document
	if err := row.Scan(&c.ID, &c.RunID, &d.ID, &d.FileID, &d.Name, &d.Path, &d.Type, &mode, &d.Text, &images, &c.CreatedAt); err != nil {
		return DocumentCache{}, err
	}
	d.Mode = extract.Mode(mode)
	if err := json.Unmarshal([]byte(images), &d.Images); err != nil {
		return DocumentCache{}, fmt.Errorf("decoding images of %s: %w", d.Name, err)
	}
	if len(d.Images) == 0 {
		d.Images = nil
	}
	return c, nil
}

// SaveReviewDocuments replaces the run's stored documents.
func (s *Store) SaveReviewDocuments(ctx context.Context, runID string, docs []review.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_documents WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	now := s.now()
	for _, d := range docs {
		images, err := marshalImages(d.Images)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO review_documents(run_id, document_id, file_id, name, path, type, process_mode, text_content, image_data, created_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, d.ID, d.FileID, d.Name, d.Path, d.Type, string(d.Mode), d.Text, images, now)
		if err != nil {
			return fmt.Errorf("saving document %s: %w", d.Name, err)
		}
	}
	return tx.Commit()
}

// ListReviewDocuments returns the run's documents in id order.
func (s *Store) ListReviewDocuments(ctx context.Context, runID string) ([]review.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM review_documents WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []review.Document
	for rows.Next() {
		c, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, c.Document)
	}
	return docs, rows.Err()
}

// GetReviewDocumentCacheByID returns one stored document by its row id.
func (s *Store) GetReviewDocumentCacheByID(ctx context.Context, id int64) (DocumentCache, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM review_documents WHERE id = ?`, id)
	return documentOrNotFound(row, fmt.Sprintf("document cache %d not found", id))
}

// GetReviewDocumentCacheByDocumentID returns the run's document with the
// given document id.
func (s *Store) GetReviewDocumentCacheByDocumentID(ctx context.Context, runID, documentID string) (DocumentCache, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM review_documents WHERE run_id = ? AND document_id = ?`,
		runID, documentID)
	return documentOrNotFound(row, fmt.Sprintf("document %s not found in run %s", documentID, runID))
}

func documentOrNotFound(row *sql.Row, msg string) (DocumentCache, error) {
	c, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentCache{}, apperr.New(apperr.CodeDocumentNotFound, msg, true)
	}
	return c, err
}
