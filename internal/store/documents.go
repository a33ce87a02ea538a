package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const analysisColumns = "id, document_id, status, extracted_text, tags, generated_filename, error_message, created_at, updated_at"

func scanAnalysis(row rowScanner) (*DocumentAnalysis, error) {
	var a DocumentAnalysis
	var tagsJSON string
	if err := row.Scan(&a.ID, &a.DocumentID, &a.Status, &a.ExtractedText, &tagsJSON, &a.GeneratedFilename, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
		a.Tags = nil
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return &a, nil
}

// CreateDocument stores doc together with a pending analysis row.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) (*DocumentAnalysis, error) {
	now := utcNow()
	doc.CreatedAt = now
	analysis := &DocumentAnalysis{Status: AnalysisPending, Tags: []string{}, CreatedAt: now, UpdatedAt: now}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.queryRow(ctx, tx, `
            INSERT INTO documents (user_id, original_filename, file_url, content_type, size_bytes, created_at)
            VALUES (?, ?, ?, ?, ?, ?)
            RETURNING id`,
			doc.UserID, doc.OriginalFilename, doc.FileURL, doc.ContentType, doc.SizeBytes, now,
		).Scan(&doc.ID)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		analysis.DocumentID = doc.ID
		err = s.queryRow(ctx, tx, `
            INSERT INTO document_analyses (document_id, status, tags, created_at, updated_at)
            VALUES (?, ?, '[]', ?, ?)
            RETURNING id`,
			doc.ID, analysis.Status, now, now,
		).Scan(&analysis.ID)
		if err != nil {
			return fmt.Errorf("failed to insert document analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// GetDocument returns nil when the user owns no document with the id.
func (s *Store) GetDocument(ctx context.Context, id, userID int64) (*DocumentWithAnalysis, error) {
	var d DocumentWithAnalysis
	err := s.queryRow(ctx, s.db, `
        SELECT id, user_id, original_filename, file_url, content_type, size_bytes, created_at
        FROM documents WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&d.ID, &d.UserID, &d.OriginalFilename, &d.FileURL, &d.ContentType, &d.SizeBytes, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	analysis, err := s.GetDocumentAnalysis(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Analysis = analysis
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID int64) ([]DocumentWithAnalysis, error) {
	rows, err := s.query(ctx, s.db, `
        SELECT id, user_id, original_filename, file_url, content_type, size_bytes, created_at
        FROM documents WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	docs := []DocumentWithAnalysis{}
	for rows.Next() {
		var d DocumentWithAnalysis
		if err := rows.Scan(&d.ID, &d.UserID, &d.OriginalFilename, &d.FileURL, &d.ContentType, &d.SizeBytes, &d.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	for i := range docs {
		analysis, err := s.GetDocumentAnalysis(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Analysis = analysis
	}
	return docs, nil
}

// GetDocumentAnalysis returns nil when the document has no analysis row.
func (s *Store) GetDocumentAnalysis(ctx context.Context, documentID int64) (*DocumentAnalysis, error) {
	a, err := scanAnalysis(s.queryRow(ctx, s.db, "SELECT "+analysisColumns+" FROM document_analyses WHERE document_id = ?", documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document analysis: %w", err)
	}
	return a, nil
}

func (s *Store) SetAnalysisStatus(ctx context.Context, documentID int64, status AnalysisStatus, errMsg string) error {
	_, err := s.exec(ctx, s.db,
		"UPDATE document_analyses SET status = ?, error_message = ?, updated_at = ? WHERE document_id = ?",
		status, errMsg, utcNow(), documentID)
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}
	return nil
}

// CompleteAnalysis records the analysis result and marks it completed.
func (s *Store) CompleteAnalysis(ctx context.Context, documentID int64, extractedText string, tags []string, generatedFilename string) error {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = s.exec(ctx, s.db, `
        UPDATE document_analyses
        SET status = ?, extracted_text = ?, tags = ?, generated_filename = ?, error_message = '', updated_at = ?
        WHERE document_id = ?`,
		AnalysisCompleted, extractedText, string(tagsJSON), generatedFilename, utcNow(), documentID)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}
	return nil
}
