package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSubmission scans a row into a Submission struct.
func scanSubmission(s scanner) (*Submission, error) {
	sub := &Submission{}
	var feedbackType, priority string

	err := s.Scan(
		&sub.ID, &sub.RequestID, &sub.InfectionCategory, &sub.AllergyStatus,
		&feedbackType, &sub.RecommendedRegimen, &sub.ExpectedRegimen,
		&sub.Comment, &priority, &sub.Reviewed, &sub.Reviewer, &sub.ReviewNotes,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.FeedbackType = Type(feedbackType)
	sub.Priority = Priority(priority)
	return sub, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		infection_category TEXT NOT NULL,
		allergy_status TEXT DEFAULT '',
		feedback_type TEXT NOT NULL,
		recommended_regimen TEXT NOT NULL,
		expected_regimen TEXT DEFAULT '',
		comment TEXT DEFAULT '',
		priority TEXT NOT NULL,
		reviewed INTEGER NOT NULL DEFAULT 0,
		reviewer TEXT DEFAULT '',
		review_notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(request_id, feedback_type)
	);

	CREATE INDEX IF NOT EXISTS idx_request_id ON feedback(request_id);
	CREATE INDEX IF NOT EXISTS idx_infection_category ON feedback(infection_category);
	CREATE INDEX IF NOT EXISTS idx_priority ON feedback(priority);
	CREATE INDEX IF NOT EXISTS idx_created_at ON feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const selectColumns = `id, request_id, infection_category, allergy_status,
		feedback_type, recommended_regimen, expected_regimen,
		comment, priority, reviewed, reviewer, review_notes,
		created_at, updated_at`

// Save stores or updates feedback for a recommendation.
func (s *SQLiteStore) Save(ctx context.Context, sub *Submission) error {
	now := time.Now()
	if sub.Priority == "" {
		sub.Priority = PriorityFor(sub.FeedbackType)
	}

	// Check if exists
	var existingID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM feedback WHERE request_id = ? AND feedback_type = ?",
		sub.RequestID, string(sub.FeedbackType),
	).Scan(&existingID)

	if err == nil {
		// Update existing
		sub.ID = existingID
		sub.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE feedback SET
				infection_category = ?,
				allergy_status = ?,
				recommended_regimen = ?,
				expected_regimen = ?,
				comment = ?,
				priority = ?,
				updated_at = ?
			WHERE id = ?
		`,
			sub.InfectionCategory,
			sub.AllergyStatus,
			sub.RecommendedRegimen,
			sub.ExpectedRegimen,
			sub.Comment,
			string(sub.Priority),
			now,
			existingID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	// Insert new
	sub.CreatedAt = now
	sub.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			request_id, infection_category, allergy_status,
			feedback_type, recommended_regimen, expected_regimen,
			comment, priority, reviewed, reviewer, review_notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.RequestID,
		sub.InfectionCategory,
		sub.AllergyStatus,
		string(sub.FeedbackType),
		sub.RecommendedRegimen,
		sub.ExpectedRegimen,
		sub.Comment,
		string(sub.Priority),
		sub.Reviewed,
		sub.Reviewer,
		sub.ReviewNotes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	sub.ID = id

	return nil
}

// Get retrieves feedback for a request and type.
func (s *SQLiteStore) Get(ctx context.Context, requestID string, feedbackType Type) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM feedback
		WHERE request_id = ? AND feedback_type = ?
		LIMIT 1
	`, requestID, string(feedbackType))

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return sub, nil
}

// List returns feedback entries newest first with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM feedback
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// Count returns the total number of feedback entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&count)
	return count, err
}

// Stats aggregates totals by type and priority.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:     make(map[string]int64),
		ByPriority: make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback WHERE reviewed = 0").Scan(&stats.PendingReview); err != nil {
		return nil, fmt.Errorf("failed to count pending: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT feedback_type, COUNT(*) FROM feedback GROUP BY feedback_type")
	if err != nil {
		return nil, fmt.Errorf("failed to group by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ft string
		var n int64
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[ft] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, "SELECT priority, COUNT(*) FROM feedback GROUP BY priority")
	if err != nil {
		return nil, fmt.Errorf("failed to group by priority: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p string
		var n int64
		if err := prows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		stats.ByPriority[p] = n
	}
	return stats, prows.Err()
}

// MarkReviewed records the reviewer's disposition for an entry.
func (s *SQLiteStore) MarkReviewed(ctx context.Context, id int64, reviewer, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback SET reviewed = 1, reviewer = ?, review_notes = ?, updated_at = ?
		WHERE id = ?
	`, reviewer, notes, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reviewed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("feedback entry %d not found", id)
	}
	return nil
}

// Delete removes a feedback entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM feedback WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all feedback to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports feedback from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, sub := range export.Feedback {
		existing, err := s.Get(ctx, sub.RequestID, sub.FeedbackType)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, sub); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
