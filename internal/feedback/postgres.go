package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL feedback store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL feedback store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates feedback for a recommendation.
func (s *PostgresStore) Save(ctx context.Context, sub *Submission) error {
	now := time.Now()
	if sub.Priority == "" {
		sub.Priority = PriorityFor(sub.FeedbackType)
	}

	// Upsert (INSERT ... ON CONFLICT)
	query := `
		INSERT INTO feedback (
			request_id, infection_category, allergy_status,
			feedback_type, recommended_regimen, expected_regimen,
			comment, priority, reviewed, reviewer, review_notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (request_id, feedback_type) DO UPDATE SET
			infection_category = EXCLUDED.infection_category,
			allergy_status = EXCLUDED.allergy_status,
			recommended_regimen = EXCLUDED.recommended_regimen,
			expected_regimen = EXCLUDED.expected_regimen,
			comment = EXCLUDED.comment,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
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
	).Scan(&sub.ID, &sub.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	sub.UpdatedAt = now
	return nil
}

// Get retrieves feedback for a request and type.
func (s *PostgresStore) Get(ctx context.Context, requestID string, feedbackType Type) (*Submission, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM feedback
		WHERE request_id = $1 AND feedback_type = $2
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, requestID, string(feedbackType))
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return sub, nil
}

// List returns feedback entries newest first with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Submission, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Stats aggregates totals by type and priority.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:     make(map[string]int64),
		ByPriority: make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback WHERE reviewed = FALSE").Scan(&stats.PendingReview); err != nil {
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
func (s *PostgresStore) MarkReviewed(ctx context.Context, id int64, reviewer, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback SET reviewed = TRUE, reviewer = $1, review_notes = $2, updated_at = $3
		WHERE id = $4
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
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM feedback WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all feedback to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
