package feedback

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func submissionColumns() []string {
	return []string{
		"id", "request_id", "infection_category", "allergy_status",
		"feedback_type", "recommended_regimen", "expected_regimen",
		"comment", "priority", "reviewed", "reviewer", "review_notes",
		"created_at", "updated_at",
	}
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	store, err := NewPostgresStore(nil)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestPostgresStore_Save_Upsert(t *testing.T) {
	store, mock := newMockStore(t)

	sub := sampleSubmission()
	mock.ExpectQuery("INSERT INTO feedback").
		WithArgs(
			sub.RequestID, sub.InfectionCategory, sub.AllergyStatus,
			string(sub.FeedbackType), sub.RecommendedRegimen, sub.ExpectedRegimen,
			sub.Comment, string(PriorityHigh), sub.Reviewed, sub.Reviewer,
			sub.ReviewNotes, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	err := store.Save(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sub.ID)
	assert.Equal(t, PriorityHigh, sub.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows(submissionColumns()).AddRow(
		int64(3), "req-abc", "pyelonephritis", "mild_allergy",
		"incorrect_dose", "Ceftriaxone 1 g IV q24h", "Ceftriaxone 2 g IV q24h",
		"comment", "high", false, "", "", now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM feedback").
		WithArgs("req-abc", "incorrect_dose").
		WillReturnRows(rows)

	sub, err := store.Get(context.Background(), "req-abc", TypeIncorrectDose)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, int64(3), sub.ID)
	assert.Equal(t, TypeIncorrectDose, sub.FeedbackType)
	assert.Equal(t, PriorityHigh, sub.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM feedback").
		WithArgs("missing", "other").
		WillReturnError(sql.ErrNoRows)

	sub, err := store.Get(context.Background(), "missing", TypeOther)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows(submissionColumns()).
		AddRow(int64(2), "req-2", "cap", "", "incorrect_drug", "Azithromycin 500 mg", "", "", "critical", false, "", "", now, now).
		AddRow(int64(1), "req-1", "cystitis", "", "other", "Nitrofurantoin 100 mg", "", "", "normal", true, "rx", "ok", now, now)
	mock.ExpectQuery("SELECT (.+) FROM feedback ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(rows)

	result, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "req-2", result[0].RequestID)
	assert.Equal(t, TypeIncorrectDrug, result[0].FeedbackType)
	assert.True(t, result[1].Reviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM feedback").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM feedback WHERE reviewed = FALSE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT feedback_type, COUNT\\(\\*\\) FROM feedback GROUP BY feedback_type").
		WillReturnRows(sqlmock.NewRows([]string{"feedback_type", "count"}).
			AddRow("incorrect_drug", int64(3)).
			AddRow("other", int64(2)))
	mock.ExpectQuery("SELECT priority, COUNT\\(\\*\\) FROM feedback GROUP BY priority").
		WillReturnRows(sqlmock.NewRows([]string{"priority", "count"}).
			AddRow("critical", int64(3)).
			AddRow("normal", int64(2)))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.PendingReview)
	assert.Equal(t, int64(3), stats.ByType["incorrect_drug"])
	assert.Equal(t, int64(3), stats.ByPriority["critical"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkReviewed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE feedback SET reviewed = TRUE").
		WithArgs("id-pharmacist", "Guideline updated", sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkReviewed(context.Background(), 4, "id-pharmacist", "Guideline updated")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkReviewed_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE feedback SET reviewed = TRUE").
		WithArgs("rx", "", sqlmock.AnyArg(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkReviewed(context.Background(), 99, "rx", "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM feedback WHERE id").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Delete(context.Background(), 4)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
