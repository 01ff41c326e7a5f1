package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deesatzed/tuhs-abx-steward/internal/database"
	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/feedback"
	"github.com/deesatzed/tuhs-abx-steward/internal/guideline"
	"github.com/deesatzed/tuhs-abx-steward/internal/service"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, fbStore feedback.Store) *Server {
	return newTestServerWithDB(t, fbStore, nil)
}

func newTestServerWithDB(t *testing.T, fbStore feedback.Store, db *database.DB) *Server {
	t.Helper()
	logger := testLogger()

	store, err := guideline.NewStore("../../guidelines", logger)
	require.NoError(t, err)

	engine := service.NewEngine(
		store,
		service.NewSelector(logger),
		service.NewCalculator([]string{"vancomycin"}, logger),
		service.DefaultConfidenceConfig(),
		nil,
		logger,
	)

	cfg := &domain.Config{}
	cfg.Logging.Level = "info"

	return NewServer(cfg, engine, fbStore, nil, db, logger)
}

// unreachableDB builds a DB around a pool pointed at a closed port. The pool
// connects lazily, so construction succeeds and Ping fails at call time.
func unreachableDB(t *testing.T) *database.DB {
	t.Helper()
	poolConfig, err := pgxpool.ParseConfig("host=127.0.0.1 port=1 dbname=abx user=abx password=abx sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &database.DB{Pool: pool}
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["guideline_version"])
	assert.NotContains(t, body, "database")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealth_DatabaseUnreachable(t *testing.T) {
	srv := newTestServerWithDB(t, nil, unreachableDB(t))

	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "unreachable", body["database"])
}

func TestRecommend_LegacyPayload(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recommend", RecommendRequest{
		Age:           "72 years",
		WeightKg:      "80 kg",
		GFR:           "75 mL/min",
		InfectionType: "uti",
		InfRisks:      "fever, rigors",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var rec domain.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Success)
	assert.Equal(t, "pyelonephritis", rec.InfectionCategory)
	assert.Equal(t, domain.RouteIV, rec.Route)
	require.NotEmpty(t, rec.Drugs)
	assert.Equal(t, "Ceftriaxone", rec.Drugs[0].DrugName)
	assert.NotEmpty(t, rec.RecommendationText)
}

func TestRecommend_LegacyTaxonomyAdapter(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recommend", RecommendRequest{
		Age:           "40",
		InfectionType: "pyelonephritis",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var rec domain.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Success)
	assert.Equal(t, "pyelonephritis", rec.InfectionCategory)
}

func TestRecommend_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommend_NonNumericAge(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recommend", RecommendRequest{
		Age:           "unknown",
		InfectionType: "uti",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommend_UnknownInfection(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/recommend", RecommendRequest{
		Age:           "40",
		InfectionType: "endocarditis",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var rec domain.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.False(t, rec.Success)
	assert.NotEmpty(t, rec.Errors)
}

func TestDiagnostics(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		GuidelineVersion string   `json:"guideline_version"`
		Infections       int      `json:"infections"`
		Drugs            int      `json:"drugs"`
		Violations       []string `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.GuidelineVersion)
	assert.Greater(t, body.Infections, 0)
	assert.Greater(t, body.Drugs, 0)
	assert.Empty(t, body.Violations)
}

func TestDiagnostics_DatabasePoolStats(t *testing.T) {
	srv := newTestServerWithDB(t, nil, unreachableDB(t))

	w := doRequest(t, srv, http.MethodGet, "/api/v1/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	db, ok := body["database"].(map[string]interface{})
	require.True(t, ok, "diagnostics should report pool stats when a pool is configured")
	assert.Contains(t, db, "total_conns")
	assert.Contains(t, db, "idle_conns")
	assert.Contains(t, db, "acquired_conns")
	assert.Contains(t, db, "max_conns")
}

func TestReload(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestFeedback_RoundTrip(t *testing.T) {
	fbStore, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer fbStore.Close()

	srv := newTestServer(t, fbStore)

	w := doRequest(t, srv, http.MethodPost, "/api/feedback", map[string]string{
		"request_id":          "req-1",
		"infection_category":  "pyelonephritis",
		"feedback_type":       "incorrect_drug",
		"recommended_regimen": "Ceftriaxone 1 g IV q24h",
		"expected_regimen":    "Cefepime 2 g IV q8h",
		"comment":             "Prior ESBL isolate",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "critical", created["priority"])

	w = doRequest(t, srv, http.MethodGet, "/api/feedback/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats feedback.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByType["incorrect_drug"])
}

func TestFeedback_MissingRequiredFields(t *testing.T) {
	fbStore, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer fbStore.Close()

	srv := newTestServer(t, fbStore)

	w := doRequest(t, srv, http.MethodPost, "/api/feedback", map[string]string{
		"request_id": "req-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback_StoreNotConfigured(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/api/feedback", map[string]string{
		"request_id":          "req-1",
		"infection_category":  "cap",
		"feedback_type":       "other",
		"recommended_regimen": "Azithromycin 500 mg PO",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/feedback/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recommend", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
