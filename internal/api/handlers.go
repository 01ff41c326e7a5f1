package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deesatzed/tuhs-abx-steward/internal/feedback"
)

// handleHealth reports process liveness, corpus state and database
// reachability when a pool is configured.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.engine.Store().Snapshot()
	body := gin.H{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"guideline_version": snap.Version(),
		"violations":        len(snap.Violations()),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Health(ctx); err != nil {
			body["database"] = "unreachable"
		} else {
			body["database"] = "healthy"
		}
	}

	c.JSON(http.StatusOK, body)
}

// handleRecommend runs the full recommendation pipeline for one case.
func (s *Server) handleRecommend(c *gin.Context) {
	requestID := c.GetString("request_id")
	start := time.Now()

	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": []string{"invalid JSON payload: " + err.Error()}})
		return
	}

	patient, err := req.ToPatientCase()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": []string{err.Error()}})
		return
	}

	rec := s.engine.Recommend(c.Request.Context(), patient)

	if s.auditor != nil {
		status := "ok"
		if !rec.Success {
			status = "failed"
		}
		if err := s.auditor.Record("recommendation", requestID, map[string]interface{}{
			"input":              req,
			"infection_category": rec.InfectionCategory,
			"allergy":            string(rec.AllergyClassification),
			"confidence":         rec.Metadata.Confidence,
			"drug_count":         rec.Metadata.DrugCount,
			"duration_ms":        time.Since(start).Milliseconds(),
			"status":             status,
			"errors":             rec.Errors,
		}); err != nil {
			s.logger.WithError(err).Warn("Audit write failed")
		}
	}

	c.JSON(http.StatusOK, rec)
}

// handleDiagnostics surfaces corpus state and cross-reference violations.
func (s *Server) handleDiagnostics(c *gin.Context) {
	snap := s.engine.Store().Snapshot()
	corpus := snap.Corpus()

	body := gin.H{
		"guideline_version": snap.Version(),
		"infections":        len(corpus.Infections),
		"drugs":             len(corpus.Drugs),
		"violations":        snap.Violations(),
		"timestamp":         time.Now().UTC(),
	}

	if s.auditor != nil {
		if summary, err := s.auditor.Summarize(time.Now()); err == nil {
			body["audit"] = summary
		} else {
			s.logger.WithError(err).Warn("Audit summary failed")
		}
	}

	if s.db != nil {
		stat := s.db.Stats()
		body["database"] = gin.H{
			"total_conns":    stat.TotalConns(),
			"idle_conns":     stat.IdleConns(),
			"acquired_conns": stat.AcquiredConns(),
			"max_conns":      stat.MaxConns(),
		}
	}

	c.JSON(http.StatusOK, body)
}

// handleReload re-reads the guideline corpus from disk. On failure the
// previous snapshot stays active.
func (s *Server) handleReload(c *gin.Context) {
	snap, err := s.engine.Store().Reload()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"guideline_version": snap.Version(),
		"violations":        len(snap.Violations()),
	})
}

// feedbackRequest is the wire payload for clinician feedback.
type feedbackRequest struct {
	RequestID          string `json:"request_id" binding:"required"`
	InfectionCategory  string `json:"infection_category" binding:"required"`
	AllergyStatus      string `json:"allergy_status"`
	FeedbackType       string `json:"feedback_type" binding:"required"`
	RecommendedRegimen string `json:"recommended_regimen" binding:"required"`
	ExpectedRegimen    string `json:"expected_regimen"`
	Comment            string `json:"comment"`
}

// handleFeedback stores one clinician feedback submission.
func (s *Server) handleFeedback(c *gin.Context) {
	if s.feedback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback store is not configured"})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback payload: " + err.Error()})
		return
	}

	sub := &feedback.Submission{
		RequestID:          req.RequestID,
		InfectionCategory:  req.InfectionCategory,
		AllergyStatus:      req.AllergyStatus,
		FeedbackType:       feedback.Type(req.FeedbackType),
		RecommendedRegimen: req.RecommendedRegimen,
		ExpectedRegimen:    req.ExpectedRegimen,
		Comment:            req.Comment,
	}

	if err := s.feedback.Save(c.Request.Context(), sub); err != nil {
		s.logger.WithError(err).Error("Failed to save feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save feedback"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       sub.ID,
		"priority": string(sub.Priority),
	})
}

// handleFeedbackStats aggregates the feedback backlog.
func (s *Server) handleFeedbackStats(c *gin.Context) {
	if s.feedback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback store is not configured"})
		return
	}

	stats, err := s.feedback.Stats(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read feedback stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feedback stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
