package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Source is one external medical information source.
type Source interface {
	Name() string
	Search(ctx context.Context, query string) ([]domain.EvidenceSource, error)
}

// HTTPSource queries a JSON search endpoint with rate limiting and a circuit
// breaker per source.
type HTTPSource struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewHTTPSource creates a source client from configuration.
func NewHTTPSource(cfg domain.SourceConfig, timeout time.Duration, logger *logrus.Logger) *HTTPSource {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Evidence source circuit breaker state change")
		},
	})

	return &HTTPSource{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		breaker:    breaker,
		logger:     logger,
	}
}

// Name returns the source identifier used in traces.
func (s *HTTPSource) Name() string {
	return s.name
}

// searchResponse is the generic JSON shape the search endpoints return.
type searchResponse struct {
	Results []struct {
		Title           string  `json:"title"`
		URL             string  `json:"url"`
		RelevanceScore  float64 `json:"relevance_score"`
		KeyFinding      string  `json:"key_finding"`
		PublicationDate string  `json:"publication_date"`
	} `json:"results"`
}

// Search performs one rate-limited, breaker-guarded query.
func (s *HTTPSource) Search(ctx context.Context, query string) ([]domain.EvidenceSource, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.doSearch(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExternalSearch, s.name, err)
	}
	return result.([]domain.EvidenceSource), nil
}

func (s *HTTPSource) doSearch(ctx context.Context, query string) ([]domain.EvidenceSource, error) {
	endpoint := fmt.Sprintf("%s?q=%s", s.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	sources := make([]domain.EvidenceSource, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		sources = append(sources, domain.EvidenceSource{
			SourceName:      s.name,
			Title:           r.Title,
			URL:             r.URL,
			RelevanceScore:  r.RelevanceScore,
			KeyFinding:      r.KeyFinding,
			PublicationDate: r.PublicationDate,
		})
	}
	return sources, nil
}

// DefaultReputableSources returns the tier 1 high-authority source set.
func DefaultReputableSources() []domain.SourceConfig {
	return []domain.SourceConfig{
		{Name: "IDSA", BaseURL: "https://www.idsociety.org/api/search", RateLimit: 2},
		{Name: "CDC", BaseURL: "https://search.cdc.gov/api/search", RateLimit: 2},
		{Name: "WHO", BaseURL: "https://www.who.int/api/search", RateLimit: 2},
		{Name: "UpToDate", BaseURL: "https://www.uptodate.com/api/search", RateLimit: 2},
	}
}

// DefaultBroaderSources returns the tier 2 broader literature set.
func DefaultBroaderSources() []domain.SourceConfig {
	return []domain.SourceConfig{
		{Name: "PubMed", BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi", RateLimit: 3},
		{Name: "Scholar", BaseURL: "https://scholar.google.com/api/search", RateLimit: 1},
	}
}
