package evidence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/service"
)

// Confidence thresholds and per-source boosts for the tier state machine.
const (
	tier0Threshold = 0.8
	tier1Threshold = 0.6

	tier1BoostPerSource = 0.05
	tier1BoostCap       = 0.15
	tier2BoostPerSource = 0.03
	tier2BoostCap       = 0.10
)

// Coordinator runs the tiered evidence search: high confidence skips search
// entirely, medium consults high-authority sources, low additionally fans out
// to broader literature. Query failures never fail a recommendation.
type Coordinator struct {
	reputable    []Source
	broader      []Source
	cache        *Cache
	maxInFlight  int
	queryTimeout time.Duration
	logger       *logrus.Logger
}

// NewCoordinator builds a coordinator from configuration. cache may be nil.
func NewCoordinator(cfg domain.EvidenceConfig, cache *Cache, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	reputableCfgs := cfg.Reputable
	if len(reputableCfgs) == 0 {
		reputableCfgs = DefaultReputableSources()
	}
	broaderCfgs := cfg.Broader
	if len(broaderCfgs) == 0 {
		broaderCfgs = DefaultBroaderSources()
	}

	c := &Coordinator{
		cache:        cache,
		maxInFlight:  cfg.MaxInFlight,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}
	if c.maxInFlight <= 0 {
		c.maxInFlight = 4
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = 10 * time.Second
	}
	for _, sc := range reputableCfgs {
		c.reputable = append(c.reputable, NewHTTPSource(sc, c.queryTimeout, logger))
	}
	for _, sc := range broaderCfgs {
		c.broader = append(c.broader, NewHTTPSource(sc, c.queryTimeout, logger))
	}
	return c
}

// NewCoordinatorWithSources wires explicit sources, used by tests.
func NewCoordinatorWithSources(reputable, broader []Source, cache *Cache, maxInFlight int, queryTimeout time.Duration, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Coordinator{
		reputable:    reputable,
		broader:      broader,
		cache:        cache,
		maxInFlight:  maxInFlight,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Search implements service.EvidenceSearcher.
func (c *Coordinator) Search(ctx context.Context, query service.EvidenceQuery, confidence float64) (*domain.SearchTrace, error) {
	trace := &domain.SearchTrace{
		InitialConfidence: confidence,
		FinalConfidence:   confidence,
		History:           []string{},
	}

	// Tier 0: confident enough, no external search
	if confidence >= tier0Threshold {
		trace.Tier = domain.TierGuidelineOnly
		trace.Reasoning = fmt.Sprintf("confidence %.2f >= %.2f, institutional guidelines sufficient", confidence, tier0Threshold)
		return trace, nil
	}

	queryText := buildQuery(query)
	entersTier2 := confidence < tier1Threshold
	if entersTier2 {
		trace.Tier = domain.TierBroader
		trace.Reasoning = fmt.Sprintf("confidence %.2f < %.2f, reputable then broader search", confidence, tier1Threshold)
	} else {
		trace.Tier = domain.TierReputable
		trace.Reasoning = fmt.Sprintf("confidence %.2f < %.2f, consulting reputable sources", confidence, tier0Threshold)
	}
	trace.Searched = true

	// Tier 1: high-authority sources in parallel
	results, err := c.fanOut(ctx, c.reputable, queryText, trace)
	if err != nil {
		return nil, err
	}
	trace.ReputableSources = results
	boost := boostFor(countSourcesWithHits(results), tier1BoostPerSource, tier1BoostCap)
	trace.FinalConfidence = capConfidence(trace.FinalConfidence + boost)
	trace.History = append(trace.History, fmt.Sprintf(
		"tier_1: %d reputable sources returned evidence, confidence %.2f -> %.2f",
		countSourcesWithHits(results), confidence, trace.FinalConfidence))

	// Tier 2: broader literature, only when still below threshold
	if entersTier2 && trace.FinalConfidence < tier1Threshold {
		broader, err := c.fanOut(ctx, c.broader, queryText, trace)
		if err != nil {
			return nil, err
		}
		trace.BroaderSources = broader
		before := trace.FinalConfidence
		boost := boostFor(countSourcesWithHits(broader), tier2BoostPerSource, tier2BoostCap)
		trace.FinalConfidence = capConfidence(trace.FinalConfidence + boost)
		trace.History = append(trace.History, fmt.Sprintf(
			"tier_2: %d broader sources returned evidence, confidence %.2f -> %.2f",
			countSourcesWithHits(broader), before, trace.FinalConfidence))
	}

	return trace, nil
}

// fanOut queries sources in parallel under the in-flight limit. Individual
// failures are logged and recorded in the trace history, never propagated;
// only context cancellation aborts the whole search.
func (c *Coordinator) fanOut(ctx context.Context, sources []Source, query string, trace *domain.SearchTrace) ([]domain.EvidenceSource, error) {
	type sourceResult struct {
		index   int
		name    string
		sources []domain.EvidenceSource
		err     error
	}

	sem := make(chan struct{}, c.maxInFlight)
	resultCh := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(index int, src Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultCh <- sourceResult{index: index, name: src.Name(), err: ctx.Err()}
				return
			}

			if c.cache != nil {
				if cached, ok := c.cache.Get(ctx, src.Name(), query); ok {
					resultCh <- sourceResult{index: index, name: src.Name(), sources: cached}
					return
				}
			}

			queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
			defer cancel()
			found, err := src.Search(queryCtx, query)
			if err == nil && c.cache != nil {
				c.cache.Set(ctx, src.Name(), query, found)
			}
			resultCh <- sourceResult{index: index, name: src.Name(), sources: found, err: err}
		}(i, src)
	}

	wg.Wait()
	close(resultCh)

	// Gather in source order so traces stay deterministic
	ordered := make([]sourceResult, len(sources))
	for r := range resultCh {
		ordered[r.index] = r
	}

	var gathered []domain.EvidenceSource
	for _, r := range ordered {
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WithError(r.err).WithField("source", r.name).Warn("Evidence query failed")
			trace.History = append(trace.History, fmt.Sprintf("%s: query failed", r.name))
			continue
		}
		gathered = append(gathered, r.sources...)
	}
	return gathered, nil
}

func buildQuery(q service.EvidenceQuery) string {
	parts := []string{q.InfectionCategory, "empiric antibiotic therapy"}
	if len(q.DrugNames) > 0 {
		parts = append(parts, strings.Join(q.DrugNames, " "))
	}
	return strings.Join(parts, " ")
}

func countSourcesWithHits(results []domain.EvidenceSource) int {
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.SourceName] = true
	}
	return len(seen)
}

func boostFor(sources int, perSource, limit float64) float64 {
	boost := float64(sources) * perSource
	if boost > limit {
		boost = limit
	}
	return boost
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}
