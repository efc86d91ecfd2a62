package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config bounds the work done per request.
type Config struct {
	// PoolSize caps the number of candidates scanned.
	PoolSize int
	// CandidateVisits and CandidateLabs cap each candidate's history window.
	CandidateVisits int
	CandidateLabs   int
	// Workers caps concurrent candidate fetches against the store.
	Workers int
	Rank    RankOptions
	Weights Weights
}

func DefaultConfig() Config {
	return Config{
		PoolSize:        50,
		CandidateVisits: 20,
		CandidateLabs:   15,
		Workers:         8,
		Rank:            DefaultRankOptions(),
		Weights:         DefaultWeights(),
	}
}

// Metrics receives engine observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveSearch(searchType, outcome string, elapsed time.Duration, scanned, returned int)
	CandidateFailed()
}

type nopMetrics struct{}

func (nopMetrics) ObserveSearch(string, string, time.Duration, int, int) {}
func (nopMetrics) CandidateFailed() {}

// Service finds patients whose histories resemble a reference patient.
type Service struct {
	repo    Repository
	builder *ProfileBuilder
	scorer  *Scorer
	cfg     Config
	logger  zerolog.Logger
	metrics Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock fixes the time used for age computation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, extractor *TermExtractor, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Workers <= 0 {
		s.cfg.Workers = 1
	}
	s.builder = NewProfileBuilder(extractor, s.now)
	s.scorer = NewScorer(cfg.Weights)
	return s
}

// FindSimilarPatients ranks the candidate pool against the reference
// patient. It fails only when the reference does not exist, the search type
// is unknown, the candidate pool cannot be listed, or ctx ends. A candidate
// whose history cannot be read is left out of the results.
func (s *Service) FindSimilarPatients(ctx context.Context, referenceID int64, st SearchType) ([]SimilarityResult, error) {
	start := time.Now()
	results, scanned, err := s.findSimilar(ctx, referenceID, st)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrPatientNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveSearch(string(st), outcome, time.Since(start), scanned, len(results))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("reference_patient_id", referenceID).
		Str("search_type", string(st)).
		Int("candidates", scanned).
		Int("results", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("similar patients computed")
	return results, nil
}

func (s *Service) findSimilar(ctx context.Context, referenceID int64, st SearchType) ([]SimilarityResult, int, error) {
	if !st.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidSearchType, st)
	}

	ref, err := s.repo.GetPatient(ctx, referenceID)
	if err != nil {
		return nil, 0, err
	}
	refVisits, err := s.repo.ListVisitHistory(ctx, referenceID, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("reference visit history: %w", err)
	}
	refLabs, err := s.repo.ListLabHistory(ctx, referenceID, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("reference lab history: %w", err)
	}
	refProfile := s.builder.Build(ref, refVisits, refLabs)

	candidates, err := s.repo.ListCandidatePatients(ctx, referenceID, 1, s.cfg.PoolSize)
	if err != nil {
		return nil, 0, err
	}

	scored := make([]*scoredCase, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, c := range candidates {
		if c.ID == referenceID {
			continue
		}
		g.Go(func() error {
			sc, err := s.scoreCandidate(ctx, refProfile, c, st)
			if err != nil {
				if ctx.Err() == nil {
					s.metrics.CandidateFailed()
					s.logger.Warn().Err(err).
						Int64("reference_patient_id", referenceID).
						Int64("candidate_id", c.ID).
						Msg("candidate skipped")
				}
				return nil
			}
			scored[i] = sc
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, len(candidates), err
	}

	ranked := rank(scored, s.cfg.Rank)
	out := make([]SimilarityResult, 0, len(ranked))
	for _, sc := range ranked {
		out = append(out, shapeResult(sc))
	}
	return out, len(candidates), nil
}

func (s *Service) scoreCandidate(ctx context.Context, ref *PatientProfile, c *Candidate, st SearchType) (*scoredCase, error) {
	visits, err := s.repo.ListVisitHistory(ctx, c.ID, s.cfg.CandidateVisits)
	if err != nil {
		return nil, err
	}
	labs, err := s.repo.ListLabHistory(ctx, c.ID, s.cfg.CandidateLabs)
	if err != nil {
		return nil, err
	}
	prof := s.builder.Build(&c.Patient, visits, labs)
	score, bd := s.scorer.Score(ref, prof, st)
	return &scoredCase{
		candidate:  c,
		visits:     visits,
		labs:       labs,
		profile:    prof,
		score:      score,
		breakdown:  bd,
		categories: MatchingCategories(ref, prof),
	}, nil
}
