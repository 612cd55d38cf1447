package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

type reputationProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.ProviderProfile, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ProviderProfile, error)
	UpdateRatingStats(ctx context.Context, exec sqlx.ExtContext, id string, average float64, total int) error
	UpdateProjectStats(ctx context.Context, exec sqlx.ExtContext, id string, totalProjects int, completionRate float64) error
}

type ratingAggregateReader interface {
	AggregateForProvider(ctx context.Context, exec sqlx.ExtContext, providerID string) (models.RatingAggregate, error)
}

type projectStatsReader interface {
	StatsByProvider(ctx context.Context, exec sqlx.ExtContext, providerID string) (models.ProviderProjectStats, error)
}

// ReputationServiceConfig tunes summary caching.
type ReputationServiceConfig struct {
	CacheTTL time.Duration
}

// ReputationServiceParams groups constructor dependencies.
type ReputationServiceParams struct {
	Profiles reputationProfileStore
	Ratings  ratingAggregateReader
	Projects projectStatsReader
	Tx       txProvider
	Cache    *CacheService
	Logger   *zap.Logger
	Config   ReputationServiceConfig
}

// ReputationService is the only writer of provider aggregate fields. Every
// recompute reads from source rows under a profile row lock.
type ReputationService struct {
	profiles reputationProfileStore
	ratings  ratingAggregateReader
	projects projectStatsReader
	tx       txProvider
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
	cfg      ReputationServiceConfig
}

// NewReputationService constructs a ReputationService.
func NewReputationService(params ReputationServiceParams) *ReputationService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReputationService{
		profiles: params.Profiles,
		ratings:  params.Ratings,
		projects: params.Projects,
		tx:       params.Tx,
		cache:    params.Cache,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// RecomputeRatings rewrites averageRating and totalRatings inside the caller's transaction.
func (s *ReputationService) RecomputeRatings(ctx context.Context, exec sqlx.ExtContext, providerID string) error {
	if _, err := s.profiles.LockByID(ctx, exec, providerID); err != nil {
		return lookupError(err, "provider profile")
	}
	agg, err := s.ratings.AggregateForProvider(ctx, exec, providerID)
	if err != nil {
		return internalError(err, "failed to aggregate ratings")
	}
	average := round2(agg.Average)
	if err := s.profiles.UpdateRatingStats(ctx, exec, providerID, average, agg.Count); err != nil {
		return lookupError(err, "provider profile")
	}
	s.logger.Sugar().Debugw("provider ratings recomputed", "provider_id", providerID, "average", average, "total", agg.Count)
	return nil
}

// RecomputeProjects rewrites totalProjects and completionRate inside the caller's transaction.
// Cancelled projects are excluded from the total and the rate only counts finished projects.
func (s *ReputationService) RecomputeProjects(ctx context.Context, exec sqlx.ExtContext, providerID string) error {
	if _, err := s.profiles.LockByID(ctx, exec, providerID); err != nil {
		return lookupError(err, "provider profile")
	}
	stats, err := s.projects.StatsByProvider(ctx, exec, providerID)
	if err != nil {
		return internalError(err, "failed to aggregate projects")
	}
	rate := CompletionRate(stats)
	if err := s.profiles.UpdateProjectStats(ctx, exec, providerID, stats.Total, rate); err != nil {
		return lookupError(err, "provider profile")
	}
	s.logger.Sugar().Debugw("provider projects recomputed", "provider_id", providerID, "total", stats.Total, "completion_rate", rate)
	return nil
}

// CompletionRate is completed / (completed + cancelled) as a percentage rounded to 2 dp.
func CompletionRate(stats models.ProviderProjectStats) float64 {
	finished := stats.Completed + stats.Cancelled
	if finished == 0 {
		return 0
	}
	return round2(float64(stats.Completed) / float64(finished) * 100)
}

// Recompute rebuilds every aggregate for a provider in its own transaction.
func (s *ReputationService) Recompute(ctx context.Context, providerID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.RecomputeRatings(ctx, tx, providerID); err != nil {
		return err
	}
	if err = s.RecomputeProjects(ctx, tx, providerID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return internalError(err, "failed to commit reputation recompute")
	}
	s.Invalidate(ctx, providerID)
	s.logger.Sugar().Infow("provider reputation recomputed", "provider_id", providerID)
	return nil
}

// Summary returns the provider's public standing and whether it came from cache.
func (s *ReputationService) Summary(ctx context.Context, providerID string) (*models.ReputationSummary, bool, error) {
	key := reputationCacheKey(providerID)
	var cached models.ReputationSummary
	if s.cache.Lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	profile, err := s.profiles.GetByID(ctx, providerID)
	if err != nil {
		return nil, false, lookupError(err, "provider profile")
	}
	summary := &models.ReputationSummary{
		ProviderID:     profile.ID,
		BusinessName:   profile.BusinessName,
		ProviderType:   string(profile.ProviderType),
		IsVerified:     profile.IsVerified,
		AverageRating:  profile.AverageRating,
		TotalRatings:   profile.TotalRatings,
		TotalProjects:  profile.TotalProjects,
		CompletionRate: profile.CompletionRate,
		GeneratedAt:    s.now().UTC(),
	}
	s.cache.Store(ctx, key, summary, s.cfg.CacheTTL)
	return summary, false, nil
}

// Invalidate drops the cached summary. Call it after the recompute transaction commits.
func (s *ReputationService) Invalidate(ctx context.Context, providerID string) {
	s.cache.Evict(ctx, reputationCacheKey(providerID))
}

func reputationCacheKey(providerID string) string {
	return fmt.Sprintf("reputation:%s", providerID)
}
