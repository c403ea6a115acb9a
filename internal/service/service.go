package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promo-attribution-api/internal/builder"
	"promo-attribution-api/internal/cache"
	"promo-attribution-api/internal/database"
	"promo-attribution-api/internal/events"
	"promo-attribution-api/internal/features"
	"promo-attribution-api/internal/ingest"
	"promo-attribution-api/internal/models"
	"promo-attribution-api/internal/tracing"
)

// ErrNotFound is returned when a requested user or build has no stored
// features. Serving a user before the first build completes is the usual
// cause.
var ErrNotFound = database.ErrNotFound

// Service provides the business logic for the promo attribution API: it
// loads the cleaned dataset, runs feature builds, and serves the resulting
// feature tables.
type Service struct {
	db       *database.DB
	cache    cache.Cache
	flags    *features.Manager
	events   *events.Manager
	builder  *builder.Builder
	logger   zerolog.Logger
	cacheTTL time.Duration
}

// Options configures a Service.
type Options struct {
	DB       *database.DB
	Cache    cache.Cache
	Flags    *features.Manager
	Events   *events.Manager
	Builder  *builder.Builder
	Logger   zerolog.Logger
	CacheTTL time.Duration
}

// NewService creates a new service instance.
func NewService(opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Service{
		db:       opts.DB,
		cache:    opts.Cache,
		flags:    opts.Flags,
		events:   opts.Events,
		builder:  opts.Builder,
		logger:   opts.Logger,
		cacheTTL: opts.CacheTTL,
	}
}

// IngestDataset reads the three input CSV files, validates them, and stores
// the cleaned tables.
func (s *Service) IngestDataset(ctx context.Context, portfolioPath, profilePath, transcriptPath string) (models.IngestSummary, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.IngestDataset")
	defer span.End()

	portfolio, err := ingest.ReadPortfolio(portfolioPath)
	if err != nil {
		return models.IngestSummary{}, err
	}
	profiles, err := ingest.ReadProfiles(profilePath)
	if err != nil {
		return models.IngestSummary{}, err
	}
	transcript, err := ingest.ReadTranscript(transcriptPath)
	if err != nil {
		return models.IngestSummary{}, err
	}

	if err := s.db.ReplacePortfolio(portfolio); err != nil {
		return models.IngestSummary{}, fmt.Errorf("failed to store portfolio: %w", err)
	}
	if err := s.db.ReplaceProfiles(profiles); err != nil {
		return models.IngestSummary{}, fmt.Errorf("failed to store profiles: %w", err)
	}
	if err := s.db.ReplaceTranscript(transcript); err != nil {
		return models.IngestSummary{}, fmt.Errorf("failed to store transcript: %w", err)
	}

	summary := models.IngestSummary{
		PortfolioRows:  len(portfolio),
		ProfileRows:    len(profiles),
		TranscriptRows: len(transcript),
	}

	s.logger.Info().
		Int("portfolio_rows", summary.PortfolioRows).
		Int("profile_rows", summary.ProfileRows).
		Int("transcript_rows", summary.TranscriptRows).
		Msg("dataset ingested")
	s.events.PublishDatasetIngested(ctx, summary)

	return summary, nil
}

// RunBuild loads the stored dataset, runs the feature builder, and persists
// the resulting feature tables. Cached rows from previous builds are
// invalidated.
func (s *Service) RunBuild(ctx context.Context) (models.BuildSummary, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.RunBuild")
	defer span.End()

	portfolio, err := s.db.LoadPortfolio()
	if err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to load portfolio: %w", err)
	}
	profiles, err := s.db.LoadProfiles()
	if err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to load profiles: %w", err)
	}
	transcript, err := s.db.LoadTranscript()
	if err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(profiles) == 0 {
		return models.BuildSummary{}, fmt.Errorf("no profiles loaded; ingest a dataset first")
	}

	out, err := s.builder.Build(ctx, builder.Input{
		Portfolio:  portfolio,
		Profiles:   profiles,
		Transcript: transcript,
	})
	if err != nil {
		return models.BuildSummary{}, err
	}

	if err := s.db.SaveBuild(out.Summary, out.Users, out.Offers); err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to persist build: %w", err)
	}

	if s.cacheEnabled() {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear feature cache after build")
		}
	}

	s.events.PublishBuildCompleted(ctx, out.Summary)

	return out.Summary, nil
}

// GetUserFeatures returns the feature row for one user, serving from the
// cache when possible.
func (s *Service) GetUserFeatures(ctx context.Context, userID string) (models.UserFeatures, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.GetUserFeatures")
	defer span.End()

	if userID == "" {
		return models.UserFeatures{}, fmt.Errorf("user_id is required")
	}

	key := cache.UserFeaturesKey(userID)
	if s.cacheEnabled() {
		var cached models.UserFeatures
		if err := cache.GetJSON(ctx, s.cache, key, &cached); err == nil {
			s.events.PublishFeaturesQueried(ctx, userID)
			return cached, nil
		}
	}

	row, err := s.db.GetUserFeatures(userID)
	if err != nil {
		return models.UserFeatures{}, err
	}

	if s.cacheEnabled() {
		if err := cache.SetJSON(ctx, s.cache, key, row, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to cache user features")
		}
	}

	s.events.PublishFeaturesQueried(ctx, userID)
	return row, nil
}

// GetUserOffers returns all offer feature rows for one user.
func (s *Service) GetUserOffers(ctx context.Context, userID string) ([]models.OfferFeatureRow, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.GetUserOffers")
	defer span.End()

	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	key := cache.UserOffersKey(userID)
	if s.cacheEnabled() {
		var cached []models.OfferFeatureRow
		if err := cache.GetJSON(ctx, s.cache, key, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.db.GetUserOfferFeatures(userID)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		if err := cache.SetJSON(ctx, s.cache, key, rows, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to cache offer features")
		}
	}

	return rows, nil
}

// GetBuild returns one build summary by ID.
func (s *Service) GetBuild(ctx context.Context, buildID string) (models.BuildSummary, error) {
	if buildID == "" {
		return models.BuildSummary{}, fmt.Errorf("build_id is required")
	}
	return s.db.GetBuild(buildID)
}

// GetLatestBuild returns the most recent build summary.
func (s *Service) GetLatestBuild(ctx context.Context) (models.BuildSummary, error) {
	return s.db.GetLatestBuild()
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.flags.IsEnabled(features.FeatureCacheEnabled)
}
