// Command build runs the batch pipeline headlessly: ingest the three CSV
// tables, run a feature build, persist the feature tables, and print the
// aggregate summary.
package main

import (
	"context"
	"flag"
	"os"

	"promo-attribution-api/internal/builder"
	"promo-attribution-api/internal/database"
	"promo-attribution-api/internal/events"
	"promo-attribution-api/internal/features"
	"promo-attribution-api/internal/logging"
	"promo-attribution-api/internal/service"
)

const (
	defaultDBPath         = "./promo_attribution.db"
	defaultPortfolioPath  = "./data/portfolio.csv"
	defaultProfilePath    = "./data/profile.csv"
	defaultTranscriptPath = "./data/transcript.csv"
)

func main() {
	dbPath := flag.String("db", defaultDBPath, "Database file path")
	portfolioPath := flag.String("portfolio", defaultPortfolioPath, "Portfolio CSV path")
	profilePath := flag.String("profile", defaultProfilePath, "Profile CSV path")
	transcriptPath := flag.String("transcript", defaultTranscriptPath, "Transcript CSV path")
	workers := flag.Int("workers", 4, "Number of parallel per-user workers")
	skipIngest := flag.Bool("skip-ingest", false, "Build from the already-stored dataset")
	env := flag.String("env", "development", "Logging environment")
	flag.Parse()

	logging.Init("promo-attribution-build", *env)
	logger := logging.Logger()

	db, err := database.NewDB(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, false, "feature-row cache")
	defer flags.Shutdown()

	eventManager := events.NewManager(false)
	defer eventManager.Shutdown()

	svc := service.NewService(service.Options{
		DB:      db,
		Flags:   flags,
		Events:  eventManager,
		Builder: builder.New(*workers, logger),
		Logger:  logger,
	})

	ctx := context.Background()

	if !*skipIngest {
		ingested, err := svc.IngestDataset(ctx, *portfolioPath, *profilePath, *transcriptPath)
		if err != nil {
			logger.Error().Err(err).Msg("dataset ingest failed")
			os.Exit(1)
		}
		logger.Info().
			Int("portfolio_rows", ingested.PortfolioRows).
			Int("profile_rows", ingested.ProfileRows).
			Int("transcript_rows", ingested.TranscriptRows).
			Msg("dataset loaded")
	}

	summary, err := svc.RunBuild(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("feature build failed")
		os.Exit(1)
	}

	logger.Info().
		Str("build_id", summary.BuildID).
		Int("users", summary.Users).
		Int("users_no_offers", summary.UsersNoOffers).
		Int("offer_instances", summary.OfferInstances).
		Int("cohort_max_time", summary.CohortMaxTime).
		Msg("feature tables written")
}
