// Package builder orchestrates feature extraction across the whole cohort:
// per user it reconstructs offer instances and attributes spend, then
// assembles the user and offer feature tables.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"promo-attribution-api/internal/attribution"
	"promo-attribution-api/internal/models"
	"promo-attribution-api/internal/reconstruct"
)

// Input is the cleaned dataset the builder consumes: the three tables of
// the external schema, already materialized in memory.
type Input struct {
	Portfolio  []models.OfferDefinition
	Profiles   []models.Profile
	Transcript []models.Event
}

// Output holds the two feature tables plus the aggregate build summary.
// Users appear in profile order; offer rows in (user, receipt index) order.
type Output struct {
	Users   []models.UserFeatures
	Offers  []models.OfferFeatureRow
	Summary models.BuildSummary
}

// Builder runs feature builds. Per-user computations share no mutable state,
// so they fan out across a bounded worker group; results land in per-user
// slots to keep output order deterministic regardless of scheduling.
type Builder struct {
	workers int
	logger  zerolog.Logger
}

// New creates a builder. workers <= 1 means sequential processing.
func New(workers int, logger zerolog.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{workers: workers, logger: logger}
}

// Build runs reconstruction and attribution for every profile user.
//
// A data-integrity failure for any user (unknown offer ID, violated spend
// conservation) aborts the build with an error naming that user. Users with
// zero received offers are expected: they get a default feature row and are
// counted in the summary.
func (b *Builder) Build(ctx context.Context, in Input) (*Output, error) {
	catalog, err := reconstruct.NewCatalog(in.Portfolio)
	if err != nil {
		return nil, fmt.Errorf("invalid offer catalog: %w", err)
	}

	byUser := make(map[string][]models.Event, len(in.Profiles))
	cohortMaxTime := 0
	for _, ev := range in.Transcript {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
		if ev.Time > cohortMaxTime {
			cohortMaxTime = ev.Time
		}
	}

	users := make([]models.UserFeatures, len(in.Profiles))
	perUserOffers := make([][]models.OfferFeatureRow, len(in.Profiles))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, profile := range in.Profiles {
		i, profile := i, profile
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			events := byUser[profile.ID]
			instances, err := reconstruct.Reconstruct(profile.ID, events, catalog)
			if err != nil {
				return err
			}

			row, err := attribution.Attribute(profile.ID, transactionsOf(events), instances, cohortMaxTime)
			if err != nil {
				return err
			}
			users[i] = row

			rows := make([]models.OfferFeatureRow, 0, len(instances))
			for _, inst := range instances {
				rows = append(rows, models.NewOfferFeatureRow(inst))
			}
			perUserOffers[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("feature build failed: %w", err)
	}

	out := &Output{Users: users}
	usersNoOffers := 0
	for i, rows := range perUserOffers {
		if len(rows) == 0 {
			usersNoOffers++
			b.logger.Debug().Str("user_id", in.Profiles[i].ID).Msg("user has no offers to extract data from")
		}
		out.Offers = append(out.Offers, rows...)
	}

	out.Summary = models.BuildSummary{
		BuildID:        uuid.New().String(),
		Users:          len(in.Profiles),
		UsersNoOffers:  usersNoOffers,
		OfferInstances: len(out.Offers),
		CohortMaxTime:  cohortMaxTime,
		CreatedAt:      time.Now().UTC(),
	}

	b.logger.Info().
		Str("build_id", out.Summary.BuildID).
		Int("users", out.Summary.Users).
		Int("users_no_offers", out.Summary.UsersNoOffers).
		Int("offer_instances", out.Summary.OfferInstances).
		Int("cohort_max_time", out.Summary.CohortMaxTime).
		Msg("feature build completed")

	return out, nil
}

// transactionsOf extracts the purchase events for one user.
func transactionsOf(events []models.Event) []models.Transaction {
	var txns []models.Transaction
	for _, ev := range events {
		if ev.Kind == models.EventTransaction {
			txns = append(txns, models.Transaction{Time: ev.Time, Amount: ev.Amount})
		}
	}
	return txns
}
