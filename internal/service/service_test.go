package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"promo-attribution-api/internal/builder"
	"promo-attribution-api/internal/cache"
	"promo-attribution-api/internal/database"
	"promo-attribution-api/internal/events"
	"promo-attribution-api/internal/features"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupService(t *testing.T) *Service {
	t.Helper()

	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, true, "feature-row cache")
	t.Cleanup(flags.Shutdown)

	eventManager := events.NewManager(false)
	t.Cleanup(eventManager.Shutdown)

	return NewService(Options{
		DB:      setupTestDB(t),
		Cache:   cache.NewInMemoryCache(),
		Flags:   flags,
		Events:  eventManager,
		Builder: builder.New(2, zerolog.Nop()),
		Logger:  zerolog.Nop(),
	})
}

func writeDataset(t *testing.T) (portfolio, profile, transcript string) {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}

	portfolio = write("portfolio.csv",
		"id,offer_type,difficulty,reward,duration,channels\n"+
			"A,bogo,10,5,5,\"web,email\"\n"+
			"B,discount,20,5,7,web\n")
	profile = write("profile.csv",
		"id,gender,age,income,became_member_on\n"+
			"alice,F,35,72000,20170812\n"+
			"bob,M,41,54000,20160101\n"+
			"carol,,30,40000,20180505\n")
	transcript = write("transcript.csv",
		"id,event,time,offer_id,amount\n"+
			"alice,offer received,0,A,\n"+
			"alice,offer viewed,10,A,\n"+
			"alice,transaction,20,,20\n"+
			"alice,offer completed,50,A,\n"+
			"alice,transaction,200,,5\n"+
			"bob,offer received,0,B,\n"+
			"bob,transaction,30,,8\n"+
			"carol,transaction,100,,2.5\n")
	return portfolio, profile, transcript
}

func runBuild(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()

	portfolio, profile, transcript := writeDataset(t)
	ingested, err := svc.IngestDataset(ctx, portfolio, profile, transcript)
	if err != nil {
		t.Fatalf("IngestDataset failed: %v", err)
	}
	if ingested.ProfileRows != 3 || ingested.PortfolioRows != 2 || ingested.TranscriptRows != 8 {
		t.Fatalf("ingest summary = %+v", ingested)
	}

	summary, err := svc.RunBuild(ctx)
	if err != nil {
		t.Fatalf("RunBuild failed: %v", err)
	}
	return summary.BuildID
}

func TestRunBuild_EndToEnd(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	buildID := runBuild(t, svc)

	alice, err := svc.GetUserFeatures(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserFeatures failed: %v", err)
	}
	if math.Abs(alice.SpentInWindow-20) > 1e-9 || math.Abs(alice.SpentNoWindow-5) > 1e-9 {
		t.Errorf("alice spend split = %f/%f, want 20/5", alice.SpentInWindow, alice.SpentNoWindow)
	}
	if alice.NumOffersReceived != 1 {
		t.Errorf("alice num offers = %d, want 1", alice.NumOffersReceived)
	}

	carol, err := svc.GetUserFeatures(ctx, "carol")
	if err != nil {
		t.Fatalf("GetUserFeatures for zero-offer user failed: %v", err)
	}
	if carol.NumOffersReceived != 0 || carol.ViewRatio != 0 {
		t.Errorf("carol = %+v", carol)
	}

	offers, err := svc.GetUserOffers(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserOffers failed: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer row for alice, got %d", len(offers))
	}
	row := offers[0]
	if !row.Viewed || row.ViewTime != 10 || !row.Completed || row.CompletionTime != 50 {
		t.Errorf("alice offer row = %+v", row)
	}
	if row.WindowLength != 41 || row.TypeBogo != 1 {
		t.Errorf("alice offer row window = %d one-hot bogo = %d", row.WindowLength, row.TypeBogo)
	}

	latest, err := svc.GetLatestBuild(ctx)
	if err != nil {
		t.Fatalf("GetLatestBuild failed: %v", err)
	}
	if latest.BuildID != buildID {
		t.Errorf("latest build = %s, want %s", latest.BuildID, buildID)
	}
	if latest.Users != 3 || latest.UsersNoOffers != 1 || latest.OfferInstances != 2 {
		t.Errorf("build summary = %+v", latest)
	}

	byID, err := svc.GetBuild(ctx, buildID)
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if byID.BuildID != buildID {
		t.Errorf("GetBuild returned %s, want %s", byID.BuildID, buildID)
	}
}

func TestGetUserFeatures_CachedReadsAgree(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	runBuild(t, svc)

	first, err := svc.GetUserFeatures(ctx, "alice")
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	second, err := svc.GetUserFeatures(ctx, "alice")
	if err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if first != second {
		t.Errorf("cached row differs from stored row:\n%+v\n%+v", first, second)
	}
}

func TestGetUserFeatures_UnknownUser(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	runBuild(t, svc)

	_, err := svc.GetUserFeatures(ctx, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunBuild_WithoutDataset(t *testing.T) {
	svc := setupService(t)

	if _, err := svc.RunBuild(context.Background()); err == nil {
		t.Fatal("expected error when building before any dataset is ingested")
	}
}

func TestIngestDataset_BadTranscript(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	portfolio, profile, _ := writeDataset(t)
	bad := filepath.Join(t.TempDir(), "transcript.csv")
	if err := os.WriteFile(bad, []byte("id,event,time,offer_id,amount\nalice,offer exploded,0,A,\n"), 0o644); err != nil {
		t.Fatalf("failed to write transcript: %v", err)
	}

	if _, err := svc.IngestDataset(ctx, portfolio, profile, bad); err == nil {
		t.Fatal("expected ingest to fail on an unknown event kind")
	}
}
