package attribution

import (
	"math"
	"testing"

	"promo-attribution-api/internal/models"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func viewedInstance(offerType models.OfferType, viewTime, windowLength int, windowAmount float64) models.OfferInstance {
	return models.OfferInstance{
		OfferID:      "A",
		UserID:       "u1",
		Type:         offerType,
		Viewed:       true,
		ViewTime:     viewTime,
		WindowLength: windowLength,
		WindowAmount: windowAmount,
	}
}

func TestAttribute_SpendSplit(t *testing.T) {
	// The end-to-end example: offer viewed at 10, completed at 50, window
	// [10, 51]; $20 inside and $5 at t=200 outside.
	instances := []models.OfferInstance{
		viewedInstance(models.OfferTypeBogo, 10, 41, 20),
	}
	transactions := []models.Transaction{
		{Time: 20, Amount: 20},
		{Time: 200, Amount: 5},
	}

	row, err := Attribute("u1", transactions, instances, 200)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}

	if !almostEqual(row.SpentTotal, 25) {
		t.Errorf("total = %f, want 25", row.SpentTotal)
	}
	if !almostEqual(row.SpentInWindow, 20) {
		t.Errorf("spent in window = %f, want 20", row.SpentInWindow)
	}
	if !almostEqual(row.SpentNoWindow, 5) {
		t.Errorf("spent outside window = %f, want 5", row.SpentNoWindow)
	}
	if !almostEqual(row.SpentInBogo, 20) {
		t.Errorf("spent in bogo = %f, want 20", row.SpentInBogo)
	}
}

func TestAttribute_OverlappingWindowsNotDoubleCounted(t *testing.T) {
	// Two overlapping windows; a purchase inside both counts once in the
	// split but twice in the per-type columns.
	instances := []models.OfferInstance{
		viewedInstance(models.OfferTypeBogo, 0, 50, 10),
		viewedInstance(models.OfferTypeDiscount, 20, 50, 10),
	}
	transactions := []models.Transaction{
		{Time: 30, Amount: 10},
	}

	row, err := Attribute("u1", transactions, instances, 100)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}

	if !almostEqual(row.SpentInWindow, 10) {
		t.Errorf("spent in window = %f, want 10 (no double counting)", row.SpentInWindow)
	}
	if !almostEqual(row.SpentNoWindow, 0) {
		t.Errorf("spent outside window = %f, want 0", row.SpentNoWindow)
	}
	if !almostEqual(row.SpentInBogo+row.SpentInDiscount, 20) {
		t.Errorf("per-type spend = %f, want 20 (double counting permitted)", row.SpentInBogo+row.SpentInDiscount)
	}
	// Merged coverage is [0, 70]: 70 hours, +1 guard.
	if row.TimeInWindow != 71 {
		t.Errorf("time in window = %d, want 71", row.TimeInWindow)
	}
}

func TestAttribute_SpendConservation(t *testing.T) {
	instances := []models.OfferInstance{
		viewedInstance(models.OfferTypeDiscount, 5, 30, 0),
	}
	transactions := []models.Transaction{
		{Time: 0, Amount: 1.25},
		{Time: 10, Amount: 2.5},
		{Time: 36, Amount: 0.99},
		{Time: 400, Amount: 7.77},
	}

	row, err := Attribute("u1", transactions, instances, 500)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if !almostEqual(row.SpentInWindow+row.SpentNoWindow, row.SpentTotal) {
		t.Errorf("spend not conserved: %f + %f != %f", row.SpentInWindow, row.SpentNoWindow, row.SpentTotal)
	}
}

func TestAttribute_TimeConservation(t *testing.T) {
	// time_in_window + time_no_window = cohortMaxTime + 2 from the two
	// independent +1 guards.
	instances := []models.OfferInstance{
		viewedInstance(models.OfferTypeBogo, 10, 41, 0),
	}

	const cohortMaxTime = 714
	row, err := Attribute("u1", nil, instances, cohortMaxTime)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if got := row.TimeInWindow + row.TimeNoWindow; got != cohortMaxTime+2 {
		t.Errorf("time conservation: %d + %d = %d, want %d",
			row.TimeInWindow, row.TimeNoWindow, got, cohortMaxTime+2)
	}
}

func TestAttribute_ZeroInstances(t *testing.T) {
	transactions := []models.Transaction{
		{Time: 0, Amount: 12}, // t=0 must not fall into the degenerate merged set
		{Time: 50, Amount: 3},
	}

	row, err := Attribute("u1", transactions, nil, 100)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}

	if row.ViewRatio != 0 || row.CompletionRatio != 0 || row.ViewAndCompleteRatio != 0 {
		t.Errorf("ratios for zero instances = %f/%f/%f, want 0/0/0",
			row.ViewRatio, row.CompletionRatio, row.ViewAndCompleteRatio)
	}
	if row.NumOffersReceived != 0 {
		t.Errorf("num offers = %d, want 0", row.NumOffersReceived)
	}
	if !almostEqual(row.SpentNoWindow, 15) || !almostEqual(row.SpentInWindow, 0) {
		t.Errorf("spend split = %f/%f, want 0 in window, 15 outside", row.SpentInWindow, row.SpentNoWindow)
	}
	if row.TimeInWindow != 1 {
		t.Errorf("time in window = %d, want 1 (0 + guard)", row.TimeInWindow)
	}
}

func TestAttribute_TypeWithoutInstancesDefaultsToOne(t *testing.T) {
	instances := []models.OfferInstance{
		viewedInstance(models.OfferTypeBogo, 10, 20, 0),
	}

	row, err := Attribute("u1", nil, instances, 100)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if row.TimeInBogo != 21 {
		t.Errorf("time in bogo = %d, want 21", row.TimeInBogo)
	}
	if row.TimeInDiscount != 1 || row.TimeInInformational != 1 {
		t.Errorf("types without instances = %d/%d, want 1/1",
			row.TimeInDiscount, row.TimeInInformational)
	}
}

func TestAttribute_Ratios(t *testing.T) {
	instances := []models.OfferInstance{
		{Type: models.OfferTypeBogo, Viewed: true, ViewTime: 1, WindowLength: 5, Completed: true, CompletionTime: 5},
		{Type: models.OfferTypeBogo, Viewed: true, ViewTime: 40, WindowLength: 10},
		{Type: models.OfferTypeDiscount},
		{Type: models.OfferTypeDiscount, Completed: true, CompletionTime: 90},
	}

	row, err := Attribute("u1", nil, instances, 200)
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if !almostEqual(row.ViewRatio, 0.5) {
		t.Errorf("view ratio = %f, want 0.5", row.ViewRatio)
	}
	if !almostEqual(row.CompletionRatio, 0.5) {
		t.Errorf("completion ratio = %f, want 0.5", row.CompletionRatio)
	}
	if !almostEqual(row.ViewAndCompleteRatio, 0.25) {
		t.Errorf("view-and-complete ratio = %f, want 0.25", row.ViewAndCompleteRatio)
	}
}
