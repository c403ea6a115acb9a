// Package attribution turns one user's reconstructed offer instances and
// purchases into the user feature row: the windowed/non-windowed spend
// split, per-type spend, window-covered time, and engagement ratios.
package attribution

import (
	"fmt"
	"math"

	"promo-attribution-api/internal/intervals"
	"promo-attribution-api/internal/models"
)

// Conservation tolerances for the windowed + non-windowed = total spend
// invariant, matching the precision of the summed amounts.
const (
	absTolerance = 1e-3
	relTolerance = 1e-5
)

// IntegrityError reports a violated invariant while attributing a user's
// spend. It indicates a logic or data bug, not a recoverable condition.
type IntegrityError struct {
	UserID string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("attribution integrity violation for user %s: %s", e.UserID, e.Reason)
}

// Attribute computes the feature row for one user. cohortMaxTime is the
// largest event time observed anywhere in the cohort's transcript.
//
// The spend split is computed against the merged union of all windows, so a
// purchase inside two overlapping windows is counted once. The per-type
// spend columns sum each instance's own window amount instead, where double
// counting is the intended semantics.
func Attribute(userID string, transactions []models.Transaction, instances []models.OfferInstance, cohortMaxTime int) (models.UserFeatures, error) {
	row := models.UserFeatures{
		UserID:            userID,
		NumOffersReceived: len(instances),
	}

	for _, txn := range transactions {
		row.SpentTotal += txn.Amount
	}

	windows := instanceWindows(instances, "")
	set := intervals.NewSet(windows)

	// Unviewed-only users have no windows at all; every purchase is
	// outside. The degenerate merged set covers t=0, so it must not be
	// consulted here.
	if len(windows) == 0 {
		row.SpentNoWindow = row.SpentTotal
	} else {
		for _, txn := range transactions {
			if set.Contains(txn.Time) {
				row.SpentInWindow += txn.Amount
			} else {
				row.SpentNoWindow += txn.Amount
			}
		}
	}

	if !closeEnough(row.SpentInWindow+row.SpentNoWindow, row.SpentTotal) {
		return models.UserFeatures{}, &IntegrityError{
			UserID: userID,
			Reason: fmt.Sprintf("windowed %.4f + non-windowed %.4f != total %.4f",
				row.SpentInWindow, row.SpentNoWindow, row.SpentTotal),
		}
	}

	for _, inst := range instances {
		switch inst.Type {
		case models.OfferTypeBogo:
			row.SpentInBogo += inst.WindowAmount
		case models.OfferTypeDiscount:
			row.SpentInDiscount += inst.WindowAmount
		case models.OfferTypeInformational:
			row.SpentInInformational += inst.WindowAmount
		}
	}

	// The +1 on every covered-time column guards downstream rate
	// computations against division by zero, consistent with the window
	// length guard applied during reconstruction.
	covered := set.Covered()
	row.TimeInWindow = covered + 1
	row.TimeNoWindow = cohortMaxTime - covered + 1
	row.TimeInBogo = typeCovered(instances, models.OfferTypeBogo) + 1
	row.TimeInDiscount = typeCovered(instances, models.OfferTypeDiscount) + 1
	row.TimeInInformational = typeCovered(instances, models.OfferTypeInformational) + 1

	if len(instances) > 0 {
		viewed, completed, both := 0, 0, 0
		for _, inst := range instances {
			if inst.Viewed {
				viewed++
			}
			if inst.Completed {
				completed++
			}
			if inst.Viewed && inst.Completed {
				both++
			}
		}
		total := float64(len(instances))
		row.ViewRatio = float64(viewed) / total
		row.CompletionRatio = float64(completed) / total
		row.ViewAndCompleteRatio = float64(both) / total
	}

	return row, nil
}

// instanceWindows collects the [view, view+length] window of every viewed
// instance, optionally restricted to one offer type. Unviewed instances
// have no window and are dropped.
func instanceWindows(instances []models.OfferInstance, filter models.OfferType) []intervals.Interval {
	var windows []intervals.Interval
	for _, inst := range instances {
		if !inst.Viewed {
			continue
		}
		if filter != "" && inst.Type != filter {
			continue
		}
		windows = append(windows, intervals.Interval{
			Start: inst.ViewTime,
			End:   inst.ViewTime + inst.WindowLength,
		})
	}
	return windows
}

// typeCovered returns the merged window coverage of one offer type.
func typeCovered(instances []models.OfferInstance, t models.OfferType) int {
	return intervals.Covered(intervals.Merge(instanceWindows(instances, t)))
}

// closeEnough mirrors an np.isclose-style comparison: absolute tolerance
// for small values, relative tolerance for large ones.
func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= absTolerance+relTolerance*math.Abs(b)
}
