// Package reconstruct rebuilds offer lifecycles for a single user from the
// raw event log: it pairs every "offer received" event with its matching
// view and completion events and computes the exposure window each viewed
// offer induces.
package reconstruct

import (
	"fmt"
	"sort"

	"promo-attribution-api/internal/models"
)

// Catalog is an offer lookup keyed by offer ID.
type Catalog map[string]models.OfferDefinition

// NewCatalog builds a Catalog from portfolio rows. A duplicate ID is a data
// error.
func NewCatalog(portfolio []models.OfferDefinition) (Catalog, error) {
	catalog := make(Catalog, len(portfolio))
	for _, def := range portfolio {
		if _, exists := catalog[def.ID]; exists {
			return nil, fmt.Errorf("duplicate offer %q in catalog", def.ID)
		}
		catalog[def.ID] = def
	}
	return catalog, nil
}

// timedRef is an offer event reduced to what matching needs.
type timedRef struct {
	time    int
	offerID string
}

// Reconstruct builds one OfferInstance per "offer received" event in the
// user's transcript, in receipt order. Matching scans are first-match-wins
// over time-sorted events: completion is matched first, then a view, and a
// view after the completion time does not count as engagement.
//
// An offer ID referenced by any offer event but absent from the catalog is a
// data error.
func Reconstruct(userID string, events []models.Event, catalog Catalog) ([]models.OfferInstance, error) {
	received := collectRefs(events, models.EventOfferReceived)
	views := collectRefs(events, models.EventOfferViewed)
	completions := collectRefs(events, models.EventOfferCompleted)
	transactions := collectTransactions(events)

	for _, refs := range [][]timedRef{received, views, completions} {
		for _, ref := range refs {
			if _, ok := catalog[ref.offerID]; !ok {
				return nil, fmt.Errorf("user %s references offer %q not present in catalog", userID, ref.offerID)
			}
		}
	}

	instances := make([]models.OfferInstance, 0, len(received))
	for _, rcv := range received {
		def := catalog[rcv.offerID]

		inst := models.OfferInstance{
			OfferID:    def.ID,
			UserID:     userID,
			Type:       def.Type,
			Difficulty: def.Difficulty,
			Reward:     def.Reward,
			StartTime:  rcv.time,
			Duration:   def.DurationHours(),
		}
		inst.EndTime = inst.StartTime + inst.Duration

		matchCompletion(&inst, completions)
		matchView(&inst, views)
		computeWindow(&inst, transactions)

		instances = append(instances, inst)
	}

	return instances, nil
}

// matchCompletion takes the first completion of the same offer that falls
// inside [StartTime, EndTime]. Evaluated before view matching, since a later
// view is judged against the completion time.
func matchCompletion(inst *models.OfferInstance, completions []timedRef) {
	for _, c := range completions {
		if c.offerID == inst.OfferID && c.time >= inst.StartTime && c.time <= inst.EndTime {
			inst.Completed = true
			inst.CompletionTime = c.time
			return
		}
	}
}

// matchView takes the first view of the same offer inside
// [StartTime, EndTime]. The scan is over time-ascending events, so once a
// view timestamped after the completion is reached no earlier valid view can
// remain and the scan stops: viewing an offer after completing it is not
// engagement.
func matchView(inst *models.OfferInstance, views []timedRef) {
	for _, v := range views {
		if inst.Completed && v.time > inst.CompletionTime {
			return
		}
		if v.offerID == inst.OfferID && v.time >= inst.StartTime && v.time <= inst.EndTime {
			inst.Viewed = true
			inst.ViewTime = v.time
			return
		}
	}
}

// computeWindow fills WindowLength and WindowAmount for a viewed instance.
// The window runs from the view until completion or expiry; the +1 keeps a
// same-hour view-and-complete from producing a zero-length window, which
// downstream rate computations divide by.
func computeWindow(inst *models.OfferInstance, transactions []models.Transaction) {
	if !inst.Viewed {
		return
	}

	if inst.Completed {
		inst.WindowLength = inst.CompletionTime - inst.ViewTime + 1
	} else {
		inst.WindowLength = inst.EndTime - inst.ViewTime + 1
	}

	windowEnd := inst.ViewTime + inst.WindowLength
	for _, txn := range transactions {
		if txn.Time >= inst.ViewTime && txn.Time <= windowEnd {
			inst.WindowAmount += txn.Amount
		}
	}
}

// collectRefs extracts the offer events of one kind, sorted ascending by
// time. The sort is what makes the first-match and stop-after-completion
// scans correct; incidental transcript order is never relied on.
func collectRefs(events []models.Event, kind models.EventKind) []timedRef {
	var refs []timedRef
	for _, ev := range events {
		if ev.Kind == kind {
			refs = append(refs, timedRef{time: ev.Time, offerID: ev.OfferID})
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].time < refs[j].time
	})
	return refs
}

// collectTransactions extracts the user's purchases, sorted ascending by
// time.
func collectTransactions(events []models.Event) []models.Transaction {
	var txns []models.Transaction
	for _, ev := range events {
		if ev.Kind == models.EventTransaction {
			txns = append(txns, models.Transaction{Time: ev.Time, Amount: ev.Amount})
		}
	}
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Time < txns[j].Time
	})
	return txns
}
