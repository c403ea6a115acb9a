package models

import "time"

// OfferType is the category of a promotional offer.
type OfferType string

const (
	OfferTypeBogo          OfferType = "bogo"
	OfferTypeDiscount      OfferType = "discount"
	OfferTypeInformational OfferType = "informational"
)

// KnownOfferType reports whether t is one of the catalog offer types.
func KnownOfferType(t OfferType) bool {
	switch t {
	case OfferTypeBogo, OfferTypeDiscount, OfferTypeInformational:
		return true
	}
	return false
}

// EventKind is the kind of a transcript row.
type EventKind string

const (
	EventOfferReceived  EventKind = "offer received"
	EventOfferViewed    EventKind = "offer viewed"
	EventOfferCompleted EventKind = "offer completed"
	EventTransaction    EventKind = "transaction"
)

// KnownEventKind reports whether k is a recognized transcript event kind.
func KnownEventKind(k EventKind) bool {
	switch k {
	case EventOfferReceived, EventOfferViewed, EventOfferCompleted, EventTransaction:
		return true
	}
	return false
}

// OfferDefinition is one row of the offer catalog (portfolio).
type OfferDefinition struct {
	ID           string    `json:"id"`
	Type         OfferType `json:"offer_type"`
	Difficulty   int       `json:"difficulty"` // minimum spend required to complete
	Reward       int       `json:"reward"`
	DurationDays int       `json:"duration"` // catalog stores days; the engine works in hours
	Channels     []string  `json:"channels"` // e.g. ["web", "email", "mobile"]
}

// DurationHours returns the offer duration converted to hours.
func (d OfferDefinition) DurationHours() int {
	return d.DurationDays * 24
}

// Profile is one row of the user profile table. The demographic columns are
// carried through untouched; the feature engine only uses ID as a join key.
type Profile struct {
	ID             string    `json:"id"`
	Gender         string    `json:"gender"`
	Age            int       `json:"age"`
	Income         float64   `json:"income"`
	BecameMemberOn time.Time `json:"became_member_on"`
}

// Event is one row of the cleaned event log. Time is measured in whole hours
// since the start of the cohort. OfferID is set for offer events, Amount for
// transactions.
type Event struct {
	UserID  string    `json:"id"`
	Kind    EventKind `json:"event"`
	Time    int       `json:"time"`
	OfferID string    `json:"offer_id,omitempty"`
	Amount  float64   `json:"amount,omitempty"`
}

// Transaction is a purchase extracted from the event log for one user.
type Transaction struct {
	Time   int     `json:"time"`
	Amount float64 `json:"amount"`
}

// OfferInstance is the reconstructed life of one "offer received" event.
// Instances are keyed by (user, receipt index), never by OfferID alone: a
// user may receive the same offer twice. ViewTime, CompletionTime,
// WindowLength and WindowAmount are only meaningful when the corresponding
// Viewed/Completed flag is set.
type OfferInstance struct {
	OfferID        string    `json:"offer_id"`
	UserID         string    `json:"user_id"`
	Type           OfferType `json:"offer_type"`
	Difficulty     int       `json:"difficulty"`
	Reward         int       `json:"reward"`
	StartTime      int       `json:"start_time"`
	Duration       int       `json:"duration"` // hours
	EndTime        int       `json:"end_time"`
	Viewed         bool      `json:"viewed"`
	ViewTime       int       `json:"view_time"`
	Completed      bool      `json:"completed"`
	CompletionTime int       `json:"completion_time"`
	WindowLength   int       `json:"time_in_window"`
	WindowAmount   float64   `json:"amount_in_window"`
}

// UserFeatures is one row of the user feature table.
type UserFeatures struct {
	UserID               string  `json:"user_id"`
	SpentTotal           float64 `json:"spent_total"`
	SpentInWindow        float64 `json:"spent_in_window"`
	SpentNoWindow        float64 `json:"spent_no_window"`
	SpentInBogo          float64 `json:"spent_in_bogo"`
	SpentInDiscount      float64 `json:"spent_in_discount"`
	SpentInInformational float64 `json:"spent_in_informational"`
	TimeInWindow         int     `json:"time_in_window"`
	TimeNoWindow         int     `json:"time_no_window"`
	TimeInBogo           int     `json:"time_in_bogo"`
	TimeInDiscount       int     `json:"time_in_discount"`
	TimeInInformational  int     `json:"time_in_informational"`
	ViewRatio            float64 `json:"view_ratio"`
	CompletionRatio      float64 `json:"completion_ratio"`
	ViewAndCompleteRatio float64 `json:"view_and_complete_ratio"`
	NumOffersReceived    int     `json:"num_offers_received"`
}

/// OfferFeatureRow is one row of the offer feature table: the instance
// attributes plus one-hot columns for its type.
type OfferFeatureRow struct {
	OfferInstance
	TypeBogo          int `json:"type_bogo"`
	TypeDiscount      int `json:"type_discount"`
	TypeInformational int `json:"type_informational"`
}

// NewOfferFeatureRow builds a feature row from an instance, filling the
// one-hot type columns.
func NewOfferFeatureRow(inst OfferInstance) OfferFeatureRow {
	row := OfferFeatureRow{OfferInstance: inst}
	switch inst.Type {
	case OfferTypeBogo:
		row.TypeBogo = 1
	case OfferTypeDiscount:
		row.TypeDiscount = 1
	case OfferTypeInformational:
		row.TypeInformational = 1
	}
	return row
}

// BuildSummary describes one completed feature build.
type BuildSummary struct {
	BuildID        string    `json:"build_id"`
	Users          int       `json:"users"`
	UsersNoOffers  int       `json:"users_no_offers"`
	OfferInstances int       `json:"offer_instances"`
	CohortMaxTime  int       `json:"cohort_max_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// IngestSummary reports how many rows of each input table were loaded.
type IngestSummary struct {
	PortfolioRows  int `json:"portfolio_rows"`
	ProfileRows    int `json:"profile_rows"`
	TranscriptRows int `json:"transcript_rows"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
