package validation

import (
	"testing"

	"promo-attribution-api/internal/models"
)

func validDefinition() models.OfferDefinition {
	return models.OfferDefinition{
		ID:           "A",
		Type:         models.OfferTypeBogo,
		Difficulty:   10,
		Reward:       5,
		DurationDays: 5,
		Channels:     []string{"web", "email"},
	}
}

func TestValidateOfferDefinition(t *testing.T) {
	if err := ValidateOfferDefinition(validDefinition()); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*models.OfferDefinition)
		field  string
	}{
		{"missing id", func(d *models.OfferDefinition) { d.ID = " " }, "id"},
		{"unknown type", func(d *models.OfferDefinition) { d.Type = "cashback" }, "offer_type"},
		{"negative difficulty", func(d *models.OfferDefinition) { d.Difficulty = -1 }, "difficulty"},
		{"negative reward", func(d *models.OfferDefinition) { d.Reward = -1 }, "reward"},
		{"zero duration", func(d *models.OfferDefinition) { d.DurationDays = 0 }, "duration"},
		{"unknown channel", func(d *models.OfferDefinition) { d.Channels = []string{"fax"} }, "channels[0]"},
		{"duplicate channel", func(d *models.OfferDefinition) { d.Channels = []string{"web", "web"} }, "channels"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDefinition()
			tc.mutate(&def)
			err := ValidateOfferDefinition(def)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected error on field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestValidateEvent(t *testing.T) {
	cases := []struct {
		name  string
		event models.Event
		field string
	}{
		{
			name:  "valid transaction",
			event: models.Event{UserID: "u", Kind: models.EventTransaction, Time: 10, Amount: 3.5},
		},
		{
			name:  "valid offer event",
			event: models.Event{UserID: "u", Kind: models.EventOfferViewed, Time: 0, OfferID: "A"},
		},
		{
			name:  "missing user",
			event: models.Event{Kind: models.EventTransaction, Amount: 1},
			field: "id",
		},
		{
			name:  "unknown kind",
			event: models.Event{UserID: "u", Kind: "offer exploded"},
			field: "event",
		},
		{
			name:  "negative time",
			event: models.Event{UserID: "u", Kind: models.EventOfferReceived, Time: -1, OfferID: "A"},
			field: "time",
		},
		{
			name:  "transaction without amount",
			event: models.Event{UserID: "u", Kind: models.EventTransaction},
			field: "amount",
		},
		{
			name:  "transaction with offer id",
			event: models.Event{UserID: "u", Kind: models.EventTransaction, Amount: 1, OfferID: "A"},
			field: "offer_id",
		},
		{
			name:  "offer event without offer id",
			event: models.Event{UserID: "u", Kind: models.EventOfferCompleted, Time: 5},
			field: "offer_id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEvent(tc.event)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("valid event rejected: %v", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected error on field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestValidateProfile(t *testing.T) {
	if err := ValidateProfile(models.Profile{ID: "u", Age: 30, Income: 50000}); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}
	if err := ValidateProfile(models.Profile{Age: 30}); err == nil {
		t.Error("expected error for a profile without an id")
	}
	if err := ValidateProfile(models.Profile{ID: "u", Age: -1}); err == nil {
		t.Error("expected error for a negative age")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  user-1\x00\x07  "); got != "user-1" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("line1\nline2"); got != "line1\nline2" {
		t.Errorf("SanitizeString stripped an allowed newline: %q", got)
	}
}
