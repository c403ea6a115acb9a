package validation

import (
	"fmt"
	"strings"
	"unicode"

	"promo-attribution-api/internal/models"
)

var knownChannels = map[string]bool{
	"web":    true,
	"email":  true,
	"mobile": true,
	"social": true,
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func ValidateOfferDefinition(def models.OfferDefinition) error {
	if SanitizeString(def.ID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	if !models.KnownOfferType(def.Type) {
		return &ValidationError{
			Field:   "offer_type",
			Message: fmt.Sprintf("unknown offer type %q", def.Type),
		}
	}

	if def.Difficulty < 0 {
		return &ValidationError{Field: "difficulty", Message: "must be non-negative"}
	}

	if def.Reward < 0 {
		return &ValidationError{Field: "reward", Message: "must be non-negative"}
	}

	if def.DurationDays <= 0 {
		return &ValidationError{Field: "duration", Message: "must be positive"}
	}

	seen := make(map[string]bool)
	for i, channel := range def.Channels {
		channel = SanitizeString(channel)
		if !knownChannels[channel] {
			return &ValidationError{
				Field:   fmt.Sprintf("channels[%d]", i),
				Message: fmt.Sprintf("unknown channel %q", channel),
			}
		}
		if seen[channel] {
			return &ValidationError{
				Field:   "channels",
				Message: fmt.Sprintf("duplicate channel: %s", channel),
			}
		}
		seen[channel] = true
	}

	return nil
}

func ValidateProfile(profile models.Profile) error {
	if SanitizeString(profile.ID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	if profile.Age < 0 {
		return &ValidationError{Field: "age", Message: "must be non-negative"}
	}

	if profile.Income < 0 {
		return &ValidationError{Field: "income", Message: "must be non-negative"}
	}

	return nil
}

func ValidateEvent(ev models.Event) error {
	if SanitizeString(ev.UserID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	if !models.KnownEventKind(ev.Kind) {
		return &ValidationError{
			Field:   "event",
			Message: fmt.Sprintf("unknown event kind %q", ev.Kind),
		}
	}

	if ev.Time < 0 {
		return &ValidationError{Field: "time", Message: "must be non-negative"}
	}

	switch ev.Kind {
	case models.EventTransaction:
		if ev.Amount <= 0 {
			return &ValidationError{Field: "amount", Message: "must be positive"}
		}
		if ev.OfferID != "" {
			return &ValidationError{Field: "offer_id", Message: "must be empty for transactions"}
		}
	default:
		if SanitizeString(ev.OfferID) == "" {
			return &ValidationError{Field: "offer_id", Message: "is required for offer events"}
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
