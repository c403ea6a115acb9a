// Package ingest is the canonical cleaning and loading collaborator: it
// reads the portfolio, profile and transcript tables from CSV, validates
// each row, and produces the cleaned in-memory schema the feature engine
// consumes. There is exactly one cleaning implementation; the engine never
// depends on how a file was cleaned, only on the schema it receives.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"promo-attribution-api/internal/models"
	"promo-attribution-api/internal/validation"
)

// ReadPortfolio reads the offer catalog from a CSV file with columns
// id, offer_type, difficulty, reward, duration, channels.
func ReadPortfolio(path string) ([]models.OfferDefinition, error) {
	var defs []models.OfferDefinition

	err := readCSV(path, func(line int, get func(string) string) error {
		difficulty, err := parseInt(get("difficulty"), "difficulty")
		if err != nil {
			return err
		}
		reward, err := parseInt(get("reward"), "reward")
		if err != nil {
			return err
		}
		duration, err := parseInt(get("duration"), "duration")
		if err != nil {
			return err
		}

		def := models.OfferDefinition{
			ID:           validation.SanitizeString(get("id")),
			Type:         models.OfferType(validation.SanitizeString(get("offer_type"))),
			Difficulty:   difficulty,
			Reward:       reward,
			DurationDays: duration,
			Channels:     parseChannels(get("channels")),
		}

		if err := validation.ValidateOfferDefinition(def); err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", path, err)
	}

	return defs, nil
}

// ReadProfiles reads the user profile table from a CSV file with columns
// id, gender, age, income, became_member_on (yyyymmdd).
func ReadProfiles(path string) ([]models.Profile, error) {
	var profiles []models.Profile

	err := readCSV(path, func(line int, get func(string) string) error {
		age, err := parseInt(get("age"), "age")
		if err != nil {
			return err
		}
		income, err := parseFloat(get("income"), "income")
		if err != nil {
			return err
		}

		profile := models.Profile{
			ID:     validation.SanitizeString(get("id")),
			Gender: validation.SanitizeString(get("gender")),
			Age:    age,
			Income: income,
		}

		if raw := validation.SanitizeString(get("became_member_on")); raw != "" {
			member, err := time.Parse("20060102", raw)
			if err != nil {
				return fmt.Errorf("invalid became_member_on %q: %w", raw, err)
			}
			profile.BecameMemberOn = member
		}

		if err := validation.ValidateProfile(profile); err != nil {
			return err
		}
		profiles = append(profiles, profile)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("profiles %s: %w", path, err)
	}

	return profiles, nil
}

// ReadTranscript reads the event log from a CSV file with columns
// id, event, time, offer_id, amount. offer_id is empty for transactions,
// amount is empty for offer events.
func ReadTranscript(path string) ([]models.Event, error) {
	var events []models.Event

	err := readCSV(path, func(line int, get func(string) string) error {
		hour, err := parseInt(get("time"), "time")
		if err != nil {
			return err
		}

		ev := models.Event{
			UserID:  validation.SanitizeString(get("id")),
			Kind:    models.EventKind(validation.SanitizeString(get("event"))),
			Time:    hour,
			OfferID: validation.SanitizeString(get("offer_id")),
		}

		if raw := strings.TrimSpace(get("amount")); raw != "" {
			amount, err := parseFloat(raw, "amount")
			if err != nil {
				return err
			}
			ev.Amount = amount
		}

		if err := validation.ValidateEvent(ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript %s: %w", path, err)
	}

	return events, nil
}

// readCSV walks a header-keyed CSV file, invoking fn once per data row with
// a column accessor. Any row error is returned with its line number.
func readCSV(path string, fn func(line int, get func(string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		get := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if err := fn(line, get); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// parseChannels accepts either a JSON array (the raw export format) or a
// comma-separated list.
func parseChannels(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}

	var channels []string
	if err := json.Unmarshal([]byte(raw), &channels); err == nil {
		return channels
	}

	// Fallback for comma-separated lists, including python-repr exports
	// like ['web', 'email'].
	raw = strings.Trim(raw, "[]")
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			channels = append(channels, part)
		}
	}
	return channels
}

func parseInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}

func parseFloat(raw, field string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}
