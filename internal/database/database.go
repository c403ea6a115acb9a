package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"promo-attribution-api/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("database: not found")

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS portfolio (
			id TEXT PRIMARY KEY,
			offer_type TEXT NOT NULL,
			difficulty INTEGER NOT NULL,
			reward INTEGER NOT NULL,
			duration_days INTEGER NOT NULL,
			channels TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			gender TEXT NOT NULL,
			age INTEGER NOT NULL,
			income REAL NOT NULL,
			became_member_on TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			event TEXT NOT NULL,
			time INTEGER NOT NULL,
			offer_id TEXT,
			amount REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_user ON transcript(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_event ON transcript(event)`,
		`CREATE TABLE IF NOT EXISTS user_features (
			user_id TEXT PRIMARY KEY,
			build_id TEXT NOT NULL,
			spent_total REAL NOT NULL,
			spent_in_window REAL NOT NULL,
			spent_no_window REAL NOT NULL,
			spent_in_bogo REAL NOT NULL,
			spent_in_discount REAL NOT NULL,
			spent_in_informational REAL NOT NULL,
			time_in_window INTEGER NOT NULL,
			time_no_window INTEGER NOT NULL,
			time_in_bogo INTEGER NOT NULL,
			time_in_discount INTEGER NOT NULL,
			time_in_informational INTEGER NOT NULL,
			view_ratio REAL NOT NULL,
			completion_ratio REAL NOT NULL,
			view_and_complete_ratio REAL NOT NULL,
			num_offers_received INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS offer_features (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			build_id TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			offer_type TEXT NOT NULL,
			difficulty INTEGER NOT NULL,
			reward INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			duration INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			viewed INTEGER NOT NULL,
			view_time INTEGER,
			completed INTEGER NOT NULL,
			completion_time INTEGER,
			time_in_window INTEGER NOT NULL,
			amount_in_window REAL NOT NULL,
			type_bogo INTEGER NOT NULL,
			type_discount INTEGER NOT NULL,
			type_informational INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offer_features_user ON offer_features(user_id)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			users INTEGER NOT NULL,
			users_no_offers INTEGER NOT NULL,
			offer_instances INTEGER NOT NULL,
			cohort_max_time INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// ReplacePortfolio replaces the offer catalog with the given rows.
func (db *DB) ReplacePortfolio(defs []models.OfferDefinition) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM portfolio`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`INSERT INTO portfolio (
			id, offer_type, difficulty, reward, duration_days, channels
		) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, def := range defs {
			_, err := stmt.Exec(def.ID, string(def.Type), def.Difficulty, def.Reward,
				def.DurationDays, serializeChannels(def.Channels))
			if err != nil {
				return fmt.Errorf("failed to insert offer %s: %w", def.ID, err)
			}
		}
		return nil
	})
}

// ReplaceProfiles replaces the profile table with the given rows.
func (db *DB) ReplaceProfiles(profiles []models.Profile) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM profiles`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`INSERT INTO profiles (
			id, gender, age, income, became_member_on
		) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range profiles {
			member := ""
			if !p.BecameMemberOn.IsZero() {
				member = p.BecameMemberOn.Format(time.RFC3339)
			}
			if _, err := stmt.Exec(p.ID, p.Gender, p.Age, p.Income, member); err != nil {
				return fmt.Errorf("failed to insert profile %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// ReplaceTranscript replaces the event log with the given rows.
func (db *DB) ReplaceTranscript(events []models.Event) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM transcript`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`INSERT INTO transcript (
			user_id, event, time, offer_id, amount
		) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			var offerID interface{}
			if ev.OfferID != "" {
				offerID = ev.OfferID
			}
			var amount interface{}
			if ev.Kind == models.EventTransaction {
				amount = ev.Amount
			}
			if _, err := stmt.Exec(ev.UserID, string(ev.Kind), ev.Time, offerID, amount); err != nil {
				return fmt.Errorf("failed to insert event for user %s: %w", ev.UserID, err)
			}
		}
		return nil
	})
}

// LoadPortfolio returns all offer catalog rows.
func (db *DB) LoadPortfolio() ([]models.OfferDefinition, error) {
	rows, err := db.conn.Query(`SELECT id, offer_type, difficulty, reward, duration_days, channels
		FROM portfolio ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	defer rows.Close()

	var defs []models.OfferDefinition
	for rows.Next() {
		var def models.OfferDefinition
		var offerType, channels string
		if err := rows.Scan(&def.ID, &offerType, &def.Difficulty, &def.Reward,
			&def.DurationDays, &channels); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		def.Type = models.OfferType(offerType)
		def.Channels = deserializeChannels(channels)
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// LoadProfiles returns all profile rows in insertion order.
func (db *DB) LoadProfiles() ([]models.Profile, error) {
	rows, err := db.conn.Query(`SELECT id, gender, age, income, became_member_on
		FROM profiles ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		var member string
		if err := rows.Scan(&p.ID, &p.Gender, &p.Age, &p.Income, &member); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		if member != "" {
			p.BecameMemberOn, err = time.Parse(time.RFC3339, member)
			if err != nil {
				return nil, fmt.Errorf("failed to parse became_member_on: %w", err)
			}
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// LoadTranscript returns all event log rows in insertion order.
func (db *DB) LoadTranscript() ([]models.Event, error) {
	rows, err := db.conn.Query(`SELECT user_id, event, time, offer_id, amount
		FROM transcript ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var kind string
		var offerID sql.NullString
		var amount sql.NullFloat64
		if err := rows.Scan(&ev.UserID, &kind, &ev.Time, &offerID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		ev.OfferID = offerID.String
		ev.Amount = amount.Float64
		events = append(events, ev)
	}

	return events, rows.Err()
}

// SaveBuild persists a completed build: both feature tables plus the
// summary, atomically replacing the previous build's output.
func (db *DB) SaveBuild(summary models.BuildSummary, users []models.UserFeatures, offers []models.OfferFeatureRow) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM user_features`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM offer_features`); err != nil {
			return err
		}

		userStmt, err := tx.Prepare(`INSERT INTO user_features (
			user_id, build_id, spent_total, spent_in_window, spent_no_window,
			spent_in_bogo, spent_in_discount, spent_in_informational,
			time_in_window, time_no_window, time_in_bogo, time_in_discount,
			time_in_informational, view_ratio, completion_ratio,
			view_and_complete_ratio, num_offers_received
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer userStmt.Close()

		for _, u := range users {
			_, err := userStmt.Exec(u.UserID, summary.BuildID, u.SpentTotal, u.SpentInWindow,
				u.SpentNoWindow, u.SpentInBogo, u.SpentInDiscount, u.SpentInInformational,
				u.TimeInWindow, u.TimeNoWindow, u.TimeInBogo, u.TimeInDiscount,
				u.TimeInInformational, u.ViewRatio, u.CompletionRatio,
				u.ViewAndCompleteRatio, u.NumOffersReceived)
			if err != nil {
				return fmt.Errorf("failed to insert user features for %s: %w", u.UserID, err)
			}
		}

		offerStmt, err := tx.Prepare(`INSERT INTO offer_features (
			build_id, offer_id, user_id, offer_type, difficulty, reward,
			start_time, duration, end_time, viewed, view_time, completed,
			completion_time, time_in_window, amount_in_window,
			type_bogo, type_discount, type_informational
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer offerStmt.Close()

		for _, o := range offers {
			var viewTime, completionTime interface{}
			if o.Viewed {
				viewTime = o.ViewTime
			}
			if o.Completed {
				completionTime = o.CompletionTime
			}
			_, err := offerStmt.Exec(summary.BuildID, o.OfferID, o.UserID, string(o.Type),
				o.Difficulty, o.Reward, o.StartTime, o.Duration, o.EndTime,
				boolToInt(o.Viewed), viewTime, boolToInt(o.Completed), completionTime,
				o.WindowLength, o.WindowAmount,
				o.TypeBogo, o.TypeDiscount, o.TypeInformational)
			if err != nil {
				return fmt.Errorf("failed to insert offer features for %s/%s: %w", o.UserID, o.OfferID, err)
			}
		}

		_, err = tx.Exec(`INSERT INTO builds (
			id, users, users_no_offers, offer_instances, cohort_max_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
			summary.BuildID, summary.Users, summary.UsersNoOffers,
			summary.OfferInstances, summary.CohortMaxTime,
			summary.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert build summary: %w", err)
		}

		return nil
	})
}

// GetUserFeatures returns the feature row for one user.
func (db *DB) GetUserFeatures(userID string) (models.UserFeatures, error) {
	var u models.UserFeatures
	var buildID string
	err := db.conn.QueryRow(`SELECT user_id, build_id, spent_total, spent_in_window,
		spent_no_window, spent_in_bogo, spent_in_discount, spent_in_informational,
		time_in_window, time_no_window, time_in_bogo, time_in_discount,
		time_in_informational, view_ratio, completion_ratio,
		view_and_complete_ratio, num_offers_received
		FROM user_features WHERE user_id = ?`, userID).Scan(
		&u.UserID, &buildID, &u.SpentTotal, &u.SpentInWindow, &u.SpentNoWindow,
		&u.SpentInBogo, &u.SpentInDiscount, &u.SpentInInformational,
		&u.TimeInWindow, &u.TimeNoWindow, &u.TimeInBogo, &u.TimeInDiscount,
		&u.TimeInInformational, &u.ViewRatio, &u.CompletionRatio,
		&u.ViewAndCompleteRatio, &u.NumOffersReceived)
	if err == sql.ErrNoRows {
		return models.UserFeatures{}, ErrNotFound
	}
	if err != nil {
		return models.UserFeatures{}, fmt.Errorf("failed to query user features: %w", err)
	}

	return u, nil
}

// GetUserOfferFeatures returns all offer feature rows for one user, in
// receipt order.
func (db *DB) GetUserOfferFeatures(userID string) ([]models.OfferFeatureRow, error) {
	rows, err := db.conn.Query(`SELECT offer_id, user_id, offer_type, difficulty,
		reward, start_time, duration, end_time, viewed, view_time, completed,
		completion_time, time_in_window, amount_in_window,
		type_bogo, type_discount, type_informational
		FROM offer_features WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query offer features: %w", err)
	}
	defer rows.Close()

	var out []models.OfferFeatureRow
	for rows.Next() {
		var o models.OfferFeatureRow
		var offerType string
		var viewed, completed int
		var viewTime, completionTime sql.NullInt64
		err := rows.Scan(&o.OfferID, &o.UserID, &offerType, &o.Difficulty,
			&o.Reward, &o.StartTime, &o.Duration, &o.EndTime, &viewed, &viewTime,
			&completed, &completionTime, &o.WindowLength, &o.WindowAmount,
			&o.TypeBogo, &o.TypeDiscount, &o.TypeInformational)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer features: %w", err)
		}
		o.Type = models.OfferType(offerType)
		o.Viewed = viewed == 1
		o.ViewTime = int(viewTime.Int64)
		o.Completed = completed == 1
		o.CompletionTime = int(completionTime.Int64)
		out = append(out, o)
	}

	return out, rows.Err()
}

// GetBuild returns one build summary by ID.
func (db *DB) GetBuild(buildID string) (models.BuildSummary, error) {
	return db.scanBuild(db.conn.QueryRow(`SELECT id, users, users_no_offers,
		offer_instances, cohort_max_time, created_at FROM builds WHERE id = ?`, buildID))
}

// GetLatestBuild returns the most recent build summary.
func (db *DB) GetLatestBuild() (models.BuildSummary, error) {
	return db.scanBuild(db.conn.QueryRow(`SELECT id, users, users_no_offers,
		offer_instances, cohort_max_time, created_at
		FROM builds ORDER BY created_at DESC, rowid DESC LIMIT 1`))
}

func (db *DB) scanBuild(row *sql.Row) (models.BuildSummary, error) {
	var s models.BuildSummary
	var created string
	err := row.Scan(&s.BuildID, &s.Users, &s.UsersNoOffers, &s.OfferInstances,
		&s.CohortMaxTime, &created)
	if err == sql.ErrNoRows {
		return models.BuildSummary{}, ErrNotFound
	}
	if err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to query build: %w", err)
	}

	s.CreatedAt, err = time.Parse(time.RFC3339, created)
	if err != nil {
		return models.BuildSummary{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return s, nil
}

// inTx runs fn inside a transaction, committing on success.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// serializeChannels converts a channel list to a JSON string.
func serializeChannels(channels []string) string {
	if len(channels) == 0 {
		return "[]"
	}
	data, err := json.Marshal(channels)
	if err != nil {
		// Fallback to comma-separated if JSON fails
		return strings.Join(channels, ",")
	}
	return string(data)
}

// deserializeChannels converts a serialized channel list back to a slice.
func deserializeChannels(serialized string) []string {
	if serialized == "" || serialized == "[]" {
		return nil
	}

	var result []string
	if err := json.Unmarshal([]byte(serialized), &result); err == nil {
		return result
	}

	return strings.Split(serialized, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
