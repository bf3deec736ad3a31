package temple

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the temples table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS temples (
    id                       TEXT PRIMARY KEY,
    name                     TEXT NOT NULL,
    location                 TEXT NOT NULL DEFAULT '',
    state                    TEXT NOT NULL DEFAULT '',
    district                 TEXT,
    latitude                 DOUBLE PRECISION,
    longitude                DOUBLE PRECISION,
    timing                   TEXT,
    history                  TEXT,
    significance             TEXT,
    deity                    TEXT,
    architecture_style       TEXT,
    built_year               INTEGER,
    image_url                TEXT,
    chanting_audio_url       TEXT,
    accessibility_features   TEXT[],
    nearby_medical           TEXT,
    entry_fee                NUMERIC,
    dress_code               TEXT,
    special_rituals          TEXT[],
    festivals                TEXT[],
    contact_number           TEXT,
    website                  TEXT,
    rating                   NUMERIC,
    reviews_count            INTEGER,
    is_wheelchair_accessible BOOLEAN,
    parking_available        BOOLEAN,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_temples_name ON temples(name);
CREATE INDEX IF NOT EXISTS idx_temples_state ON temples(state);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// selectColumns maps nullable columns to zero values so that rows scan
// straight into a [Temple].
const selectColumns = `
	id, name, location, state, COALESCE(district, ''),
	COALESCE(latitude, 0), COALESCE(longitude, 0),
	COALESCE(timing, ''), COALESCE(history, ''), COALESCE(significance, ''),
	COALESCE(deity, ''), COALESCE(architecture_style, ''), COALESCE(built_year, 0),
	COALESCE(image_url, ''), COALESCE(chanting_audio_url, ''),
	COALESCE(accessibility_features, '{}'), COALESCE(nearby_medical, ''),
	COALESCE(entry_fee, 0)::float8, COALESCE(dress_code, ''),
	COALESCE(special_rituals, '{}'), COALESCE(festivals, '{}'),
	COALESCE(contact_number, ''), COALESCE(website, ''),
	COALESCE(rating, 0)::float8, COALESCE(reviews_count, 0),
	COALESCE(is_wheelchair_accessible, false), COALESCE(parking_available, false),
	created_at, updated_at`

// PostgresStore is a [Directory] backed by the temples table.
type PostgresStore struct {
	db      DB
	matcher *Matcher
}

var _ Directory = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over db. The caller is
// responsible for calling [PostgresStore.Migrate] if the table may not exist.
func NewPostgresStore(db DB, opts ...MatcherOption) *PostgresStore {
	return &PostgresStore{db: db, matcher: NewMatcher(opts...)}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("temple: migrate: %w", err)
	}
	return nil
}

func scanTemple(row pgx.Row, t *Temple) error {
	return row.Scan(
		&t.ID, &t.Name, &t.Location, &t.State, &t.District,
		&t.Latitude, &t.Longitude,
		&t.Timing, &t.History, &t.Significance,
		&t.Deity, &t.ArchitectureStyle, &t.BuiltYear,
		&t.ImageURL, &t.ChantingAudioURL,
		&t.AccessibilityFeatures, &t.NearbyMedical,
		&t.EntryFee, &t.DressCode,
		&t.SpecialRituals, &t.Festivals,
		&t.ContactNumber, &t.Website,
		&t.Rating, &t.ReviewsCount,
		&t.IsWheelchairAccessible, &t.ParkingAvailable,
		&t.CreatedAt, &t.UpdatedAt,
	)
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]Temple, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("temple: %s: %w", op, err)
	}
	defer rows.Close()

	var out []Temple
	for rows.Next() {
		var t Temple
		if err := scanTemple(rows, &t); err != nil {
			return nil, fmt.Errorf("temple: %s scan: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("temple: %s: %w", op, err)
	}
	return out, nil
}

// List implements [Directory].
func (s *PostgresStore) List(ctx context.Context) ([]Temple, error) {
	return s.query(ctx, "list", `SELECT `+selectColumns+` FROM temples ORDER BY name, id`)
}

// ListByState implements [Directory].
func (s *PostgresStore) ListByState(ctx context.Context, state string) ([]Temple, error) {
	return s.query(ctx, "list by state",
		`SELECT `+selectColumns+` FROM temples WHERE lower(state) = lower($1) ORDER BY name, id`, state)
}

// Get implements [Directory].
func (s *PostgresStore) Get(ctx context.Context, id string) (Temple, error) {
	var t Temple
	err := scanTemple(s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM temples WHERE id = $1`, id), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Temple{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return Temple{}, fmt.Errorf("temple: get %q: %w", id, err)
	}
	return t, nil
}

// States implements [Directory].
func (s *PostgresStore) States(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT state FROM temples WHERE state <> '' ORDER BY state`)
	if err != nil {
		return nil, fmt.Errorf("temple: states: %w", err)
	}
	defer rows.Close()

	var states []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("temple: states scan: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("temple: states: %w", err)
	}
	return states, nil
}

// Search implements [Directory]. The directory is small enough to rank in
// process, which keeps fuzzy matching identical across backends.
func (s *PostgresStore) Search(ctx context.Context, q string, limit int) ([]Result, error) {
	ts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.matcher.Rank(ts, q, limit), nil
}

// Upsert creates or replaces temples, e.g. to import a YAML seed.
func (s *PostgresStore) Upsert(ctx context.Context, temples ...Temple) error {
	const query = `
		INSERT INTO temples (
			id, name, location, state, district, latitude, longitude,
			timing, history, significance, deity, architecture_style, built_year,
			image_url, chanting_audio_url, accessibility_features, nearby_medical,
			entry_fee, dress_code, special_rituals, festivals, contact_number,
			website, rating, reviews_count, is_wheelchair_accessible, parking_available
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,
			$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			state = EXCLUDED.state,
			district = EXCLUDED.district,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timing = EXCLUDED.timing,
			history = EXCLUDED.history,
			significance = EXCLUDED.significance,
			deity = EXCLUDED.deity,
			architecture_style = EXCLUDED.architecture_style,
			built_year = EXCLUDED.built_year,
			image_url = EXCLUDED.image_url,
			chanting_audio_url = EXCLUDED.chanting_audio_url,
			accessibility_features = EXCLUDED.accessibility_features,
			nearby_medical = EXCLUDED.nearby_medical,
			entry_fee = EXCLUDED.entry_fee,
			dress_code = EXCLUDED.dress_code,
			special_rituals = EXCLUDED.special_rituals,
			festivals = EXCLUDED.festivals,
			contact_number = EXCLUDED.contact_number,
			website = EXCLUDED.website,
			rating = EXCLUDED.rating,
			reviews_count = EXCLUDED.reviews_count,
			is_wheelchair_accessible = EXCLUDED.is_wheelchair_accessible,
			parking_available = EXCLUDED.parking_available,
			updated_at = now()`

	for _, t := range temples {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("temple: upsert: id and name are required (id %q)", t.ID)
		}
		_, err := s.db.Exec(ctx, query,
			t.ID, t.Name, t.Location, t.State, t.District, t.Latitude, t.Longitude,
			t.Timing, t.History, t.Significance, t.Deity, t.ArchitectureStyle, t.BuiltYear,
			t.ImageURL, nullable(t.ChantingAudioURL), emptySlice(t.AccessibilityFeatures), t.NearbyMedical,
			t.EntryFee, t.DressCode, emptySlice(t.SpecialRituals), emptySlice(t.Festivals), nullable(t.ContactNumber),
			nullable(t.Website), t.Rating, t.ReviewsCount, t.IsWheelchairAccessible, t.ParkingAvailable,
		)
		if err != nil {
			return fmt.Errorf("temple: upsert %q: %w", t.ID, err)
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
