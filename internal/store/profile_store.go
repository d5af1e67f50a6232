// Package store persists the athlete profile and the preferred heart rate
// strap in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const deviceKindHeartRateStrap = "heart_rate_strap"

var ErrProfileNotFound = errors.New("athlete profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS athlete_profile (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	resting_vo2 REAL NOT NULL,
	body_mass_kg REAL NOT NULL,
	gel_calorie_threshold_kcal INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS preferred_device (
	kind TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
`

// PreferredDevice is the strap to reconnect to on the next run.
type PreferredDevice struct {
	Address   string
	Name      string
	UpdatedAt time.Time
}

type ProfileStore struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *log.Logger) (*ProfileStore, error) {
	if logger == nil {
		panic("ProfileStore: logger cannot be nil")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: SQLite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Printf("ProfileStore: Opened %s", path)
	return &ProfileStore{db: db, logger: logger, now: time.Now}, nil
}

func (s *ProfileStore) Close() error {
	return s.db.Close()
}

func (s *ProfileStore) LoadProfile() (tracker.AthleteProfile, error) {
	row := s.db.QueryRow(`
		SELECT resting_vo2, body_mass_kg, gel_calorie_threshold_kcal
		FROM athlete_profile
		WHERE id = 1
	`)

	var p tracker.AthleteProfile
	if err := row.Scan(&p.RestingVO2MlPerKgPerMin, &p.BodyMassKg, &p.GelCalorieThresholdKcal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tracker.AthleteProfile{}, ErrProfileNotFound
		}
		return tracker.AthleteProfile{}, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) SaveProfile(p tracker.AthleteProfile) error {
	_, err := s.db.Exec(`
		INSERT INTO athlete_profile (id, resting_vo2, body_mass_kg, gel_calorie_threshold_kcal, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resting_vo2 = excluded.resting_vo2,
			body_mass_kg = excluded.body_mass_kg,
			gel_calorie_threshold_kcal = excluded.gel_calorie_threshold_kcal,
			updated_at = excluded.updated_at
	`, p.RestingVO2MlPerKgPerMin, p.BodyMassKg, p.GelCalorieThresholdKcal, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.logger.Printf("ProfileStore: Saved profile (mass %.1f kg, gel serving %d kcal)", p.BodyMassKg, p.GelCalorieThresholdKcal)
	return nil
}

// LoadOrOnboard returns the stored profile. On first launch the onboarding
// profile is stored and returned instead; onboarded reports that case.
func (s *ProfileStore) LoadOrOnboard(onboarding tracker.AthleteProfile) (profile tracker.AthleteProfile, onboarded bool, err error) {
	profile, err = s.LoadProfile()
	if err == nil {
		return profile.WithFallbacks(), false, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return tracker.AthleteProfile{}, false, err
	}

	profile = onboarding.WithFallbacks()
	profile.BodyMassKg = tracker.ClampBodyMass(profile.BodyMassKg)
	if err := s.SaveProfile(profile); err != nil {
		return tracker.AthleteProfile{}, false, err
	}
	s.logger.Printf("ProfileStore: First launch, stored onboarding profile")
	return profile, true, nil
}

// ApplyUpdate merges a companion update into the stored profile.
func (s *ProfileStore) ApplyUpdate(u tracker.ProfileUpdate) (tracker.AthleteProfile, error) {
	current, err := s.LoadProfile()
	if errors.Is(err, ErrProfileNotFound) {
		current = tracker.DefaultProfile()
	} else if err != nil {
		return tracker.AthleteProfile{}, err
	}

	updated, changed := current.Apply(u)
	if !changed {
		return updated, nil
	}
	if err := s.SaveProfile(updated); err != nil {
		return tracker.AthleteProfile{}, err
	}
	return updated, nil
}

// PreferredStrap reports false when no strap has been remembered.
func (s *ProfileStore) PreferredStrap() (PreferredDevice, bool, error) {
	row := s.db.QueryRow(`
		SELECT address, name, updated_at
		FROM preferred_device
		WHERE kind = ?
	`, deviceKindHeartRateStrap)

	var d PreferredDevice
	var updatedAt int64
	if err := row.Scan(&d.Address, &d.Name, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PreferredDevice{}, false, nil
		}
		return PreferredDevice{}, false, fmt.Errorf("scan preferred strap: %w", err)
	}
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return d, true, nil
}

func (s *ProfileStore) SetPreferredStrap(address, name string) error {
	if address == "" {
		return errors.New("preferred strap address cannot be empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO preferred_device (kind, address, name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			address = excluded.address,
			name = excluded.name,
			updated_at = excluded.updated_at
	`, deviceKindHeartRateStrap, address, name, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save preferred strap: %w", err)
	}
	s.logger.Printf("ProfileStore: Preferred strap -> %s (%s)", name, address)
	return nil
}
