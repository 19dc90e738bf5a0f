package store

import (
	"database/sql"
	"errors"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned when a strategy, profile or session does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under
	// concurrent sessions.
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT,
			industry TEXT,
			business_goals TEXT,
			target_audience TEXT,
			content_pillars TEXT,
			preferred_channels TEXT,
			competitors TEXT,
			kpis TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS onboarding (
			user_id INTEGER PRIMARY KEY,
			company_name TEXT,
			website_url TEXT,
			website_summary TEXT,
			brand_voice TEXT,
			keywords TEXT,
			posting_cadence TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS generation_sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			strategy_id INTEGER,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			calendar TEXT,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON generation_sessions (user_id, created_at);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	return s.DB.Ping()
}
