package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sortableTimeLayout keeps all nine fractional digits so stored values order lexically
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TimeToString converts a time.Time to a fixed-width UTC string for database storage
func TimeToString(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

// StringToTime parses a stored time string back to time.Time
func StringToTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Open opens (and creates if needed) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// merge runs are written by at most a handful of concurrent requests
	database.SetMaxOpenConns(1)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return database, nil
}

// NewInMemoryDB creates a new in-memory SQLite database for testing
func NewInMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}

	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
