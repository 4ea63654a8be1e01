// Package recorder implements the downstream hot-tier store for
// normalized activities: TTL-scoped activity rows keyed to stable entity
// identities resolved from volume-scoped file reference numbers.
package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"usnwatch/internal/collector"
	"usnwatch/internal/recorder/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRecorder implements the Recorder interface using SQLite.
type SQLiteRecorder struct {
	db    *sql.DB
	ttl   time.Duration
	clock collector.Clock
}

// NewSQLiteRecorder opens (or creates) a recorder database at path and
// migrates its schema. path can be ":memory:" for tests. ttl bounds how
// long recorded activities are retained.
func NewSQLiteRecorder(path string, ttl time.Duration, clock collector.Clock) (*SQLiteRecorder, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating recorder schema: %w", err)
	}

	return &SQLiteRecorder{db: db, ttl: ttl, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the recorder relies on. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening recorder database: %w", err)
	}

	// Every pooled connection to ":memory:" is its own database; pin the
	// pool to one connection so the schema and the data agree.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// SQLite leaves foreign keys OFF by default for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// RecordBatch stores a batch of activities in one transaction and returns
// one storage identifier per activity, in input order. Entities are
// resolved (or created) from (volume, file reference number); the same
// pair always resolves to the same entity UUID.
func (r *SQLiteRecorder) RecordBatch(activities []*collector.Activity) ([]string, error) {
	if len(activities) == 0 {
		return nil, nil
	}

	now := r.clock.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		entityID, err := resolveEntity(tx, a.Volume, a.FileRefNumber, now)
		if err != nil {
			return nil, err
		}

		flags, err := json.Marshal(a.Attributes["reason_flags"])
		if err != nil {
			return nil, fmt.Errorf("encoding reason flags: %w", err)
		}

		var renameType sql.NullString
		if rt := a.RenameType(); rt != "" {
			renameType = sql.NullString{String: rt, Valid: true}
		}

		id := uuid.New().String()
		_, err = tx.Exec(`
			INSERT INTO activities (id, entity_id, provider_id, activity_type, path, is_directory, usn, reason_flags, rename_type, occurred_at, recorded_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, entityID, a.ProviderID, string(a.Type), a.Path, a.IsDirectory,
			a.Usn, string(flags), renameType, a.Timestamp.UTC(), now, now.Add(r.ttl))
		if err != nil {
			return nil, fmt.Errorf("inserting activity: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	return ids, nil
}

// resolveEntity returns the stable entity UUID for (volume, frn),
// creating it on first sight. FRNs are stored as their signed 64-bit bit
// pattern; SQLite has no unsigned integer type.
func resolveEntity(tx *sql.Tx, volume string, frn uint64, now time.Time) (string, error) {
	var id string
	err := tx.QueryRow(
		"SELECT id FROM entities WHERE volume = ? AND file_ref_number = ?",
		volume, int64(frn)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("looking up entity: %w", err)
	}

	id = uuid.New().String()
	_, err = tx.Exec(
		"INSERT INTO entities (id, volume, file_ref_number, created_at) VALUES (?, ?, ?, ?)",
		id, volume, int64(frn), now)
	if err != nil {
		return "", fmt.Errorf("creating entity: %w", err)
	}
	return id, nil
}

// PurgeExpired deletes activities whose expires_at is at or before now.
func (r *SQLiteRecorder) PurgeExpired(now time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM activities WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging expired activities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged activities: %w", err)
	}
	return n, nil
}

// RecentActivity is one row from Recent, for CLI display.
type RecentActivity struct {
	ID           string
	ActivityType string
	Path         string
	IsDirectory  bool
	Usn          int64
	OccurredAt   time.Time
	RecordedAt   time.Time
}

// Recent returns the most recently recorded activities, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]*RecentActivity, error) {
	rows, err := r.db.Query(`
		SELECT id, activity_type, path, is_directory, usn, occurred_at, recorded_at
		FROM activities ORDER BY recorded_at DESC, usn DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activities: %w", err)
	}
	defer rows.Close()

	var out []*RecentActivity
	for rows.Next() {
		var a RecentActivity
		if err := rows.Scan(&a.ID, &a.ActivityType, &a.Path, &a.IsDirectory, &a.Usn, &a.OccurredAt, &a.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DB exposes the underlying connection for tools and tests.
func (r *SQLiteRecorder) DB() *sql.DB {
	return r.db
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
