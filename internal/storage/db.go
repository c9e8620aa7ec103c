// SPDX-License-Identifier: MIT

// Package storage keeps the take archive and the training set in SQLite.
package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"beatloop/internal/classify"
	"beatloop/internal/feature"
	"beatloop/internal/log"
	"beatloop/internal/looper"
	"beatloop/internal/pattern"

	_ "modernc.org/sqlite"
)

var logger = log.Component("storage")

const schemaVersion = "1"

// Take is one archived recording.
type Take struct {
	ID       int64
	Session  string
	Track    int
	Take     int
	Duration float64
	Hits     int
	Created  time.Time
}

// DB wraps the SQLite database.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS takes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session    TEXT NOT NULL,
			track      INTEGER NOT NULL,
			take       INTEGER NOT NULL,
			duration   REAL NOT NULL,
			hits       INTEGER NOT NULL,
			body       TEXT NOT NULL,
			created    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS takes_session ON takes (session, take);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create takes table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS examples (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			label    INTEGER NOT NULL,
			features TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create examples table: %w", err)
	}

	if _, err := db.Exec(`INSERT OR IGNORE INTO _meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("write schema version: %w", err)
	}

	logger.Infof("opened %s", path)
	return &DB{db: db, path: path}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// ArchivePattern stores a recorded take with its pattern file body.
func (d *DB) ArchivePattern(session string, track, take int, p *pattern.Pattern) error {
	var body bytes.Buffer
	if _, err := p.WriteTo(&body); err != nil {
		return fmt.Errorf("encode take: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO takes (session, track, take, duration, hits, body, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session, track, take, p.Duration, len(p.Hits), body.String(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("archive take %d: %w", take, err)
	}
	return nil
}

// Takes lists archived takes, newest first. An empty session lists all.
func (d *DB) Takes(session string) ([]Take, error) {
	query := `SELECT id, session, track, take, duration, hits, created FROM takes`
	var args []any
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY id DESC`

	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list takes: %w", err)
	}
	defer rows.Close()

	var takes []Take
	for rows.Next() {
		var t Take
		var created int64
		if err := rows.Scan(&t.ID, &t.Session, &t.Track, &t.Take, &t.Duration, &t.Hits, &created); err != nil {
			return nil, fmt.Errorf("scan take: %w", err)
		}
		t.Created = time.Unix(created, 0)
		takes = append(takes, t)
	}
	return takes, rows.Err()
}

// LoadTake parses an archived take back into a pattern.
func (d *DB) LoadTake(id int64) (*pattern.Pattern, error) {
	d.mu.RLock()
	var body string
	err := d.db.QueryRow(`SELECT body FROM takes WHERE id = ?`, id).Scan(&body)
	d.mu.RUnlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("take %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load take %d: %w", id, err)
	}
	return pattern.Read(strings.NewReader(body))
}

// SaveExamples replaces the stored training set in one transaction.
func (d *DB) SaveExamples(examples []classify.Example) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM examples`); err != nil {
		return fmt.Errorf("clear examples: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO examples (label, features) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ex := range examples {
		features, err := json.Marshal(ex.Vector[:])
		if err != nil {
			return fmt.Errorf("encode features: %w", err)
		}
		if _, err := stmt.Exec(int(ex.Label), string(features)); err != nil {
			return fmt.Errorf("insert example: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logger.Infof("stored %d training examples", len(examples))
	return nil
}

// LoadExamples returns the stored training set, classify.ErrNoExamples when empty.
func (d *DB) LoadExamples() ([]classify.Example, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT label, features FROM examples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load examples: %w", err)
	}
	defer rows.Close()

	var examples []classify.Example
	for rows.Next() {
		var label int
		var features string
		if err := rows.Scan(&label, &features); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		var values []float64
		if err := json.Unmarshal([]byte(features), &values); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		if len(values) != feature.Dims || !classify.Label(label).Valid() {
			return nil, fmt.Errorf("stored example has label %d and %d features", label, len(values))
		}
		ex := classify.Example{Label: classify.Label(label)}
		copy(ex.Vector[:], values)
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, classify.ErrNoExamples
	}
	return examples, nil
}

var (
	_ looper.Archive      = (*DB)(nil)
	_ looper.ExampleStore = (*DB)(nil)
)
