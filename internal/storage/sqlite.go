package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding versioned JSON records, the raw
// onboarding answer log and the nudge history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "attune.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Records ---

// Get returns the raw document stored under key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM records WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Set upserts the document stored under key.
func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().Format(timeLayout),
	)
	return err
}

// Remove deletes the document stored under key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM records WHERE key = ?", key)
	return err
}

// --- Answer log ---

// AppendAnswer records one raw onboarding answer for later re-analysis.
func (s *Store) AppendAnswer(e AnswerEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO answer_log (id, question_id, answer_json, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.QuestionID, e.AnswerJSON, e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// ListAnswers returns answer log entries oldest first.
func (s *Store) ListAnswers(limit, offset int) ([]AnswerEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, question_id, answer_json, created_at
		FROM answer_log ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AnswerEntry
	for rows.Next() {
		var e AnswerEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.QuestionID, &e.AnswerJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// ClearAnswers deletes the whole answer log.
func (s *Store) ClearAnswers() error {
	_, err := s.db.Exec("DELETE FROM answer_log")
	return err
}

// --- Nudge log ---

// AppendNudge inserts n and prunes the log so at most keep entries remain.
func (s *Store) AppendNudge(n Nudge, keep int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning nudge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO nudge_log (id, kind, text, created_at) VALUES (?, ?, ?, ?)`,
		n.ID, n.Kind, n.Text, n.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("inserting nudge: %w", err)
	}

	if keep > 0 {
		if _, err := tx.Exec(`
			DELETE FROM nudge_log WHERE id NOT IN (
				SELECT id FROM nudge_log ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, keep,
		); err != nil {
			return fmt.Errorf("pruning nudge log: %w", err)
		}
	}

	return tx.Commit()
}

// RecentNudges returns up to limit nudges, newest first.
func (s *Store) RecentNudges(limit int) ([]Nudge, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, text, created_at
		FROM nudge_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Nudge
	for rows.Next() {
		var n Nudge
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Kind, &n.Text, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		n.CreatedAt = t
		results = append(results, n)
	}
	return results, rows.Err()
}

// ClearNudges deletes the whole nudge log.
func (s *Store) ClearNudges() error {
	_, err := s.db.Exec("DELETE FROM nudge_log")
	return err
}
