package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence for exercises, submissions,
// diagnostic tests, users and auth sessions.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exercises (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'BEGINNER',
		topics TEXT NOT NULL DEFAULT '[]',
		solution TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 10,
		steps_required INTEGER NOT NULL DEFAULT 0,
		correction_mode TEXT NOT NULL DEFAULT 'AUTO',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exercise_id TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		final_answer TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL DEFAULT '[]',
		correct INTEGER NOT NULL DEFAULT 0,
		score_earned INTEGER NOT NULL DEFAULT 0,
		ai_global_score REAL,
		source TEXT NOT NULL DEFAULT 'text',
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (exercise_id) REFERENCES exercises(id)
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id, exercise_id);

	CREATE TABLE IF NOT EXISTS diagnostic_tests (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		questions TEXT NOT NULL,
		answers TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		result TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_diagnostic_student ON diagnostic_tests(student_id, status);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
