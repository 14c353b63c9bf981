package tokenstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const tokenKey = "token"

// SQLiteStorage keeps the token in a key/value table, for clients that
// already carry a local database.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dataSourceName string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Load() (string, error) {
	var token string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return Normalize(token), nil
}

func (s *SQLiteStorage) Save(token string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, tokenKey, token)
	return err
}

func (s *SQLiteStorage) Clear() error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", tokenKey)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
