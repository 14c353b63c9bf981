package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/store"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

var _ store.Store = (*SQLStore)(nil)

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// Every pooled connection to ":memory:" would otherwise get its own
		// empty database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMPTZ")
	}

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateUser(user *models.User) error {
	query := s.rebind("INSERT INTO users (username, email, password) VALUES (?, ?, ?) RETURNING id")
	return s.db.QueryRow(query, user.Username, user.Email, user.Password).Scan(&user.ID)
}

func (s *SQLStore) getUser(column string, value any) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, email, password FROM users WHERE " + column + " = ?")
	err := s.db.QueryRow(query, value).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	return s.getUser("username", username)
}

func (s *SQLStore) GetUserByEmail(email string) (*models.User, error) {
	return s.getUser("email", email)
}

func (s *SQLStore) GetUserByID(id int64) (*models.User, error) {
	return s.getUser("id", id)
}

func (s *SQLStore) SaveMessage(sender, content string) (*models.ChatMessage, error) {
	m := models.ChatMessage{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	query := s.rebind("INSERT INTO messages (sender, content, created_at) VALUES (?, ?, ?) RETURNING id")
	if err := s.db.QueryRow(query, m.Sender, m.Content, m.Timestamp).Scan(&m.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessages returns the newest limit messages, oldest first. A limit of
// zero or less returns everything.
func (s *SQLStore) GetMessages(limit int) ([]models.ChatMessage, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(s.rebind(`
			SELECT id, sender, content, created_at FROM (
				SELECT id, sender, content, created_at FROM messages ORDER BY id DESC LIMIT ?
			) AS recent
			ORDER BY id ASC
		`), limit)
	} else {
		rows, err = s.db.Query("SELECT id, sender, content, created_at FROM messages ORDER BY id ASC")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
