package store

import (
	"errors"

	"github.com/pookietalk/pookie/internal/models"
)

var ErrNotFound = errors.New("store: not found")

// Store is the persistence the reference backend needs: accounts and the
// single room's message log.
type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id int64) (*models.User, error)

	// Message operations
	SaveMessage(sender, content string) (*models.ChatMessage, error)
	GetMessages(limit int) ([]models.ChatMessage, error)

	Close() error
}
