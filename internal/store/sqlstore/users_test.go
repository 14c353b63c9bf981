package sqlstore

import (
	"errors"
	"testing"

	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/store"
)

func TestCreateUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := &models.User{Username: "testuser", Email: "test@example.com", Password: "hash"}
	if err := testStore.CreateUser(user); err != nil {
		t.Errorf("Failed to create user: %v", err)
	}
	if user.ID == 0 {
		t.Error("Expected CreateUser to fill in the ID")
	}

	// Test duplicate user
	err := testStore.CreateUser(&models.User{Username: "testuser", Email: "other@example.com", Password: "hash"})
	if err == nil {
		t.Error("Expected error when creating duplicate user, got nil")
	}

	// Test duplicate email
	err = testStore.CreateUser(&models.User{Username: "other", Email: "test@example.com", Password: "hash"})
	if err == nil {
		t.Error("Expected error when reusing an email, got nil")
	}
}

func TestGetUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	created := &models.User{Username: "testuser", Email: "test@example.com", Password: "hash"}
	testStore.CreateUser(created)

	user, err := testStore.GetUserByUsername("testuser")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.Username != "testuser" || user.Password != "hash" {
		t.Errorf("Unexpected user: %+v", user)
	}

	byEmail, err := testStore.GetUserByEmail("test@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Errorf("GetUserByEmail: got %+v, %v", byEmail, err)
	}

	byID, err := testStore.GetUserByID(created.ID)
	if err != nil || byID.Email != "test@example.com" {
		t.Errorf("GetUserByID: got %+v, %v", byID, err)
	}

	_, err = testStore.GetUserByUsername("nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent user, got %v", err)
	}
}
