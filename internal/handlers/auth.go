package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pookietalk/pookie/internal/auth"
	"github.com/pookietalk/pookie/internal/forms"
	"github.com/pookietalk/pookie/internal/middleware"
	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/store"
)

// Mailer sends the registration greeting.
type Mailer interface {
	SendWelcomeEmail(to, username, link string) error
}

type AuthHandler struct {
	Store  store.Store
	Tokens *auth.Tokens
	Mailer Mailer
	// AppURL is linked from the welcome mail.
	AppURL string
	Logger *zap.Logger
}

func (h *AuthHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form := forms.RegisterForm{Username: req.Username, Email: req.Email, Password: req.Password, ConfirmPassword: req.Password}
	if err := form.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
	}
	if err := h.Store.CreateUser(user); err != nil {
		http.Error(w, "Username already exists.", http.StatusConflict)
		return
	}

	if h.Mailer != nil {
		if err := h.Mailer.SendWelcomeEmail(user.Email, user.Username, h.AppURL); err != nil {
			h.logger().Warn("welcome mail", zap.String("to", user.Email), zap.Error(err))
		}
	}

	h.respondWithToken(w, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.lookup(strings.TrimSpace(creds.Identifier))
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.respondWithToken(w, user)
}

// lookup treats the identifier as a username first and falls back to email.
func (h *AuthHandler) lookup(identifier string) (*models.User, error) {
	if identifier == "" {
		return nil, store.ErrNotFound
	}
	user, err := h.Store.GetUserByUsername(identifier)
	if errors.Is(err, store.ErrNotFound) && strings.Contains(identifier, "@") {
		return h.Store.GetUserByEmail(identifier)
	}
	return user, err
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user *models.User) {
	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.logger().Error("issue token", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{
		Token:    token,
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// CurrentUser answers GET /api/users for the bearer of the token.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
