package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/tokenstore"
)

// AuthGateway wraps the backend's authentication endpoints. It never
// retries; every failure comes back as an *AuthError.
type AuthGateway struct {
	client *Client
}

func NewAuthGateway(c *Client) *AuthGateway {
	return &AuthGateway{client: c}
}

func (g *AuthGateway) Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	const op = "login"
	resp, err := g.client.do(ctx, http.MethodPost, PathLogin, "", creds)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	if !resp.ok() {
		return nil, &AuthError{Op: op, Status: resp.status, Detail: resp.text()}
	}

	var out models.AuthResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, &AuthError{Op: op, Status: resp.status, Err: err}
	}
	if tokenstore.Normalize(out.Token) == "" {
		return nil, &AuthError{Op: op, Status: resp.status, Err: ErrMissingToken}
	}
	return &out, nil
}

// Register returns the backend's response body untouched; use TokenFrom to
// pick a token out of it.
func (g *AuthGateway) Register(ctx context.Context, reg models.Registration) (json.RawMessage, error) {
	const op = "registration"
	resp, err := g.client.do(ctx, http.MethodPost, PathRegister, "", reg)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	if !resp.ok() {
		return nil, &AuthError{Op: op, Status: resp.status, Detail: resp.text()}
	}
	return json.RawMessage(resp.body), nil
}

func (g *AuthGateway) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	const op = "fetch user"
	token = tokenstore.Normalize(token)
	if token == "" {
		return nil, &AuthError{Op: op, Err: ErrInvalidToken}
	}

	resp, err := g.client.do(ctx, http.MethodGet, PathCurrentUser, token, nil)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	if !resp.ok() {
		return nil, &AuthError{Op: op, Status: resp.status, Detail: resp.text()}
	}

	var user models.User
	if err := json.Unmarshal(resp.body, &user); err != nil {
		return nil, &AuthError{Op: op, Status: resp.status, Err: err}
	}
	return &user, nil
}

// TokenFrom extracts the token field from an auth response body, or "" when
// there is none.
func TokenFrom(body json.RawMessage) string {
	var out models.AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	return tokenstore.Normalize(out.Token)
}
