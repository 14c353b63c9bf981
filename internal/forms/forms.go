// Package forms validates and submits the login and registration forms.
package forms

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"github.com/pookietalk/pookie/internal/api"
	"github.com/pookietalk/pookie/internal/models"
)

const (
	minPassword = 6
	// bcrypt ignores everything past 72 bytes.
	maxPassword = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// FieldErrors maps a form field to its first validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return strings.Join(parts, "; ")
}

func (fe FieldErrors) orNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

type LoginForm struct {
	Identifier string
	Password   string
}

func (f LoginForm) Validate() error {
	errs := FieldErrors{}
	if strings.TrimSpace(f.Identifier) == "" {
		errs["identifier"] = "Username or email is required"
	}
	checkPassword(errs, f.Password)
	return errs.orNil()
}

type RegisterForm struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

func (f RegisterForm) Validate() error {
	errs := FieldErrors{}
	if !usernamePattern.MatchString(f.Username) {
		errs["username"] = "Username must be 3-20 letters, digits or underscores"
	}
	if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
		errs["email"] = "Invalid email address"
	}
	checkPassword(errs, f.Password)
	if f.ConfirmPassword != f.Password {
		errs["confirmPassword"] = "Passwords do not match"
	}
	return errs.orNil()
}

func checkPassword(errs FieldErrors, pw string) {
	switch {
	case pw == "":
		errs["password"] = "Password is required"
	case len(pw) < minPassword:
		errs["password"] = "Password must be at least 6 characters"
	case len(pw) > maxPassword:
		errs["password"] = "Password must be at most 72 bytes"
	}
}

// Authenticator is what a successful submit hands the token to.
type Authenticator interface {
	Login(token string) error
}

// Result carries what the form shows after a submit.
type Result struct {
	// Fields holds per-field validation messages; nothing was sent.
	Fields FieldErrors
	// SubmitError is the backend's message, shown as-is.
	SubmitError string
}

func (r Result) OK() bool { return len(r.Fields) == 0 && r.SubmitError == "" }

// SubmitLogin validates, logs in through gw and stores the token in sess.
func SubmitLogin(ctx context.Context, gw *api.AuthGateway, sess Authenticator, f LoginForm) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{Fields: err.(FieldErrors)}, err
	}
	resp, err := gw.Login(ctx, models.Credentials{Identifier: strings.TrimSpace(f.Identifier), Password: f.Password})
	if err != nil {
		return Result{SubmitError: err.Error()}, err
	}
	if err := sess.Login(resp.Token); err != nil {
		return Result{SubmitError: err.Error()}, err
	}
	return Result{}, nil
}

// SubmitRegister validates, registers through gw and, when the backend
// returns a token, signs the new user in.
func SubmitRegister(ctx context.Context, gw *api.AuthGateway, sess Authenticator, f RegisterForm) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{Fields: err.(FieldErrors)}, err
	}
	body, err := gw.Register(ctx, models.Registration{Username: f.Username, Email: f.Email, Password: f.Password})
	if err != nil {
		return Result{SubmitError: err.Error()}, err
	}
	token := api.TokenFrom(body)
	if token == "" {
		return Result{}, nil
	}
	if err := sess.Login(token); err != nil {
		return Result{SubmitError: err.Error()}, err
	}
	return Result{}, nil
}

// IsValidation reports whether err came from form validation rather than
// the backend.
func IsValidation(err error) bool {
	var fe FieldErrors
	return errors.As(err, &fe)
}
