package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	tokens, err := NewTokens("test-secret", "pookie", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	id, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected user 42, got %d", id)
	}
}

func TestParseRejects(t *testing.T) {
	tokens, _ := NewTokens("test-secret", "pookie", time.Hour)
	other, _ := NewTokens("other-secret", "pookie", time.Hour)
	forged, _ := other.Issue(1)

	expiring, _ := NewTokens("test-secret", "pookie", time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiring.Issue(1)

	tests := []struct {
		name  string
		token string
	}{
		{"Garbage", "not-a-jwt"},
		{"Wrong Secret", forged},
		{"Expired", expired},
		{"Empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens("", "pookie", 0); err == nil {
		t.Error("Expected an error for an empty secret")
	}
}
