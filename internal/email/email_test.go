package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestSendWelcomeEmail(t *testing.T) {
	s := NewSender("smtp.example.com", "587", "user", "pass", "noreply@example.com", nil)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := s.SendWelcomeEmail("alice@example.com", "alice", "http://localhost:8080"); err != nil {
		t.Fatalf("SendWelcomeEmail failed: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("Expected smtp address, got %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Errorf("Unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Welcome to PookieTalk\r\n") || !strings.Contains(gotMsg, "Hi alice,") {
		t.Errorf("Unexpected message:\n%s", gotMsg)
	}
}

func TestSendWelcomeEmailWithoutHost(t *testing.T) {
	s := NewSender("", "", "", "", "noreply@example.com", nil)
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send must not be called without a host")
		return nil
	}
	if err := s.SendWelcomeEmail("alice@example.com", "alice", ""); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
