// Package render formats chat messages and the profile card for a terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pookietalk/pookie/internal/models"
)

type Renderer struct {
	// Self is the sender value of the signed-in user (their email).
	Self  string
	Width int
	Loc   *time.Location

	own      lipgloss.Style
	other    lipgloss.Style
	sender   lipgloss.Style
	stamp    lipgloss.Style
	card     lipgloss.Style
	label    lipgloss.Style
	errStyle lipgloss.Style
}

func New(self string, width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	bubble := lipgloss.NewStyle().Padding(0, 1).MaxWidth(width * 2 / 3)
	return &Renderer{
		Self:     self,
		Width:    width,
		Loc:      time.Local,
		own:      bubble.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("27")),
		other:    bubble.Foreground(lipgloss.Color("235")).Background(lipgloss.Color("252")),
		sender:   lipgloss.NewStyle().Bold(true),
		stamp:    lipgloss.NewStyle().Faint(true),
		card:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		errStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
	}
}

func (r *Renderer) IsOwn(m models.ChatMessage) bool {
	return r.Self != "" && m.Sender == r.Self
}

// Message renders one message; the user's own messages are right-aligned.
func (r *Renderer) Message(m models.ChatMessage) string {
	stamp := ""
	if !m.Timestamp.IsZero() {
		stamp = r.stamp.Render(m.Timestamp.In(r.Loc).Format("15:04:05"))
	}

	if r.IsOwn(m) {
		body := r.own.Render(m.Content)
		return lipgloss.PlaceHorizontal(r.Width, lipgloss.Right, lipgloss.JoinHorizontal(lipgloss.Bottom, stamp, " ", body))
	}
	head := r.sender.Render(m.Sender)
	return lipgloss.JoinVertical(lipgloss.Left, head, lipgloss.JoinHorizontal(lipgloss.Bottom, r.other.Render(m.Content), " ", stamp))
}

func (r *Renderer) Messages(ms []models.ChatMessage) string {
	lines := make([]string, 0, len(ms))
	for _, m := range ms {
		lines = append(lines, r.Message(m))
	}
	return strings.Join(lines, "\n")
}

// Profile renders the user's identity card.
func (r *Renderer) Profile(u models.User) string {
	rows := []string{
		r.sender.Render(u.Username),
		r.label.Render("@" + strings.ToLower(u.Username)),
		"",
		r.label.Render("Email") + "  " + u.Email,
		r.label.Render("ID") + "     " + fmt.Sprint(u.ID),
	}
	return r.card.Render(strings.Join(rows, "\n"))
}

func (r *Renderer) Error(msg string) string {
	return r.errStyle.Render(msg)
}
