package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(host, port, username, password, from string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #2563eb; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #2563eb; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Welcome to PookieTalk!</h1>
        </div>
        <div class="content">
            <p>Hi {{.Username}},</p>
            <p>Your account is ready. Jump into the chat room and say hello.</p>
            {{if .Link}}<p style="text-align: center;">
                <a href="{{.Link}}" class="button">Open PookieTalk</a>
            </p>{{end}}
        </div>
    </div>
</body>
</html>
`))

// SendWelcomeEmail greets a newly registered user. Without an SMTP host the
// mail is logged instead of sent.
func (s *Sender) SendWelcomeEmail(to, username, link string) error {
	var body bytes.Buffer
	if err := welcomeTemplate.Execute(&body, map[string]string{"Username": username, "Link": link}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	headers := map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      "Welcome to PookieTalk",
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"UTF-8\"",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, headers[k])
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	if s.Host == "" {
		s.logger.Info("smtp not configured, welcome mail not sent",
			zap.String("to", to),
			zap.String("subject", headers["Subject"]))
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return s.send(addr, auth, s.From, []string{to}, []byte(msg.String()))
}
