package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pookietalk/pookie/internal/forms"
	"github.com/pookietalk/pookie/internal/render"
	"github.com/pookietalk/pookie/internal/session"
)

var errNotLoggedIn = errors.New(`not logged in; run "pookie login"`)

var (
	loginPassword string

	regUsername string
	regEmail    string
	regPassword string
	regConfirm  string
)

// loginCmd signs in and stores the token
var loginCmd = &cobra.Command{
	Use:   "login [username-or-email]",
	Short: "Sign in with a username or email",
	Long: `Signs in against the configured backend and stores the session token.

The password is prompted for when --password is not given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// registerCmd creates an account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Creates an account. When the backend hands back a token the new
account is signed in straight away.`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the profile card of the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runProfile,
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted when omitted)")

	f := registerCmd.Flags()
	f.StringVarP(&regUsername, "username", "u", "", "Username, 3-20 letters, digits or underscores")
	f.StringVarP(&regEmail, "email", "e", "", "Email address")
	f.StringVarP(&regPassword, "password", "p", "", "Password (prompted when omitted)")
	f.StringVar(&regConfirm, "confirm", "", "Password confirmation (defaults to a second prompt)")
}

// prompter reads answers from the command's input, hiding secrets when the
// input is a terminal.
type prompter struct {
	cmd *cobra.Command
	in  *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, in: bufio.NewReader(cmd.InOrStdin())}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.cmd.ErrOrStderr(), label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) secret(label string) (string, error) {
	f, ok := p.cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.ask(label)
	}
	fmt.Fprint(p.cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.cmd.ErrOrStderr())
	return string(b), err
}

// orAsk returns val, or prompts for it when empty.
func orAsk(val string, ask func(string) (string, error), label string) (string, error) {
	if val != "" {
		return val, nil
	}
	return ask(label)
}

func runLogin(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	p := newPrompter(cmd)
	form := forms.LoginForm{Password: loginPassword}
	if len(args) == 1 {
		form.Identifier = args[0]
	}
	if form.Identifier, err = orAsk(form.Identifier, p.ask, "Username or email: "); err != nil {
		return err
	}
	if form.Password, err = orAsk(form.Password, p.secret, "Password: "); err != nil {
		return err
	}

	if _, err := forms.SubmitLogin(cmd.Context(), c.auth, c.session, form); err != nil {
		return err
	}
	return reportSignedIn(cmd, c)
}

func runRegister(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	p := newPrompter(cmd)
	form := forms.RegisterForm{Username: regUsername, Email: regEmail, Password: regPassword, ConfirmPassword: regConfirm}
	if form.Username, err = orAsk(form.Username, p.ask, "Username: "); err != nil {
		return err
	}
	if form.Email, err = orAsk(form.Email, p.ask, "Email: "); err != nil {
		return err
	}
	if form.Password, err = orAsk(form.Password, p.secret, "Password: "); err != nil {
		return err
	}
	if form.ConfirmPassword, err = orAsk(form.ConfirmPassword, p.secret, "Confirm password: "); err != nil {
		return err
	}

	if _, err := forms.SubmitRegister(cmd.Context(), c.auth, c.session, form); err != nil {
		return err
	}
	if c.session.Token() == "" {
		fmt.Fprintln(cmd.OutOrStdout(), `Account created. Run "pookie login" to sign in.`)
		return nil
	}
	return reportSignedIn(cmd, c)
}

// reportSignedIn waits for the new token to be validated and prints who it
// belongs to.
func reportSignedIn(cmd *cobra.Command, c *client) error {
	c.session.Wait()
	snap := c.session.Snapshot()
	if snap.State != session.Authenticated {
		return errors.New("the backend accepted the credentials but rejected the issued token")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", snap.User.Username, snap.User.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	c.session.Logout()
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

// authenticate validates the stored token and guards route with the result.
func authenticate(cmd *cobra.Command, c *client, route string) error {
	if c.session.Token() == "" {
		return errNotLoggedIn
	}
	if err := c.session.Resolve(cmd.Context()); err != nil {
		logger.Debug("token rejected", zap.Error(err))
		return errNotLoggedIn
	}
	if d := c.session.Guard(route); d.Route != route {
		return errNotLoggedIn
	}
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := authenticate(cmd, c, session.RouteProfile); err != nil {
		return err
	}
	u := c.session.User()
	fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.Username, u.Email)
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := authenticate(cmd, c, session.RouteProfile); err != nil {
		return err
	}
	u := c.session.User()
	fmt.Fprintln(cmd.OutOrStdout(), render.New(u.Email, termWidth()).Profile(*u))
	return nil
}

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return w
	}
	return 0
}
