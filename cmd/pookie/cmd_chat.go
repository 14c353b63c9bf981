package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pookietalk/pookie/internal/chat"
	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/realtime"
	"github.com/pookietalk/pookie/internal/render"
	"github.com/pookietalk/pookie/internal/session"
	"github.com/pookietalk/pookie/internal/tokenstore"
)

const quitCommand = "/quit"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the room's message history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// chatCmd joins the room interactively
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the chat room",
	Long: `Prints the room history, then follows new messages as they arrive.
Each line typed is sent as a message; type /quit or press Ctrl-D to leave.

Logging out from another terminal ends the chat.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	self := ""
	if c.session.Token() != "" && c.session.Resolve(cmd.Context()) == nil {
		self = c.session.User().Email
	}

	msgs, err := c.messages.History(cmd.Context())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No messages yet.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.New(self, termWidth()).Messages(msgs))
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Any logout, including one observed from another process, ends the chat.
	c, err := newClient(session.WithNavigator(session.NavigatorFunc(func(route string) {
		if route == session.RouteLogin {
			cancel()
		}
	})))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := authenticate(cmd, c, session.RouteChat); err != nil {
		return err
	}
	r := render.New(c.session.User().Email, termWidth())
	stderr := cmd.ErrOrStderr()

	ctrl := chat.NewController(c.messages, func() chat.Channel {
		return realtime.New(cfg.SocketURL, realtime.WithLogger(logger.Named("realtime")))
	}, c.session, logger.Named("chat"))

	unsubscribe := ctrl.Subscribe(printNew(cmd.OutOrStdout(), r))
	defer unsubscribe()

	if err := ctrl.Activate(ctx); err != nil {
		if errors.Is(err, chat.ErrNotAuthenticated) {
			return errNotLoggedIn
		}
		fmt.Fprintln(stderr, r.Error("Live updates unavailable: "+err.Error()))
	}
	defer func() {
		ctrl.Deactivate()
		ctrl.Wait()
	}()

	select {
	case <-ctrl.Ready():
	case <-ctx.Done():
		return nil
	}
	if err := ctrl.HistoryErr(); err != nil {
		fmt.Fprintln(stderr, r.Error("History unavailable: "+err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	if fs, ok := c.storage.(*tokenstore.FileStorage); ok {
		g.Go(func() error {
			return fs.Watch(gctx, c.session.Sync)
		})
	}

	lines := readLines(gctx, cmd.InOrStdin())
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == quitCommand {
					cancel()
					return nil
				}
				ctrl.SetInput(line)
				if err := ctrl.Submit(gctx); err != nil {
					fmt.Fprintln(stderr, r.Error("Send failed: "+err.Error()))
				}
			}
		}
	})

	err = g.Wait()
	if c.session.Token() == "" {
		fmt.Fprintln(stderr, `Session ended. Run "pookie login" to sign in again.`)
	}
	return err
}

// printNew returns a subscriber that prints only messages it has not
// printed yet.
func printNew(w io.Writer, r *render.Renderer) func([]models.ChatMessage) {
	var (
		mu      sync.Mutex
		printed int
	)
	return func(ms []models.ChatMessage) {
		mu.Lock()
		defer mu.Unlock()
		if len(ms) < printed {
			printed = 0
		}
		for _, m := range ms[printed:] {
			fmt.Fprintln(w, r.Message(m))
		}
		printed = len(ms)
	}
}

// readLines delivers lines from in until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
