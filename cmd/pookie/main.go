package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pookietalk/pookie/internal/api"
	"github.com/pookietalk/pookie/internal/config"
	"github.com/pookietalk/pookie/internal/session"
	"github.com/pookietalk/pookie/internal/tokenstore"
)

var (
	// Global flags
	verbose bool
	cfgFile string

	v      = config.New()
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pookie",
	Short: "PookieTalk terminal chat client",
	Long: `pookie signs in to a PookieTalk backend, keeps the session token on
disk and joins the chat room with live updates.

Run "pookie serve" to start a local backend for development.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(); err != nil {
			return err
		}

		// Initialize logger
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if cmd.Name() == "serve" {
			zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(v, cfgFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./pookie.yaml or ~/.config/pookie/pookie.yaml)")
	pf.String("api-url", "", "Backend base URL")
	pf.String("socket-url", "", "Realtime channel URL")
	pf.String("token-store", "", "Where the session token is kept: file, sqlite or memory")
	pf.String("token-path", "", "Token file or database path")

	for key, flag := range map[string]string{
		"api_url":     "api-url",
		"socket_url":  "socket-url",
		"token_store": "token-store",
		"token_path":  "token-path",
	} {
		must(v.BindPFlag(key, pf.Lookup(flag)))
	}

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, profileCmd)
	rootCmd.AddCommand(historyCmd, chatCmd)
	rootCmd.AddCommand(serveCmd)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// client bundles what the client-side commands share.
type client struct {
	storage  tokenstore.Storage
	api      *api.Client
	auth     *api.AuthGateway
	messages *api.MessageGateway
	session  *session.Store
}

func newClient(opts ...session.Option) (*client, error) {
	storage, err := tokenstore.Open(cfg.TokenStore, cfg.TokenPath)
	if err != nil {
		return nil, err
	}
	c := api.NewClient(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger.Named("api"))
	auth := api.NewAuthGateway(c)
	opts = append([]session.Option{session.WithLogger(logger.Named("session"))}, opts...)
	sess := session.New(storage, auth, opts...)
	return &client{
		storage:  storage,
		api:      c,
		auth:     auth,
		messages: api.NewMessageGateway(c, sess),
		session:  sess,
	}, nil
}

func (c *client) Close() {
	c.session.Close()
	if closer, ok := c.storage.(interface{ Close() error }); ok {
		closer.Close()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
