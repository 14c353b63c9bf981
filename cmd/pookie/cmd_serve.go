package main

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/pookietalk/pookie/internal/server"
)

// serveCmd runs the reference backend
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local PookieTalk backend",
	Long: `Serves the REST endpoints and the realtime channel the client talks to.

SQLite is used by default; set server.db_driver to postgres and
server.db_dsn to a connection string to use Postgres instead.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("db-driver", "", "Database driver: sqlite3 or postgres")
	f.String("db-dsn", "", "Database connection string")

	for key, flag := range map[string]string{
		"server.addr":      "addr",
		"server.db_driver": "db-driver",
		"server.db_dsn":    "db-dsn",
	} {
		must(v.BindPFlag(key, f.Lookup(flag)))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if sc.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		sc.JWTSecret = hex.EncodeToString(secret)
		logger.Warn("no server.jwt_secret configured; issued tokens will not survive a restart")
	}

	srv, err := server.Open(sc, logger)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}
