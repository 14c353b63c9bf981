// Package server assembles the reference chat backend: REST endpoints, the
// websocket hub and persistence.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pookietalk/pookie/internal/auth"
	"github.com/pookietalk/pookie/internal/email"
	"github.com/pookietalk/pookie/internal/handlers"
	"github.com/pookietalk/pookie/internal/middleware"
	"github.com/pookietalk/pookie/internal/store"
	"github.com/pookietalk/pookie/internal/store/sqlstore"
	"github.com/pookietalk/pookie/internal/ws"
)

const shutdownTimeout = 5 * time.Second

type SMTPConfig struct {
	Host     string `mapstructure:"smtp_host"`
	Port     string `mapstructure:"smtp_port"`
	Username string `mapstructure:"smtp_user"`
	Password string `mapstructure:"smtp_pass"`
	From     string `mapstructure:"smtp_from"`
}

type Config struct {
	Addr         string        `mapstructure:"addr"`
	DBDriver     string        `mapstructure:"db_driver"`
	DBDSN        string        `mapstructure:"db_dsn"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	AppURL       string        `mapstructure:"app_url"`
	HistoryLimit int           `mapstructure:"history_limit"`
	SMTP         SMTPConfig    `mapstructure:",squash"`
}

type Server struct {
	cfg    Config
	store  store.Store
	hub    *ws.Hub
	router *mux.Router
	logger *zap.Logger
}

// Open connects to the configured database and builds a Server on it. The
// returned Server owns the store and closes it when Run returns.
func Open(cfg Config, logger *zap.Logger) (*Server, error) {
	st, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	s, err := New(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func New(cfg Config, st store.Store, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, "pookie", cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.Named("hub"))
	mailer := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger.Named("email"))

	authHandler := &handlers.AuthHandler{Store: st, Tokens: tokens, Mailer: mailer, AppURL: cfg.AppURL, Logger: logger}
	chatHandler := &handlers.ChatHandler{Store: st, Hub: hub, HistoryLimit: cfg.HistoryLimit, Logger: logger}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger.Named("http")))

	// API Endpoints
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")
	r.Handle("/api/users", middleware.BearerAuth(tokens)(http.HandlerFunc(authHandler.CurrentUser))).Methods("GET")
	r.HandleFunc("/api/chat/messages", chatHandler.GetMessages).Methods("GET")
	r.HandleFunc("/api/chat/send", chatHandler.Send).Methods("POST")

	// WebSocket Endpoint
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	return &Server{cfg: cfg, store: st, hub: hub, router: r, logger: logger}, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Hub() *ws.Hub { return s.hub }

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.store.Close()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and the HTTP server on ln. Cancelling ctx shuts both
// down; the store is closed before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.store.Close()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.hub.Run(ctx)
	})
	g.Go(func() error {
		s.logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
