// Package session owns the client's authentication state: the bearer token,
// the user it resolves to, and the transitions between them.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/tokenstore"
)

// ErrEmptyToken is returned when there is no usable token to act on.
var ErrEmptyToken = errors.New("session: empty token")

// State is where the session is in its sign-in lifecycle.
type State int

const (
	// Anonymous: no token held.
	Anonymous State = iota
	// Resolving: a token is held but has not been validated yet.
	Resolving
	// Authenticated: the token has been validated and the user is known.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State State
	Token string
	User  *models.User
}

// UserResolver validates a token against the backend.
type UserResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// Navigator redirects the user, e.g. to the login route after a logout.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Option configures a Store.
type Option func(*Store)

// WithNavigator sets where Logout redirects.
func WithNavigator(n Navigator) Option {
	return func(s *Store) { s.nav = n }
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the single owner of session state. Dependents receive it by
// injection and observe it through Subscribe.
type Store struct {
	storage tokenstore.Storage
	users   UserResolver
	nav     Navigator
	logger  *zap.Logger

	mu     sync.Mutex
	loaded bool
	token  string
	user   *models.User
	// gen increments on every token change so a resolution started for an
	// older token can be recognized and dropped.
	gen     uint64
	subs    map[int]func(Snapshot)
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Store backed by storage that validates tokens with users.
// Nothing is read from storage until first use.
func New(storage tokenstore.Storage, users UserResolver, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		storage: storage,
		users:   users,
		nav:     NavigatorFunc(func(string) {}),
		logger:  zap.NewNop(),
		subs:    make(map[int]func(Snapshot)),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the held token, reading durable storage on first access.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.token
}

func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	tok, err := s.storage.Load()
	if err != nil {
		s.logger.Warn("load token", zap.Error(err))
		return
	}
	s.token = tokenstore.Normalize(tok)
}

// User returns a copy of the resolved user, or nil.
func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Snapshot returns the current token, user and state together.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Token: s.token}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	switch {
	case s.token == "":
		snap.State = Anonymous
	case s.user == nil:
		snap.State = Resolving
	default:
		snap.State = Authenticated
	}
	return snap
}

// Subscribe registers fn for every state change and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notifyLocked must be called with mu held; it returns the deliveries to run
// after the lock is released.
func (s *Store) notifyLocked() func() {
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

// Start resolves a token loaded from storage, if any.
func (s *Store) Start() {
	s.mu.Lock()
	s.loadLocked()
	if s.token == "" || s.user != nil {
		s.mu.Unlock()
		return
	}
	gen, token := s.gen, s.token
	s.mu.Unlock()
	s.resolveAsync(gen, token)
}

// Login persists token and starts resolving the user in the background.
func (s *Store) Login(token string) error {
	token = tokenstore.Normalize(token)
	if token == "" {
		return ErrEmptyToken
	}

	// Storage is written under mu so it never disagrees with the generation
	// that owns it.
	s.mu.Lock()
	if err := s.storage.Save(token); err != nil {
		s.mu.Unlock()
		return err
	}
	gen, deliver := s.installLocked(token)
	s.mu.Unlock()
	deliver()

	s.logger.Debug("session login", zap.Uint64("generation", gen))
	s.resolveAsync(gen, token)
	return nil
}

// installLocked makes token current, unresolved, under a new generation.
func (s *Store) installLocked(token string) (uint64, func()) {
	s.loaded = true
	s.token = token
	s.user = nil
	s.gen++
	return s.gen, s.notifyLocked()
}

func (s *Store) resolveAsync(gen uint64, token string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.resolve(s.ctx, gen, token)
	}()
}

// Resolve validates the held token synchronously. Any failure logs the
// session out.
func (s *Store) Resolve(ctx context.Context) error {
	s.mu.Lock()
	s.loadLocked()
	gen, token := s.gen, s.token
	s.mu.Unlock()
	return s.resolve(ctx, gen, token)
}

func (s *Store) resolve(ctx context.Context, gen uint64, token string) error {
	var (
		user *models.User
		err  error
	)
	if token == "" {
		err = ErrEmptyToken
	} else {
		user, err = s.users.CurrentUser(ctx, token)
	}
	if err == nil && user == nil {
		err = errors.New("session: backend returned no user")
	}
	if err != nil {
		s.logger.Debug("token rejected", zap.Uint64("generation", gen), zap.Error(err))
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("dropping stale user resolution", zap.Uint64("generation", gen))
		return nil
	}
	if err != nil {
		// Checked and cleared in one critical section: a token installed
		// after the check above is never touched.
		finish := s.logoutLocked()
		s.mu.Unlock()
		s.logger.Info("logged out after failed user resolution", zap.Error(err))
		finish()
		return err
	}
	s.user = user
	deliver := s.notifyLocked()
	s.mu.Unlock()
	deliver()
	return nil
}

// Logout clears durable and in-memory state and sends the caller to the
// login route. Calling it repeatedly is harmless.
func (s *Store) Logout() {
	s.mu.Lock()
	finish := s.logoutLocked()
	s.mu.Unlock()
	finish()
}

// logoutLocked clears the token and returns the notifications and redirect
// to run once mu is released.
func (s *Store) logoutLocked() func() {
	if err := s.storage.Clear(); err != nil {
		s.logger.Warn("clear token", zap.Error(err))
	}
	s.loaded = true
	s.token = ""
	s.user = nil
	s.gen++
	deliver := s.notifyLocked()
	return func() {
		deliver()
		s.nav.Navigate(RouteLogin)
	}
}

// Sync reconciles the session with a token observed in storage by another
// writer.
func (s *Store) Sync(token string) {
	token = tokenstore.Normalize(token)

	s.mu.Lock()
	s.loadLocked()
	if token == s.token {
		s.mu.Unlock()
		return
	}
	if token == "" {
		finish := s.logoutLocked()
		s.mu.Unlock()
		finish()
		return
	}
	gen, deliver := s.installLocked(token)
	s.mu.Unlock()
	deliver()
	s.resolveAsync(gen, token)
}

// Wait blocks until background resolutions have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight resolutions and waits for them.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}
