package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/pookietalk/pookie/internal/api"
	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/tokenstore"
)

type fakeResolver struct {
	mu     sync.Mutex
	calls  []string
	users  map[string]*models.User
	gates  map[string]chan struct{}
	failed error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{users: map[string]*models.User{}, gates: map[string]chan struct{}{}}
}

func (f *fakeResolver) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	f.mu.Lock()
	f.calls = append(f.calls, token)
	gate := f.gates[token]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	if f.failed != nil {
		return nil, f.failed
	}
	return nil, api.ErrInvalidToken
}

func (f *fakeResolver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingNav struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingNav) Navigate(route string) {
	r.mu.Lock()
	r.routes = append(r.routes, route)
	r.mu.Unlock()
}

func (r *recordingNav) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

type countingStorage struct {
	tokenstore.MemoryStorage
	loads int
}

func (c *countingStorage) Load() (string, error) {
	c.loads++
	return c.MemoryStorage.Load()
}

func TestTokenLoadedLazilyOnce(t *testing.T) {
	storage := &countingStorage{}
	require.NoError(t, storage.Save("persisted"))

	s := New(storage, newFakeResolver())
	defer s.Close()
	assert.Zero(t, storage.loads)

	assert.Equal(t, "persisted", s.Token())
	assert.Equal(t, "persisted", s.Token())
	assert.Equal(t, 1, storage.loads)
	assert.Equal(t, Resolving, s.Snapshot().State)
}

func TestPlaceholderTokenInStorageIsAnonymous(t *testing.T) {
	storage := &tokenstore.MemoryStorage{}
	require.NoError(t, storage.Save("undefined"))

	s := New(storage, newFakeResolver())
	defer s.Close()
	assert.Empty(t, s.Token())
	assert.Equal(t, Anonymous, s.Snapshot().State)
}

func TestLoginResolvesUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	users := newFakeResolver()
	users.users["abc123"] = &models.User{ID: 1, Username: "alice", Email: "alice@example.com"}
	storage := &tokenstore.MemoryStorage{}

	s := New(storage, users)
	defer s.Close()

	require.NoError(t, s.Login("abc123"))
	assert.Equal(t, "abc123", s.Token())
	s.Wait()

	assert.Equal(t, []string{"abc123"}, users.Calls())
	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, "alice", snap.User.Username)

	stored, _ := storage.Load()
	assert.Equal(t, "abc123", stored)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	s := New(&tokenstore.MemoryStorage{}, newFakeResolver())
	defer s.Close()
	assert.ErrorIs(t, s.Login("null"), ErrEmptyToken)
	assert.Equal(t, Anonymous, s.Snapshot().State)
}

func TestFailedResolutionLogsOut(t *testing.T) {
	for name, failure := range map[string]error{
		"invalid token": nil,
		"network":       errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			users := newFakeResolver()
			users.failed = failure
			storage := &tokenstore.MemoryStorage{}
			nav := &recordingNav{}

			s := New(storage, users, WithNavigator(nav))
			defer s.Close()

			require.NoError(t, s.Login("abc123"))
			s.Wait()

			assert.Empty(t, s.Token())
			assert.Nil(t, s.User())
			stored, _ := storage.Load()
			assert.Empty(t, stored)
			assert.Equal(t, []string{RouteLogin}, nav.Routes())

			s.Logout()
			assert.Empty(t, s.Token())
			assert.Nil(t, s.User())
			assert.Equal(t, Anonymous, s.Snapshot().State)
		})
	}
}

func TestStaleResolutionIsDropped(t *testing.T) {
	users := newFakeResolver()
	users.users["old"] = &models.User{ID: 1, Username: "old"}
	users.users["new"] = &models.User{ID: 2, Username: "new"}
	gate := make(chan struct{})
	users.gates["old"] = gate

	s := New(&tokenstore.MemoryStorage{}, users)
	defer s.Close()

	require.NoError(t, s.Login("old"))
	require.NoError(t, s.Login("new"))
	close(gate)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, "new", snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, int64(2), snap.User.ID)
}

func TestLoginDuringRejectedResolutionSurvives(t *testing.T) {
	users := newFakeResolver()
	users.users["new"] = &models.User{ID: 2, Username: "new"}
	storage := &tokenstore.MemoryStorage{}
	require.NoError(t, storage.Save("old"))
	nav := &recordingNav{}

	// A fresh login lands after the old token is rejected but before the
	// rejection is applied.
	var s *Store
	var once sync.Once
	hook := zap.Hooks(func(e zapcore.Entry) error {
		if e.Message == "token rejected" {
			once.Do(func() { require.NoError(t, s.Login("new")) })
		}
		return nil
	})
	s = New(storage, users, WithNavigator(nav),
		WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel), zaptest.WrapOptions(hook))))
	defer s.Close()

	require.NoError(t, s.Resolve(context.Background()))
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, "new", snap.Token)
	assert.Equal(t, Authenticated, snap.State)
	stored, _ := storage.Load()
	assert.Equal(t, "new", stored)
	assert.Empty(t, nav.Routes())
	assert.Equal(t, []string{"old", "new"}, users.Calls())
}

func TestStartResolvesStoredToken(t *testing.T) {
	users := newFakeResolver()
	users.users["persisted"] = &models.User{ID: 9, Username: "carol"}
	storage := &tokenstore.MemoryStorage{}
	require.NoError(t, storage.Save("persisted"))

	s := New(storage, users)
	defer s.Close()
	s.Start()
	s.Wait()

	assert.Equal(t, Authenticated, s.Snapshot().State)
	assert.Equal(t, []string{"persisted"}, users.Calls())
}

func TestResolveSync(t *testing.T) {
	users := newFakeResolver()
	s := New(&tokenstore.MemoryStorage{}, users)
	defer s.Close()

	assert.ErrorIs(t, s.Resolve(context.Background()), ErrEmptyToken)
	assert.Empty(t, users.Calls(), "nothing to validate without a token")
}

func TestSubscribeSeesTransitions(t *testing.T) {
	users := newFakeResolver()
	users.users["abc123"] = &models.User{ID: 1}

	s := New(&tokenstore.MemoryStorage{}, users)
	defer s.Close()

	var mu sync.Mutex
	var states []State
	cancel := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	require.NoError(t, s.Login("abc123"))
	s.Wait()
	s.Logout()
	cancel()
	s.Logout()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Resolving, Authenticated, Anonymous}, states)
}

func TestSync(t *testing.T) {
	users := newFakeResolver()
	users.users["other"] = &models.User{ID: 3}
	nav := &recordingNav{}

	s := New(&tokenstore.MemoryStorage{}, users, WithNavigator(nav))
	defer s.Close()

	s.Sync("other")
	s.Wait()
	assert.Equal(t, Authenticated, s.Snapshot().State)

	s.Sync("other")
	assert.Len(t, users.Calls(), 1, "unchanged token is not re-validated")

	s.Sync("")
	assert.Equal(t, Anonymous, s.Snapshot().State)
	assert.Equal(t, []string{RouteLogin}, nav.Routes())
}

func TestGuard(t *testing.T) {
	users := newFakeResolver()
	users.users["abc123"] = &models.User{ID: 1}
	gate := make(chan struct{})
	users.gates["abc123"] = gate

	s := New(&tokenstore.MemoryStorage{}, users)
	defer s.Close()

	assert.Equal(t, Decision{Route: RouteLogin}, s.Guard(RouteChat))
	assert.Equal(t, Decision{Route: RouteRegister}, s.Guard(RouteRegister))
	assert.Equal(t, Decision{Route: RouteLogin}, s.Guard("/nowhere"))

	require.NoError(t, s.Login("abc123"))
	assert.Equal(t, Decision{Route: RouteProfile, Loading: true}, s.Guard(RouteProfile))

	close(gate)
	s.Wait()
	assert.Equal(t, Decision{Route: RouteChat}, s.Guard(RouteChat))
}

func TestLoginEndToEnd(t *testing.T) {
	var (
		mu         sync.Mutex
		authHeader string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.PathLogin:
			var creds models.Credentials
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Identifier != "alice" || creds.Password != "secret" {
				http.Error(w, "Bad credentials", http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"token":"abc123"}`))
		case api.PathCurrentUser:
			mu.Lock()
			authHeader = r.Header.Get("Authorization")
			mu.Unlock()
			w.Write([]byte(`{"id":1,"username":"alice","email":"alice@example.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gw := api.NewAuthGateway(api.NewClient(srv.URL, srv.Client(), nil))
	s := New(&tokenstore.MemoryStorage{}, gw)
	defer s.Close()

	resp, err := gw.Login(context.Background(), models.Credentials{Identifier: "alice", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, s.Login(resp.Token))
	assert.Equal(t, "abc123", s.Token())

	s.Wait()
	mu.Lock()
	assert.Equal(t, "Bearer abc123", authHeader)
	mu.Unlock()
	assert.Equal(t, "alice@example.com", s.User().Email)
}
