package session

const (
	RouteLogin    = "/login"
	RouteRegister = "/register"
	RouteChat     = "/chat"
	RouteProfile  = "/profile"
)

var privateRoutes = map[string]bool{
	RouteChat:    true,
	RouteProfile: true,
}

// Decision is the outcome of guarding a route.
type Decision struct {
	// Route is where the caller should end up.
	Route string
	// Loading is set while the token is still being validated; the caller
	// should wait rather than render or redirect.
	Loading bool
}

// Guard decides whether route may be shown for the current session. Unknown
// routes fall back to the login page.
func (s *Store) Guard(route string) Decision {
	if route == RouteLogin || route == RouteRegister {
		return Decision{Route: route}
	}
	if !privateRoutes[route] {
		return Decision{Route: RouteLogin}
	}

	switch s.Snapshot().State {
	case Authenticated:
		return Decision{Route: route}
	case Resolving:
		return Decision{Route: route, Loading: true}
	default:
		return Decision{Route: RouteLogin}
	}
}
