package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vantage-kit/vantage/internal/shared"
)

const (
	// DefaultIdleTimeout is how long the session survives without activity.
	DefaultIdleTimeout = 15 * time.Minute
	// DefaultRefreshInterval keeps the session warm ahead of token expiry.
	DefaultRefreshInterval = 12 * time.Minute
)

// Authenticator abstracts the transport used by the manager so it can be
// exercised without a live server.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Profile, error)
	FetchMe(ctx context.Context, token string) (Profile, error)
	Logout(ctx context.Context, token string) error
}

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	IdleTimeout     time.Duration
	RefreshInterval time.Duration
	WatchTick       time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

// Manager owns the authentication state of one client session. All state
// transitions happen under one mutex so ability-check callers observe
// mutations immediately.
type Manager struct {
	auth   Authenticator
	logger *slog.Logger
	now    func() time.Time

	idleTimeout     time.Duration
	refreshInterval time.Duration
	watchTick       time.Duration

	mu            sync.Mutex
	status        Status
	token         string
	user          *User
	roles         []Role
	permissions   []Permission
	abilities     []string
	unauthorized  bool
	lastRefreshAt time.Time
	lastActivity  time.Time
	online        bool

	// epoch advances on every login, hydrate and logout. In-flight refreshes
	// capture it at start and discard their result when it moved, so a logout
	// can never be overwritten by a concurrently resolving refresh.
	epoch uint64

	refreshGroup singleflight.Group
	stopWatch    chan struct{}
}

// NewManager constructs a Manager in the idle state.
func NewManager(auth Authenticator, opts Options) *Manager {
	m := &Manager{
		auth:            auth,
		logger:          opts.Logger,
		now:             opts.Now,
		idleTimeout:     opts.IdleTimeout,
		refreshInterval: opts.RefreshInterval,
		watchTick:       opts.WatchTick,
		status:          StatusIdle,
		online:          true,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	if m.refreshInterval <= 0 {
		m.refreshInterval = DefaultRefreshInterval
	}
	if m.watchTick <= 0 {
		m.watchTick = time.Minute
	}
	return m
}

// Hydrate installs an authenticated session. Roles default to the user's
// embedded role list when not supplied explicitly.
func (m *Manager) Hydrate(user User, token string, roles []Role, permissions []Permission) {
	if roles == nil {
		roles = user.Roles
	}
	m.mu.Lock()
	m.epoch++
	m.status = StatusAuthenticated
	m.token = token
	m.user = &user
	m.roles = roles
	m.permissions = permissions
	m.abilities = deriveAbilities(permissions)
	m.unauthorized = false
	m.lastActivity = m.now()
	m.lastRefreshAt = m.now()
	m.startWatchersLocked()
	m.mu.Unlock()
}

// Login authenticates against the server and hydrates on success. On failure
// the session stays in its prior state with no partial hydration.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	m.mu.Lock()
	prior := m.status
	if prior == StatusLoading {
		m.mu.Unlock()
		return errors.New("session: login already in progress")
	}
	m.status = StatusLoading
	m.mu.Unlock()

	profile, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.mu.Lock()
		if m.status == StatusLoading {
			m.status = prior
		}
		m.mu.Unlock()
		return err
	}
	m.Hydrate(profile.User, profile.Token, profile.Roles, profile.Permissions)
	return nil
}

// Logout revokes the server-side token best-effort and unconditionally clears
// the local session.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token != "" {
		if err := m.auth.Logout(ctx, token); err != nil && m.logger != nil {
			m.logger.Warn("session: remote logout", slog.Any("error", err))
		}
	}
	m.clear(false)
}

// Refresh re-validates the session against the server. Concurrent calls
// coalesce onto one in-flight request. Transient failures leave the session
// untouched (stale-but-valid); an explicit authentication rejection forces a
// logout. Either way the state machine never sticks in loading.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusAuthenticated {
		m.mu.Unlock()
		return nil
	}
	token := m.token
	startEpoch := m.epoch
	m.mu.Unlock()

	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		profile, err := m.auth.FetchMe(ctx, token)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch != startEpoch {
			// Session changed hands while the fetch was in flight.
			return nil, nil
		}
		m.user = &profile.User
		m.roles = profile.Roles
		m.permissions = profile.Permissions
		m.abilities = deriveAbilities(profile.Permissions)
		m.lastRefreshAt = m.now()
		return nil, nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrAuthenticationFailed) || errors.Is(err, shared.ErrAccountSuspended) {
		m.mu.Lock()
		stale := m.epoch != startEpoch
		m.mu.Unlock()
		if stale {
			// The rejection belongs to a session that already ended; acting on
			// it now would tear down whichever session replaced it.
			return nil
		}
		if errors.Is(err, shared.ErrAccountSuspended) {
			m.markUnauthorized()
		}
		m.Logout(ctx)
		return err
	}
	if m.logger != nil {
		m.logger.Debug("session: refresh failed, keeping state", slog.Any("error", err))
	}
	return err
}

// Touch records user activity for the idle watcher.
func (m *Manager) Touch() {
	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()
}

// SetOnline feeds the connectivity watcher. An offline-to-online transition
// triggers an opportunistic refresh whose failure is swallowed.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	authenticated := m.status == StatusAuthenticated
	m.mu.Unlock()

	if online && !wasOnline && authenticated {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = m.Refresh(ctx)
		}()
	}
}

// Snapshot returns an immutable view of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Status:        m.status,
		Token:         m.token,
		User:          m.user,
		Roles:         append([]Role(nil), m.roles...),
		Permissions:   append([]Permission(nil), m.permissions...),
		Abilities:     append([]string(nil), m.abilities...),
		Unauthorized:  m.unauthorized,
		LastRefreshAt: m.lastRefreshAt,
	}
	return snap
}

// Can reports whether the cached ability set covers (action, subject).
func (m *Manager) Can(action, subject string) bool {
	key := Permission{Action: action, Subject: subject}.AbilityKey()
	wildcard := Permission{Action: action, Subject: shared.SubjectAny}.AbilityKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.abilities {
		if a == key || a == wildcard {
			return true
		}
	}
	return false
}

// Close stops the watchers. The manager stays usable; watchers restart on the
// next hydration.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopWatchersLocked()
	m.mu.Unlock()
}

// clear performs the local half of a logout. Soft logouts (idle timeout) skip
// the server round-trip entirely and come through here directly.
func (m *Manager) clear(markUnauthorized bool) {
	m.mu.Lock()
	m.epoch++
	m.status = StatusIdle
	m.token = ""
	m.user = nil
	m.roles = nil
	m.permissions = nil
	m.abilities = nil
	if markUnauthorized {
		m.unauthorized = true
	}
	m.stopWatchersLocked()
	m.mu.Unlock()
}

func (m *Manager) markUnauthorized() {
	m.mu.Lock()
	m.unauthorized = true
	m.mu.Unlock()
}

// startWatchersLocked launches the idle and periodic-refresh watchers for the
// current authenticated epoch. Caller holds m.mu.
func (m *Manager) startWatchersLocked() {
	m.stopWatchersLocked()
	stop := make(chan struct{})
	m.stopWatch = stop

	go m.watch(stop)
}

// stopWatchersLocked cancels any running watchers. Caller holds m.mu.
func (m *Manager) stopWatchersLocked() {
	if m.stopWatch != nil {
		close(m.stopWatch)
		m.stopWatch = nil
	}
}

// watch drives both scheduled observers off one ticker: the idle watcher
// (soft logout after inactivity) and the periodic refresh.
func (m *Manager) watch(stop chan struct{}) {
	ticker := time.NewTicker(m.watchTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.status != StatusAuthenticated {
			m.mu.Unlock()
			continue
		}
		idleFor := m.now().Sub(m.lastActivity)
		refreshDue := m.lastRefreshAt.IsZero() || m.now().Sub(m.lastRefreshAt) >= m.refreshInterval
		online := m.online
		m.mu.Unlock()

		if idleFor >= m.idleTimeout {
			// Idle timeout is a local-only soft logout.
			m.clear(false)
			return
		}
		if refreshDue && online {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = m.Refresh(ctx)
			cancel()
		}
	}
}

func deriveAbilities(perms []Permission) []string {
	abilities := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		key := p.AbilityKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		abilities = append(abilities, key)
	}
	return abilities
}
