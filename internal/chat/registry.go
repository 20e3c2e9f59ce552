package chat

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// DefaultMaxUsernameLength is used when the registry is built without an explicit limit.
const DefaultMaxUsernameLength = 32

// session is the registry's record of one registered user. It never leaves
// the registry; callers get SessionView copies.
type session struct {
	username     string
	ipAddress    string
	status       protocol.UserStatus
	peer         *Peer
	lastActivity time.Time
	registeredAt time.Time
}

// SessionView is a point-in-time copy of a session.
type SessionView struct {
	Username     string              `json:"username"`
	IPAddress    string              `json:"ip_address"`
	Status       protocol.UserStatus `json:"-"`
	StatusName   string              `json:"status"`
	ConnID       string              `json:"conn_id"`
	LastActivity time.Time           `json:"last_activity"`
	RegisteredAt time.Time           `json:"registered_at"`
}

func (s *session) view() SessionView {
	v := SessionView{
		Username:     s.username,
		IPAddress:    s.ipAddress,
		Status:       s.status,
		StatusName:   s.status.String(),
		LastActivity: s.lastActivity,
		RegisteredAt: s.registeredAt,
	}
	if s.peer != nil {
		v.ConnID = s.peer.ID
	}
	return v
}

// Registry is the single source of truth for who is registered. Every method
// runs under one mutex, and no method performs I/O while holding it.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*session
	byPeer map[*Peer]*session

	maxUsernameLength int
	now               func() time.Time
	logger            zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for activity timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithMaxUsernameLength sets the longest accepted username, in runes.
func WithMaxUsernameLength(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxUsernameLength = n
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:            make(map[string]*session),
		byPeer:            make(map[*Peer]*session),
		maxUsernameLength: DefaultMaxUsernameLength,
		now:               time.Now,
		logger:            logx.Component("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates an ONLINE session for username bound to peer.
func (r *Registry) Register(username, ip string, peer *Peer) error {
	if !r.validUsername(username) {
		return ErrInvalidUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPeer[peer]; ok {
		return ErrAlreadyRegistered
	}
	if _, ok := r.byName[username]; ok {
		return ErrUsernameTaken
	}

	now := r.now()
	s := &session{
		username:     username,
		ipAddress:    ip,
		status:       protocol.UserStatusOnline,
		peer:         peer,
		lastActivity: now,
		registeredAt: now,
	}
	r.byName[username] = s
	r.byPeer[peer] = s
	r.updateGauges()

	r.logger.Info().Str("username", username).Str("ip", ip).Int("sessions", len(r.byName)).Msg("Session registered")
	return nil
}

// UpdateStatus sets the presence of username and refreshes its activity.
func (r *Registry) UpdateStatus(username string, status protocol.UserStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[username]
	if !ok {
		return ErrUserNotFound
	}
	s.status = status
	s.lastActivity = r.now()
	r.updateGauges()
	return nil
}

// Touch records activity for username and marks it ONLINE. It reports
// whether the session exists.
func (r *Registry) Touch(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[username]
	if !ok {
		return false
	}
	s.lastActivity = r.now()
	if s.status != protocol.UserStatusOnline {
		s.status = protocol.UserStatusOnline
		r.updateGauges()
	}
	return true
}

// ListOnline returns the usernames whose status is ONLINE, sorted.
func (r *Registry) ListOnline() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.byName))
	for name, s := range r.byName {
		if s.status == protocol.UserStatusOnline {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup returns a copy of the session for username.
func (r *Registry) Lookup(username string) (SessionView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[username]
	if !ok {
		return SessionView{}, false
	}
	return s.view(), true
}

// OnlinePeers returns the peers of every ONLINE session except exclude.
// The slice is a snapshot; callers write to the peers after the lock is gone.
func (r *Registry) OnlinePeers(exclude string) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]*Peer, 0, len(r.byName))
	for name, s := range r.byName {
		if s.status == protocol.UserStatusOnline && name != exclude {
			peers = append(peers, s.peer)
		}
	}
	return peers
}

// OnlinePeer returns the peer of username if that session is ONLINE.
func (r *Registry) OnlinePeer(username string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[username]
	if !ok || s.status != protocol.UserStatusOnline {
		return nil, false
	}
	return s.peer, true
}

// RemoveByPeer deletes the session owned by peer, returning its username.
func (r *Registry) RemoveByPeer(peer *Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byPeer[peer]
	if !ok {
		return "", false
	}
	delete(r.byPeer, peer)
	delete(r.byName, s.username)
	r.updateGauges()

	r.logger.Info().Str("username", s.username).Int("sessions", len(r.byName)).Msg("Session removed")
	return s.username, true
}

// SweepExpired marks OFFLINE every session that is not already OFFLINE and
// has been idle for at least timeout. It returns the demoted usernames, sorted.
func (r *Registry) SweepExpired(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var demoted []string
	for name, s := range r.byName {
		if s.status == protocol.UserStatusOffline {
			continue
		}
		if now.Sub(s.lastActivity) >= timeout {
			s.status = protocol.UserStatusOffline
			demoted = append(demoted, name)
		}
	}
	if len(demoted) > 0 {
		sort.Strings(demoted)
		r.updateGauges()
	}
	return demoted
}

// Snapshot returns a copy of every session, sorted by username.
func (r *Registry) Snapshot() []SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]SessionView, 0, len(r.byName))
	for _, s := range r.byName {
		views = append(views, s.view())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Username < views[j].Username })
	return views
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

func (r *Registry) validUsername(name string) bool {
	if strings.TrimSpace(name) == "" || len([]rune(name)) > r.maxUsernameLength {
		return false
	}
	for _, c := range name {
		if unicode.IsControl(c) {
			return false
		}
	}
	return true
}

// updateGauges must be called with r.mu held.
func (r *Registry) updateGauges() {
	counts := map[protocol.UserStatus]int{}
	for _, s := range r.byName {
		counts[s.status]++
	}
	for _, st := range []protocol.UserStatus{protocol.UserStatusOnline, protocol.UserStatusBusy, protocol.UserStatusOffline} {
		metrics.Sessions.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}
