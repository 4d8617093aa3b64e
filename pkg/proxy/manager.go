// Package proxy manages rotating proxy session identities. The vendor
// assigns one residential IP per unique session id, so minting a fresh
// session token is how the engine rotates its network identity.
package proxy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Lease is a single-owner handle on one proxy session identity. It is
// valid for a bounded number of operations; the manager retires it once
// the cap is reached.
type Lease struct {
	// Token is the unique session id appended to the proxy username
	Token string
	// OwnerID identifies the worker the lease was minted for
	OwnerID int
	// CreatedAt is when the session was minted
	CreatedAt time.Time

	maxUses int
	mu      sync.Mutex
	uses    int
	closed  bool
}

// Use records one operation against the lease. It returns false once the
// usage cap is reached or the lease was released; the caller must then
// acquire a fresh lease.
func (l *Lease) Use() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.uses >= l.maxUses {
		return false
	}
	l.uses++
	return true
}

// Uses returns how many operations the lease has served.
func (l *Lease) Uses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uses
}

// Expired reports whether the lease reached its operation cap.
func (l *Lease) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed || l.uses >= l.maxUses
}

// Manager mints and retires proxy session leases. Session tokens combine
// owner id, a monotonic counter, a timestamp and a random suffix, which is
// collision-free for the duration of one run.
type Manager struct {
	config  *Config
	logger  *logrus.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	counter uint64
}

// NewManager creates a Manager from a validated config.
func NewManager(config *Config, logger *logrus.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proxy config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(config.SessionsPerSecond), 1),
	}, nil
}

// Acquire mints a new lease for the given owner. It waits on the
// session-mint limiter and can fail (limiter wait cancelled); callers
// treat a failed acquire as a recoverable condition, not a fatal error.
func (m *Manager) Acquire(ctx context.Context, ownerID int) (*Lease, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("session acquire cancelled: %w", err)
	}

	m.mu.Lock()
	m.counter++
	counter := m.counter
	m.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	token := fmt.Sprintf("w%ds%dt%dr%s", ownerID, counter, time.Now().UnixMilli()%100000, suffix)

	lease := &Lease{
		Token:     token,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		maxUses:   m.config.MaxUses,
	}

	m.logger.WithFields(logrus.Fields{
		"worker_id": ownerID,
		"session":   token,
	}).Debug("Minted proxy session")

	return lease, nil
}

// Release retires a lease. Safe to call more than once.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		return
	}
	lease.mu.Lock()
	already := lease.closed
	lease.closed = true
	uses := lease.uses
	lease.mu.Unlock()

	if !already {
		m.logger.WithFields(logrus.Fields{
			"worker_id": lease.OwnerID,
			"session":   lease.Token,
			"uses":      uses,
		}).Debug("Released proxy session")
	}
}

// Rotate retires the given lease and mints a replacement. Used after a
// failed attempt: retrying with the same identity is disallowed because
// many failure classes correlate with identity-level throttling.
func (m *Manager) Rotate(ctx context.Context, lease *Lease) (*Lease, error) {
	var owner int
	if lease != nil {
		owner = lease.OwnerID
	}
	m.Release(lease)
	return m.Acquire(ctx, owner)
}

// ProxyURL renders the lease as a proxy URL for an HTTP transport. The
// session parameter uses the underscore separator; a hyphen breaks the
// vendor's geo-targeting and hands out IPs from random countries.
func (l *Lease) ProxyURL(cfg *Config) *url.URL {
	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(fmt.Sprintf("%s_session-%s", cfg.Username, l.Token), cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}
