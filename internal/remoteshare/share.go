package remoteshare

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trybotster/hubd/internal/coreerr"
)

// Config is the static remote-share configuration.
type Config struct {
	FrontendConnectURL string
	LocalPort          int
	// ProviderOrder names the fallback order; defaults to
	// ["cloudflared", "localhost_run"] when empty.
	ProviderOrder []string
}

// Manager owns the single ActiveShare, its tunnel child, and the
// invite/PIN/trusted-device exchange. Two separate locks guard the
// share and the tunnel child; when both are needed the child lock is
// acquired first, matching §5's ordering rule.
type Manager struct {
	cfg    Config
	store  TokenStore
	ident  *Identity
	logger *slog.Logger

	childMu sync.Mutex
	child   *TunnelChild

	shareMu sync.RWMutex
	share   *ActiveShare

	exchangeLimiter *rate.Limiter
}

// New creates a remote-share Manager.
func New(cfg Config, store TokenStore, ident *Identity, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		ident:  ident,
		logger: logger,
		// defense in depth alongside the explicit 5-strikes pin_failures
		// counter (enrichment from golang.org/x/time/rate).
		exchangeLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (m *Manager) providers() []Provider {
	order := m.cfg.ProviderOrder
	if len(order) == 0 {
		order = []string{"cloudflared", "localhost_run"}
	}
	var out []Provider
	for _, name := range order {
		switch name {
		case "cloudflared":
			if path, err := exec.LookPath("cloudflared"); err == nil {
				out = append(out, CloudflaredProvider(path, m.logger))
			}
		case "localhost_run":
			out = append(out, LocalhostRunProvider(m.logger))
		}
	}
	return out
}

// StartResult is returned from StartShare.
type StartResult struct {
	ConnectURL       string
	PublicBackendURL string
	ExpiresAt        time.Time
	PinRequired      bool
	Provider         string
	HostID           string
}

// StartShare implements start_share(pin?, ttl_seconds?): stops any
// prior share, launches the tunnel with fallback, mints an invite,
// and constructs the connect_url.
func (m *Manager) StartShare(ctx context.Context, pin string, ttlSeconds int) (StartResult, error) {
	m.stopTunnelLocked()

	child, provider, publicURL, err := StartWithFallback(ctx, m.providers(), m.cfg.LocalPort, m.logger)
	if err != nil {
		return StartResult{}, coreerr.Wrap(coreerr.RemoteProviderUnavail, err)
	}

	m.childMu.Lock()
	m.child = child
	m.childMu.Unlock()

	inviteToken, err := newInviteToken()
	if err != nil {
		return StartResult{}, err
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl < MinInviteTTL {
		ttl = MinInviteTTL
	}
	if ttl > MaxInviteTTL {
		ttl = MaxInviteTTL
	}

	var pinHash string
	if pin != "" {
		pinHash, err = hashPIN(pin)
		if err != nil {
			return StartResult{}, err
		}
	}

	connectURL, err := buildConnectURL(m.cfg.FrontendConnectURL, publicURL, inviteToken)
	if err != nil {
		return StartResult{}, err
	}

	now := time.Now().UTC()
	newShare := &ActiveShare{
		Provider:         provider,
		PublicBackendURL: publicURL,
		ConnectURL:       connectURL,
		InviteHash:       hashToken(inviteToken),
		InviteExpiresAt:  now.Add(ttl),
		PinHash:          pinHash,
		StartedAt:        now,
	}

	m.shareMu.Lock()
	m.share = newShare
	m.shareMu.Unlock()

	return StartResult{
		ConnectURL:       connectURL,
		PublicBackendURL: publicURL,
		ExpiresAt:        newShare.InviteExpiresAt,
		PinRequired:      pinHash != "",
		Provider:         provider,
		HostID:           m.ident.HostID,
	}, nil
}

func (m *Manager) stopTunnelLocked() {
	m.childMu.Lock()
	defer m.childMu.Unlock()
	if m.child != nil {
		m.child.Stop()
		m.child = nil
	}
	m.shareMu.Lock()
	m.share = nil
	m.shareMu.Unlock()
}

// StopShare tears down the active share and its tunnel child, if any.
func (m *Manager) StopShare() {
	m.stopTunnelLocked()
}

// Status returns whether a share is active and, if so, its public details.
func (m *Manager) Status() (StartResult, bool) {
	m.shareMu.RLock()
	defer m.shareMu.RUnlock()
	if m.share == nil {
		return StartResult{}, false
	}
	s := m.share
	return StartResult{
		ConnectURL:       s.ConnectURL,
		PublicBackendURL: s.PublicBackendURL,
		ExpiresAt:        s.InviteExpiresAt,
		PinRequired:      s.PinHash != "",
		Provider:         s.Provider,
		HostID:           m.ident.HostID,
	}, true
}

// BootstrapResult is returned from InviteBootstrap.
type BootstrapResult struct {
	HostID      string
	PinRequired bool
	ExpiresAt   time.Time
}

func (m *Manager) validateInvite(token string, now time.Time) (*ActiveShare, error) {
	m.shareMu.RLock()
	share := m.share
	m.shareMu.RUnlock()

	if share == nil {
		return nil, coreerr.New(coreerr.RemoteNotActive, "no active share")
	}
	if hashToken(token) != share.InviteHash {
		return nil, coreerr.New(coreerr.InvalidToken, "invite token does not match")
	}
	if share.InviteUsed {
		return nil, coreerr.New(coreerr.InviteUsed, "invite already used")
	}
	if now.After(share.InviteExpiresAt) {
		return nil, coreerr.New(coreerr.InviteExpired, "invite expired")
	}
	return share, nil
}

// InviteBootstrap implements invite_bootstrap(token).
func (m *Manager) InviteBootstrap(token string) (BootstrapResult, error) {
	share, err := m.validateInvite(token, time.Now().UTC())
	if err != nil {
		return BootstrapResult{}, err
	}
	return BootstrapResult{
		HostID:      m.ident.HostID,
		PinRequired: share.PinHash != "",
		ExpiresAt:   share.InviteExpiresAt,
	}, nil
}

// ExchangeResult is returned from InviteExchange.
type ExchangeResult struct {
	SessionToken           string
	TrustedDeviceToken     string
	TrustedDeviceExpiresAt *time.Time
}

// InviteExchange implements invite_exchange(token, pin?, trusted_device_token?).
func (m *Manager) InviteExchange(token, pin, trustedDeviceToken string) (ExchangeResult, error) {
	if !m.exchangeLimiter.Allow() {
		return ExchangeResult{}, coreerr.New(coreerr.RemoteNotActive, "too many exchange attempts, slow down")
	}

	now := time.Now().UTC()
	share, err := m.validateInvite(token, now)
	if err != nil {
		return ExchangeResult{}, err
	}

	var mintedTrustedToken string
	var trustedExpiry *time.Time

	if share.PinHash != "" {
		skipPin := false
		if trustedDeviceToken != "" {
			if _, ok := VerifyTrustedDevice(m.ident.HostSecret, m.ident.HostID, trustedDeviceToken, now); ok {
				skipPin = true
			}
		}
		if !skipPin {
			if pin == "" {
				return ExchangeResult{}, coreerr.New(coreerr.PinRequired, "pin required")
			}
			if !verifyPIN(share.PinHash, pin) {
				m.shareMu.Lock()
				share.PinFailures++
				locked := share.PinFailures >= MaxPinFailures
				if locked {
					share.InviteUsed = true
				}
				m.shareMu.Unlock()
				if locked {
					return ExchangeResult{}, coreerr.New(coreerr.PinLocked, "too many incorrect PIN attempts")
				}
				return ExchangeResult{}, coreerr.New(coreerr.InvalidPin, "incorrect PIN")
			}
		}

		var expiresAt *time.Time
		mintedTrustedToken, expiresAt, err = m.mintTrustedDevice(now)
		if err != nil {
			return ExchangeResult{}, err
		}
		trustedExpiry = expiresAt
	}

	m.shareMu.Lock()
	share.InviteUsed = true
	m.shareMu.Unlock()

	sessionToken, err := newSessionToken()
	if err != nil {
		return ExchangeResult{}, err
	}
	if m.store != nil {
		m.store.AddSessionToken(hashToken(sessionToken))
	}

	return ExchangeResult{
		SessionToken:           sessionToken,
		TrustedDeviceToken:     mintedTrustedToken,
		TrustedDeviceExpiresAt: trustedExpiry,
	}, nil
}

func (m *Manager) mintTrustedDevice(now time.Time) (string, *time.Time, error) {
	token, expires, err := SignTrustedDevice(m.ident.HostSecret, m.ident.HostID, now)
	if err != nil {
		return "", nil, err
	}
	return token, &expires, nil
}

// PollTunnel checks the supervised tunnel child with a non-blocking
// liveness probe; if it has exited, the active share is cleared.
func (m *Manager) PollTunnel() {
	m.childMu.Lock()
	child := m.child
	m.childMu.Unlock()
	if child == nil {
		return
	}
	if !child.Alive() {
		m.stopTunnelLocked()
	}
}
