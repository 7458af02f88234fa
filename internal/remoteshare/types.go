// Package remoteshare implements component F: tunnel-provider
// fallback driving a supervised child process, invite minting with
// PIN and trusted-device binding, and single-use session-token
// exchange.
//
// Grounded on the teacher's internal/tunnel/tunnel.go for child-process
// supervision shape (status enum, channel-based registration, polling)
// and internal/device/device.go for keyring-backed secret persistence
// with a test-mode file fallback.
package remoteshare

import "time"

// TokenStore is the external collaborator the remote-share core and
// the terminal wire both require.
type TokenStore interface {
	ValidateSession(tokenHash [32]byte) bool
	AddSessionToken(tokenHash [32]byte)
}

// ActiveShare is the daemon's single current remote-share state, if
// any. Starting a new share atomically replaces the previous one and
// kills its tunnel child.
type ActiveShare struct {
	Provider           string
	PublicBackendURL   string
	ConnectURL         string
	InviteHash         [32]byte
	InviteExpiresAt    time.Time
	InviteUsed         bool
	PinHash            string // "hex(salt):hex(digest)", empty if no PIN
	PinFailures        uint8
	StartedAt          time.Time
}

// TrustedDevicePayload is the signed cookie that lets a returning
// remote client skip the PIN step for up to 30 days.
type TrustedDevicePayload struct {
	HostID string `json:"host_id"`
	Exp    int64  `json:"exp"`
}

// MaxPinFailures locks the invite after this many wrong PIN attempts.
const MaxPinFailures = 5

// TrustedDeviceTTL is how long a minted trusted-device token is valid.
const TrustedDeviceTTL = 30 * 24 * time.Hour

// MinInviteTTL and MaxInviteTTL clamp the requested invite ttl_seconds.
const (
	MinInviteTTL = 60 * time.Second
	MaxInviteTTL = 86400 * time.Second
)
