package remoteshare

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignTrustedDevice mints a trusted-device token: base64url(json) +
// "." + base64url(signature). Per §9's design notes, the signature
// uses HMAC-SHA256 keyed by the host secret rather than the naive
// SHA-256(key||":"||payload) construction the original spec describes
// as a known weakness — the format is unchanged, only the signature
// construction differs.
func SignTrustedDevice(hostSecret []byte, hostID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(TrustedDeviceTTL)
	payload := TrustedDevicePayload{HostID: hostID, Exp: expires.Unix()}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("remoteshare: marshal trusted device payload: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)

	mac := hmac.New(sha256.New, hostSecret)
	mac.Write([]byte(payloadB64))
	sig := mac.Sum(nil)
	sigB64 := base64.RawURLEncoding.EncodeToString(sig)

	return payloadB64 + "." + sigB64, expires, nil
}

// VerifyTrustedDevice checks a trusted-device token's signature
// (constant time) and expiry against hostID/hostSecret. Returns the
// decoded payload on success.
func VerifyTrustedDevice(hostSecret []byte, hostID, token string, now time.Time) (TrustedDevicePayload, bool) {
	parts := splitOnce(token, '.')
	if parts == nil {
		return TrustedDevicePayload{}, false
	}
	payloadB64, sigB64 := parts[0], parts[1]

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return TrustedDevicePayload{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return TrustedDevicePayload{}, false
	}

	mac := hmac.New(sha256.New, hostSecret)
	mac.Write([]byte(payloadB64))
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(expected, sig) != 1 {
		return TrustedDevicePayload{}, false
	}

	var payload TrustedDevicePayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return TrustedDevicePayload{}, false
	}
	if payload.HostID != hostID {
		return TrustedDevicePayload{}, false
	}
	if time.Unix(payload.Exp, 0).Before(now) {
		return TrustedDevicePayload{}, false
	}
	return payload, true
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}

// newInviteToken mints a 32-byte hex single-use invite token.
func newInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("remoteshare: generate invite token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// hashPIN salts and hashes a PIN as "hex(salt):hex(digest)" where
// digest = SHA-256(salt || pin).
func hashPIN(pin string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("remoteshare: generate pin salt: %w", err)
	}
	digest := sha256.Sum256(append(append([]byte{}, salt...), []byte(pin)...))
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(digest[:]), nil
}

// verifyPIN recomputes SHA-256(salt||pin) in constant time.
func verifyPIN(stored, pin string) bool {
	parts := splitOnce(stored, ':')
	if parts == nil {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	wantDigest, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	gotDigest := sha256.Sum256(append(append([]byte{}, salt...), []byte(pin)...))
	return subtle.ConstantTimeCompare(gotDigest[:], wantDigest) == 1
}

// newSessionToken mints a 32-byte hex single-use session token.
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("remoteshare: generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
