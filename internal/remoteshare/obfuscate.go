package remoteshare

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// obfuscateTarget implements §4.6's lightweight, non-cryptographic
// obfuscation of the public backend URL: 8 random nonce bytes, XOR the
// URL bytes with invite_key[i%|key|] XOR nonce[i%|nonce|] XOR (i*31%256).
// If the invite token parses as hex, its decoded bytes are the key;
// otherwise its raw bytes are used.
func obfuscateTarget(backendURL, inviteToken string) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("remoteshare: generate obfuscation nonce: %w", err)
	}

	key := inviteKeyBytes(inviteToken)

	src := []byte(backendURL)
	cipher := make([]byte, len(src))
	for i, b := range src {
		cipher[i] = b ^ key[i%len(key)] ^ nonce[i%len(nonce)] ^ byte((i*31)%256)
	}

	return hex.EncodeToString(nonce) + "." + hex.EncodeToString(cipher), nil
}

func inviteKeyBytes(token string) []byte {
	if decoded, err := hex.DecodeString(token); err == nil && len(decoded) > 0 {
		return decoded
	}
	return []byte(token)
}

// buildConnectURL appends target=<obf>&invite=<token> to base,
// respecting any existing query string (exactly one '?' in the
// result).
func buildConnectURL(base, backendURL, inviteToken string) (string, error) {
	obf, err := obfuscateTarget(backendURL, inviteToken)
	if err != nil {
		return "", err
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%starget=%s&invite=%s", base, sep, url.QueryEscape(obf), url.QueryEscape(inviteToken)), nil
}
