package remoteshare

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService      = "hubd"
	keyringSecretSuffix  = "host-secret"
)

// storedIdentity is the on-disk record; the host secret itself never
// touches this file (it lives in the OS keyring, or a sibling file in
// test mode), mirroring the teacher's device.json/signing-key split.
type storedIdentity struct {
	HostID string `json:"host_id"`
}

// Identity is the daemon's persisted host_id and host_secret, created
// once on first start.
type Identity struct {
	HostID     string
	HostSecret []byte // 32 bytes

	mu         sync.RWMutex
	configPath string
}

func shouldSkipKeyring() bool {
	if v := os.Getenv("HUBD_SKIP_KEYRING"); v == "1" || strings.EqualFold(v, "true") {
		return true
	}
	_, hasConfigDir := os.LookupEnv("HUBD_CONFIG_DIR")
	return hasConfigDir
}

func configPath(configDir string) (string, error) {
	if configDir == "" {
		configDir = os.Getenv("HUBD_CONFIG_DIR")
	}
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("remoteshare: determine home dir: %w", err)
		}
		configDir = filepath.Join(home, ".config", "hubd")
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("remoteshare: create config dir: %w", err)
	}
	return filepath.Join(configDir, "identity.json"), nil
}

func secretFilePath(idPath string) string {
	return strings.TrimSuffix(idPath, ".json") + ".secret"
}

func storeSecret(path, hostID string, secret []byte) error {
	b64 := base64.StdEncoding.EncodeToString(secret)
	if shouldSkipKeyring() {
		return os.WriteFile(secretFilePath(path), []byte(b64), 0o600)
	}
	return keyring.Set(keyringService, entryName(hostID), b64)
}

func loadSecret(path, hostID string) ([]byte, error) {
	var b64 string
	if shouldSkipKeyring() {
		data, err := os.ReadFile(secretFilePath(path))
		if err != nil {
			return nil, fmt.Errorf("remoteshare: host secret file missing: %w", err)
		}
		b64 = strings.TrimSpace(string(data))
	} else {
		var err error
		b64, err = keyring.Get(keyringService, entryName(hostID))
		if err != nil {
			return nil, fmt.Errorf("remoteshare: host secret not in keyring: %w", err)
		}
	}
	secret, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("remoteshare: invalid secret encoding: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("remoteshare: secret has wrong length: %d", len(secret))
	}
	return secret, nil
}

func entryName(hostID string) string {
	return fmt.Sprintf("%s-%s", hostID, keyringSecretSuffix)
}

// LoadOrCreateIdentity loads the persisted host_id/host_secret from
// configDir (empty uses the default location), creating both on first
// start.
func LoadOrCreateIdentity(configDir string) (*Identity, error) {
	path, err := configPath(configDir)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("remoteshare: read identity file: %w", err)
		}
		var stored storedIdentity
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("remoteshare: parse identity file: %w", err)
		}
		secret, err := loadSecret(path, stored.HostID)
		if err != nil {
			return nil, err
		}
		return &Identity{HostID: stored.HostID, HostSecret: secret, configPath: path}, nil
	}

	hostIDBytes := make([]byte, 32)
	if _, err := rand.Read(hostIDBytes); err != nil {
		return nil, fmt.Errorf("remoteshare: generate host id: %w", err)
	}
	hostID := hex.EncodeToString(hostIDBytes)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("remoteshare: generate host secret: %w", err)
	}

	if err := storeSecret(path, hostID, secret); err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(storedIdentity{HostID: hostID}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("remoteshare: serialize identity: %w", err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return nil, fmt.Errorf("remoteshare: write identity file: %w", err)
	}

	return &Identity{HostID: hostID, HostSecret: secret, configPath: path}, nil
}
