package remoteshare

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ProviderTimeout bounds how long a single tunnel provider attempt may
// run before it is considered failed (§4.6).
const ProviderTimeout = 25 * time.Second

// Provider is one entry in the tunnel-provider fallback list.
type Provider struct {
	Name string
	// Start launches the tunnel child pointed at the local port and
	// returns the supervised process plus the public URL once
	// discovered (or an error on timeout/failure).
	Start func(ctx context.Context, localPort int) (*TunnelChild, string, error)
}

// TunnelChild supervises one running tunnel subprocess.
type TunnelChild struct {
	cmd    *exec.Cmd
	logger *slog.Logger
}

// Alive reports whether the child process is still running, via a
// non-blocking wait.
func (c *TunnelChild) Alive() bool {
	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}
	return c.cmd.ProcessState == nil
}

// Stop kills the child and waits it.
func (c *TunnelChild) Stop() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	_ = c.cmd.Process.Kill()
	_ = c.cmd.Wait()
}

var trycloudflareHost = regexp.MustCompile(`https://[a-zA-Z0-9.-]+\.trycloudflare\.com\S*`)

// CloudflaredProvider runs the cloudflared binary at binaryPath, which
// the caller finds on PATH (there is no daemon-owned bin directory
// fallback and no auto-install — see DESIGN.md for why that subtree
// was dropped), and spawns `cloudflared tunnel --url http://127.0.0.1:<port>
// --no-autoupdate`, scanning combined stdout+stderr for the first
// *.trycloudflare.com HTTPS URL.
func CloudflaredProvider(binaryPath string, logger *slog.Logger) Provider {
	return Provider{
		Name: "cloudflared",
		Start: func(ctx context.Context, localPort int) (*TunnelChild, string, error) {
			ctx, cancel := context.WithTimeout(ctx, ProviderTimeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, binaryPath, "tunnel",
				"--url", fmt.Sprintf("http://127.0.0.1:%d", localPort),
				"--no-autoupdate")

			url, err := runAndScan(cmd, logger, func(line string) (string, bool) {
				if m := trycloudflareHost.FindString(line); m != "" {
					return strings.TrimRight(m, "\r\n "), true
				}
				return "", false
			})
			if err != nil {
				return nil, "", fmt.Errorf("cloudflared: %w", err)
			}
			return &TunnelChild{cmd: cmd, logger: logger}, url, nil
		},
	}
}

type localhostRunMessage struct {
	Address string `json:"address"`
}

// LocalhostRunProvider spawns an SSH reverse tunnel to localhost.run
// and parses its JSON-per-line stdout for the public address.
func LocalhostRunProvider(logger *slog.Logger) Provider {
	return Provider{
		Name: "localhost_run",
		Start: func(ctx context.Context, localPort int) (*TunnelChild, string, error) {
			ctx, cancel := context.WithTimeout(ctx, ProviderTimeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "ssh",
				"-o", "StrictHostKeyChecking=no",
				"-o", "ServerAliveInterval=30",
				"-R", fmt.Sprintf("80:127.0.0.1:%d", localPort),
				"nokey@localhost.run", "--", "--output", "json")

			url, err := runAndScan(cmd, logger, func(line string) (string, bool) {
				var msg localhostRunMessage
				if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Address == "" {
					return "", false
				}
				addr := msg.Address
				if !strings.HasPrefix(addr, "https://") {
					addr = "https://" + addr
				}
				return addr, true
			})
			if err != nil {
				return nil, "", fmt.Errorf("localhost_run: %w", err)
			}
			return &TunnelChild{cmd: cmd, logger: logger}, url, nil
		},
	}
}

// runAndScan starts cmd, reads its combined stdout/stderr line by
// line until scan returns a match or the context deadline fires. On
// failure, the child is killed and waited and the error is returned.
func runAndScan(cmd *exec.Cmd, logger *slog.Logger, scan func(line string) (string, bool)) (string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	type result struct {
		url string
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if logger != nil {
				logger.Debug("remoteshare: tunnel output", "line", line)
			}
			if url, ok := scan(line); ok {
				resCh <- result{url: url}
				return
			}
		}
		resCh <- result{err: fmt.Errorf("tunnel process ended without producing a public URL")}
	}()

	res := <-resCh
	if res.err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return "", res.err
	}
	return res.url, nil
}

// StartWithFallback tries each provider in order, returning the first
// one that produces a public URL. A provider failure kills its child,
// waits it, records the error, and proceeds to the next.
func StartWithFallback(ctx context.Context, providers []Provider, localPort int, logger *slog.Logger) (*TunnelChild, string, string, error) {
	var errs []string
	for _, p := range providers {
		child, url, err := p.Start(ctx, localPort)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		return child, p.Name, url, nil
	}
	return nil, "", "", fmt.Errorf("all tunnel providers failed: %s", strings.Join(errs, "; "))
}
