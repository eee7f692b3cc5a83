// ABOUTME: Launches the cloudflared tunnel process for public exposure
// ABOUTME: Scans process output to discover the assigned public URL

package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"time"
)

// Tunnel errors
var (
	ErrBinaryNotFound = errors.New("tunnel binary not installed")
	ErrNoPublicURL    = errors.New("public URL not detected in tunnel output")
)

// urlPattern matches the quick-tunnel hostname cloudflared prints once the
// tunnel is established.
var urlPattern = regexp.MustCompile(`https://[a-z0-9.-]+\.trycloudflare\.com`)

// Tunnel is a running tunnel process. It is an opaque collaborator: the
// gateway only learns the public URL it reports and when it exits.
type Tunnel struct {
	cmd    *exec.Cmd
	urlCh  chan string
	logger *slog.Logger
}

// Start launches the tunnel binary pointed at the local gateway port and
// begins scanning its output for the public URL. The process is terminated
// when the context is cancelled.
func Start(ctx context.Context, binary string, port int, logger *slog.Logger) (*Tunnel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, binary,
		"tunnel",
		"--url", fmt.Sprintf("http://127.0.0.1:%d", port),
		"--no-autoupdate",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("piping tunnel output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, binary)
		}
		return nil, fmt.Errorf("starting tunnel: %w", err)
	}

	t := &Tunnel{
		cmd:    cmd,
		urlCh:  make(chan string, 1),
		logger: logger.With("component", "tunnel"),
	}

	go t.scanOutput(stdout)

	t.logger.Info("tunnel started", "binary", binary, "port", port)
	return t, nil
}

// scanOutput reads process output line by line, forwarding the first
// public URL it sees.
func (t *Tunnel) scanOutput(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	reported := false
	for scanner.Scan() {
		line := scanner.Text()
		t.logger.Debug("tunnel output", "line", line)
		if reported {
			continue
		}
		if match := urlPattern.FindString(line); match != "" {
			t.urlCh <- match
			reported = true
		}
	}
	close(t.urlCh)
}

// PublicURL blocks until the tunnel reports its public URL, the timeout
// elapses, or the process output ends without one.
func (t *Tunnel) PublicURL(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case url, ok := <-t.urlCh:
		if !ok || url == "" {
			return "", ErrNoPublicURL
		}
		return url, nil
	case <-timer.C:
		return "", ErrNoPublicURL
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Wait blocks until the tunnel process exits.
func (t *Tunnel) Wait() error {
	return t.cmd.Wait()
}
