package discovery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoControllerFound is returned when no cycle collected a
// reachable candidate within MaxCycles.
var ErrNoControllerFound = errors.New("discovery: no controller found")

const (
	// MaxCycles bounds how many broadcast/wait rounds the agent runs.
	MaxCycles = 10
	// CycleTimeout is how long a single broadcast cycle waits for responses.
	CycleTimeout = 3 * time.Second
	// PingTimeout bounds the HTTP HEAD probe of each candidate.
	PingTimeout = 5 * time.Second
)

// Discover runs up to MaxCycles broadcast/HEAD-probe rounds, returning
// the first round's set of reachable controller WebSocket URLs. It
// respects ctx for cancellation (e.g. Ctrl-C during the agent's
// GetUrl state).
func Discover(ctx context.Context, log zerolog.Logger) ([]string, error) {
	log = log.With().Str("component", "discovery-client").Logger()

	for cycle := 0; cycle < MaxCycles; cycle++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candidates, err := broadcastCycle(ctx)
		if err != nil {
			log.Warn().Err(err).Int("cycle", cycle).Msg("broadcast cycle failed")
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		reachable := pingCandidates(candidates)
		if len(reachable) > 0 {
			return reachable, nil
		}
		log.Debug().Int("cycle", cycle).Int("candidates", len(candidates)).Msg("no reachable candidate this cycle")
	}

	return nil, ErrNoControllerFound
}

// broadcastCycle sends one discovery request and collects every
// response that arrives before CycleTimeout elapses.
func broadcastCycle(ctx context.Context) ([]string, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	if err := enableBroadcast(conn); err != nil {
		return nil, fmt.Errorf("enable broadcast: %w", err)
	}

	reqData, err := NewRequest().Encode()
	if err != nil {
		return nil, err
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
	if _, err := conn.WriteToUDP(reqData, broadcastAddr); err != nil {
		return nil, fmt.Errorf("send discovery broadcast: %w", err)
	}

	deadline := time.Now().Add(CycleTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)

	var found []string
	buf := make([]byte, 4096)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // deadline exceeded or socket closed ends the cycle
		}
		resp, err := DecodeResponse(buf[:n])
		if err != nil || resp.Magic != MagicResponse {
			continue
		}
		found = append(found, resp.WS...)
	}
	return found, nil
}

// enableBroadcast sets SO_BROADCAST on the UDP socket so writes to
// 255.255.255.255 are permitted. net.UDPConn does not enable this by
// default and no ecosystem library in the example corpus wraps it, so
// this reaches directly for the syscall.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// pingCandidates HEAD-probes each candidate over HTTP(S), accepting
// self-signed certificates, and returns the subset that answered 2xx.
func pingCandidates(candidates []string) []string {
	client := &http.Client{
		Timeout: PingTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // discovery probes self-signed controllers by design
		},
	}

	var reachable []string
	for _, candidate := range candidates {
		probeURL, err := toProbeURL(candidate)
		if err != nil {
			continue
		}
		req, err := http.NewRequest(http.MethodHead, probeURL, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			reachable = append(reachable, candidate)
		}
	}
	return reachable
}

// toProbeURL maps a ws/wss candidate to the http/https URL used for
// the HEAD probe, rejecting anything else.
func toProbeURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
