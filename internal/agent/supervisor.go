package agent

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mxfleet/internal/discovery"
	"mxfleet/internal/protocol"
	"mxfleet/internal/systeminfo"
)

// retryOutcome mirrors the Rust agent's Retry enum (original
// agent/net.rs + utils/retry.rs): it tells the supervisor loop whether
// to stop entirely or back off and try again.
type retryOutcome int

const (
	retryBreak retryOutcome = iota
	retryWithDelay
)

// maxAttemptsPerURL bounds consecutive failed dial attempts against the
// same controller URL before the supervisor falls back to re-discovery
// (spec §4.9 "up to 5 attempts per URL", grounded on original_source/
// mxa/src/net.rs's `while retry < 5` loop around GetUrl).
const maxAttemptsPerURL = 5

// Supervisor owns the agent's connect-run-retry loop for one process
// lifetime (spec §4.9).
type Supervisor struct {
	cfg      *Config
	log      zerolog.Logger
	executor *Executor
}

// NewSupervisor builds a Supervisor ready to Run.
func NewSupervisor(cfg *Config, log zerolog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, log: log.With().Str("component", "agent-supervisor").Logger(), executor: NewExecutor()}
}

// Run drives GetUrl -> Connect -> Loop -> retry until ctx is canceled
// or the controller fails the agent's authentication check.
func (s *Supervisor) Run(ctx context.Context) error {
	discoveryRetry := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wsURL, err := s.getWSURL(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.log.Warn().Err(err).Msg("no controller url found, retrying")
			if s.sleepBackoff(ctx, discoveryRetry) {
				return nil
			}
			discoveryRetry++
			continue
		}
		discoveryRetry = 0

		if stop := s.runURL(ctx, wsURL); stop {
			return nil
		}
		// exhausted maxAttemptsPerURL on wsURL without stopping: fall
		// back to getWSURL, which re-discovers when cfg.WSURL is unset.
	}
}

// runURL connects to wsURL and serves the connection, reconnecting with
// backoff after each failure or drop, until the supervisor is told to
// stop, ctx is canceled, or maxAttemptsPerURL consecutive dial attempts
// fail (then it returns stop=false). The backoff
// counter resets to 0 after any successful connect (spec §4.9); only
// consecutive failed dial attempts count against maxAttemptsPerURL, so
// a connection that connects, serves for a while, then drops does not
// exhaust this URL's attempt budget.
func (s *Supervisor) runURL(ctx context.Context, wsURL string) (stop bool) {
	attempts := 0
	retry := 0
	for attempts < maxAttemptsPerURL {
		if ctx.Err() != nil {
			return true
		}

		s.log.Info().Str("url", wsURL).Msg("connecting to controller")
		outcome, connected := s.handleConnect(ctx, wsURL)
		if connected {
			attempts = 0
			retry = 0
		} else {
			attempts++
		}

		switch outcome {
		case retryBreak:
			return true
		case retryWithDelay:
			if s.sleepBackoff(ctx, retry) {
				return true
			}
			retry++
		}
	}
	return false
}

// sleepBackoff sleeps ((1.5^retry)*3000 + 2000) ms, per spec §4.9, and
// reports whether ctx was canceled during the wait.
func (s *Supervisor) sleepBackoff(ctx context.Context, retry int) bool {
	delay := time.Duration(math.Pow(1.5, float64(retry))*3000+2000) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

func (s *Supervisor) getWSURL(ctx context.Context) (string, error) {
	if s.cfg.WSURL != "" {
		return s.cfg.WSURL, nil
	}
	candidates, err := discovery.Discover(ctx, s.log)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// handleConnect performs one connect+serve attempt, returning the
// retry disposition and whether the dial itself succeeded (which
// resets the caller's backoff and per-URL attempt counters, regardless
// of what happens to the connection afterward).
func (s *Supervisor) handleConnect(ctx context.Context, wsURL string) (outcome retryOutcome, connected bool) {
	conn, resp, err := s.connectTo(ctx, wsURL)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to connect to controller")
		return retryWithDelay, false
	}
	defer conn.Close()

	if !s.verifyControllerAuth(resp) {
		s.log.Error().Msg("controller authentication failed, stopping agent")
		return retryBreak, true
	}

	s.log.Info().Msg("connected to controller")
	shutdown, err := s.serve(ctx, conn)
	if err != nil {
		s.log.Error().Err(err).Msg("connection loop failed")
		return retryWithDelay, true
	}
	if shutdown {
		return retryBreak, true
	}
	return retryWithDelay, true
}

func (s *Supervisor) connectTo(ctx context.Context, wsURL string) (*websocket.Conn, *http.Response, error) {
	handshake := protocol.ConnectHandshake{
		Version:       protocol.ProtocolVersion,
		HostID:        s.cfg.HostID,
		SessionID:     s.cfg.SessionID,
		ControllerURL: wsURL,
	}
	sysInfo, err := json.Marshal(systeminfo.Collect())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal system info: %w", err)
	}
	handshake.SystemInfo = sysInfo

	encodedHandshake, err := handshake.Encode()
	if err != nil {
		return nil, nil, err
	}

	auth, err := protocol.NewAuthRequest(s.cfg.Privkey)
	if err != nil {
		return nil, nil, fmt.Errorf("build auth request: %w", err)
	}

	header := http.Header{}
	header.Set(protocol.ConnectHandshakeHeader, encodedHandshake)
	header.Set(protocol.AgentAuthHeader, auth.Encode())

	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: strings.HasPrefix(wsURL, "wss://")}, //nolint:gosec // agents dial controllers identified by Ed25519 fingerprint, not CA trust
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

// verifyControllerAuth checks the controller's counter-signed
// AgentAuthHeader on the upgrade response, per spec §4.4.
func (s *Supervisor) verifyControllerAuth(resp *http.Response) bool {
	if resp == nil {
		return !s.cfg.EnforceAuth
	}
	header := resp.Header.Get(protocol.AgentAuthHeader)
	if header == "" {
		return !s.cfg.EnforceAuth
	}
	auth, err := protocol.DecodeAuthRequest(header)
	if err != nil || !auth.Verify() {
		return false
	}
	if !s.cfg.EnforceAuth {
		return true
	}
	fingerprint := auth.Fingerprint()
	for _, trusted := range s.cfg.TrustedController {
		if trusted == fingerprint {
			return true
		}
	}
	return false
}

// serve runs the read/write/ping loop for one connection until it
// drops, the controller closes it, or ctx is canceled. It returns
// shutdown=true only when ctx cancellation (a local shutdown signal)
// ended the loop.
func (s *Supervisor) serve(ctx context.Context, conn *websocket.Conn) (shutdown bool, err error) {
	outbound := make(chan *protocol.Message, 16)
	inbound := make(chan *protocol.Message, 16)
	readErrCh := make(chan error, 1)

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go s.readLoop(readCtx, conn, inbound, readErrCh)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true, nil

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return false, fmt.Errorf("send ping: %w", err)
			}

		case err := <-readErrCh:
			return false, err

		case msg := <-inbound:
			if msg.Kind == protocol.KindControllerRequest && msg.Request != nil {
				req := *msg.Request
				go func() {
					resp := s.executor.Handle(ctx, req)
					outbound <- protocol.NewAgentResponseMessage(resp)
				}()
			} else {
				// spec §4.9: any non-ControllerRequest frame gets a
				// Message::None reply instead of being dropped silently.
				outbound <- protocol.NoneMessage()
			}

		case msg := <-outbound:
			data, err := msg.Encode()
			if err != nil {
				s.log.Error().Err(err).Msg("encode outbound message")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return false, fmt.Errorf("send message: %w", err)
			}
		}
	}
}

func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn, inbound chan<- *protocol.Message, errCh chan<- error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case errCh <- fmt.Errorf("read message: %w", err):
			case <-ctx.Done():
			}
			return
		}
		if kind == websocket.BinaryMessage {
			select {
			case errCh <- errors.New("protocol error: binary frame from controller"):
			case <-ctx.Done():
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			// serve answers a None message with a None reply.
			s.log.Warn().Err(err).Msg("malformed message from controller, replying with none")
			msg = protocol.NoneMessage()
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}
