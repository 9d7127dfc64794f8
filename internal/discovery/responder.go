package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Service is the controller-side, start/stop-able UDP discovery
// responder (spec §4.10). Start is idempotent; Stop cancels the
// listener, drains the serving goroutine, and can be called again
// after a subsequent Start.
type Service struct {
	httpPort int
	log      zerolog.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewService creates a discovery responder that advertises ws URLs on
// httpPort once started.
func NewService(httpPort int, log zerolog.Logger) *Service {
	return &Service{
		httpPort: httpPort,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

// Start binds the UDP socket and begins serving discovery requests.
// Calling Start while already running is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: Port})
	if err != nil {
		return fmt.Errorf("bind discovery socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.serve(ctx, conn)

	s.log.Info().Int("port", Port).Msg("discovery service started")
	return nil
}

// Stop cancels the listener and waits for the serving goroutine to
// exit. Calling Stop while not running is a no-op.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	conn := s.conn
	s.running = false
	s.mu.Unlock()

	cancel()
	_ = conn.Close()
	s.wg.Wait()

	s.log.Info().Msg("discovery service stopped")
	return nil
}

// Running reports whether the responder is currently listening.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) serve(ctx context.Context, conn *net.UDPConn) {
	defer s.wg.Done()

	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error().Err(err).Msg("discovery read failed")
			return
		}

		req, err := DecodeRequest(buf[:n])
		if err != nil || req.Magic != MagicRequest {
			s.log.Warn().Str("from", addr.String()).Msg("ignoring invalid discovery request")
			continue
		}

		resp := Response{Magic: MagicResponse, WS: wsURLs(s.httpPort)}
		data, err := resp.Encode()
		if err != nil {
			s.log.Error().Err(err).Msg("encode discovery response")
			continue
		}
		if _, err := conn.WriteToUDP(data, addr); err != nil {
			s.log.Error().Err(err).Str("to", addr.String()).Msg("send discovery response")
			continue
		}
		s.log.Debug().Str("to", addr.String()).Msg("sent discovery response")
	}
}

// wsURLs enumerates non-loopback IPv4 interfaces and builds the
// ws://<ip>:<port>/ws candidate list.
func wsURLs(port int) []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var urls []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			urls = append(urls, fmt.Sprintf("ws://%s:%d/ws", ip4.String(), port))
		}
	}
	return urls
}
