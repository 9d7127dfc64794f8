package controller

import (
	"crypto/ed25519"
	"sync"

	"github.com/rs/zerolog"

	"mxfleet/internal/discovery"
	"mxfleet/internal/session"
)

// State is the process-wide shared state every handler and
// connection loop reads from, analogous to the teacher's AppState.
type State struct {
	Config     *Config
	Sessions   *session.Storage
	Log        zerolog.Logger
	Discovery  *discovery.Service
	APIKeyHash []byte

	// Privkey, when set, lets the controller counter-sign its identity
	// back to connecting agents (spec §4.4). A controller with no
	// keypair configured leaves this nil; agents with --enforce-auth
	// will then reject it.
	Privkey ed25519.PrivateKey

	mu               sync.Mutex
	discoveryEnabled bool
}

// NewState builds the shared controller state. privkey may be nil if
// the controller was not given (or could not load) a keypair, in which
// case it will not counter-sign its identity to connecting agents.
func NewState(cfg *Config, log zerolog.Logger, privkey ed25519.PrivateKey) (*State, error) {
	var apikeyHash []byte
	if cfg.APIKey != "" {
		hash, err := HashAPIKey(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		apikeyHash = hash
	}

	return &State{
		Config:           cfg,
		Sessions:         session.NewStorage(),
		Log:              log,
		Discovery:        discovery.NewService(cfg.HTTPPort, log),
		APIKeyHash:       apikeyHash,
		Privkey:          privkey,
		discoveryEnabled: !cfg.DisableDiscovery,
	}, nil
}

// DiscoveryEnabled reports whether the discovery responder should be
// (or currently is) running.
func (s *State) DiscoveryEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoveryEnabled
}

// SetDiscoveryEnabled toggles the discovery responder, starting or
// stopping the underlying service to match.
func (s *State) SetDiscoveryEnabled(enabled bool) error {
	s.mu.Lock()
	s.discoveryEnabled = enabled
	s.mu.Unlock()

	if enabled {
		return s.Discovery.Start()
	}
	return s.Discovery.Stop()
}
