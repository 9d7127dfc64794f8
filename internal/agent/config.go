package agent

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"strings"
)

// Config holds the agent's CLI-derived startup parameters (spec §9
// CLI surface, agent).
type Config struct {
	WSURL             string
	Verbose           bool
	ScriptPath        string
	PublicKeyPath     string
	PrivateKeyPath    string
	EnforceAuth       bool
	TrustedController []string

	HostID    string
	SessionID string
	Pubkey    ed25519.PublicKey
	Privkey   ed25519.PrivateKey
}

// ParseConfig parses the agent CLI flags from args (excluding argv[0])
// and resolves the keypair and host identity.
func ParseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mxa", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.WSURL, "ws-url", "", "controller websocket URL; when empty, discover on the local network")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	fs.StringVar(&cfg.ScriptPath, "script", "", "path to a startup script; stored in Config.ScriptPath, the supervisor does not read or run it")
	fs.StringVar(&cfg.PublicKeyPath, "public-key", "/var/lib/mxfleet/agent.pub", "path to this agent's Ed25519 public key")
	fs.StringVar(&cfg.PrivateKeyPath, "private-key", "/var/lib/mxfleet/agent.key", "path to this agent's Ed25519 private key")
	fs.BoolVar(&cfg.EnforceAuth, "enforce-auth", false, "reject controllers whose fingerprint is not in --trusted-controllers")

	var trusted trustedList
	fs.Var(&trusted, "trusted-controllers", "comma-separated list of trusted controller fingerprints, repeatable")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.TrustedController = trusted

	pub, priv, generated, err := LoadOrGenerateKeypair(cfg.PublicKeyPath, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	cfg.Pubkey, cfg.Privkey = pub, priv
	if generated {
		fmt.Printf("generated new agent keypair, public key: %x\n", []byte(pub))
	}

	cfg.HostID = DeriveHostID()
	cfg.SessionID = NewSessionID()
	return cfg, nil
}

// trustedList is a repeatable, comma-splitting flag.Value for
// --trusted-controllers.
type trustedList []string

func (t *trustedList) String() string { return fmt.Sprint([]string(*t)) }

func (t *trustedList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*t = append(*t, v)
		}
	}
	return nil
}
