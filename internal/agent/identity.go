package agent

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
)

// hostIDFile is where a generated host id is cached so restarts of the
// same machine keep presenting the same identity to the controller.
const hostIDFile = "/var/lib/mxfleet/host-id"

// DeriveHostID returns a stable identifier for this machine: the
// content of hostIDFile if present, otherwise the OS hostname, falling
// back to a random id if even that is unavailable.
func DeriveHostID() string {
	if data, err := os.ReadFile(hostIDFile); err == nil && len(data) > 0 {
		return string(data)
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return NewSessionID()
}

// sessionIDAlphabet matches original_source/mxa/src/main.rs's
// random_str(16): 16 characters drawn from a mixed-case alphanumeric
// set, not hex bytes.
const sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const sessionIDLength = 16

// NewSessionID returns a fresh random 16-character alphanumeric
// session identifier (spec §3, §4.6). ParseConfig calls it once per
// process, so every connection attempt of that process shares the id.
func NewSessionID() string {
	b := make([]byte, sessionIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(sessionIDAlphabet))))
		if err != nil {
			b[i] = sessionIDAlphabet[0]
			continue
		}
		b[i] = sessionIDAlphabet[n.Int64()]
	}
	return string(b)
}

// LoadOrGenerateKeypair reads an Ed25519 keypair from the given files,
// or generates and persists a new one (overwriting both files) when
// either file is missing or does not hold a key of the expected size.
// The caller is expected to print the public key once when a keypair
// was freshly generated, per the CLI surface in spec §9.
func LoadOrGenerateKeypair(pubPath, privPath string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	privData, privErr := os.ReadFile(privPath)
	pubData, pubErr := os.ReadFile(pubPath)
	if privErr == nil && pubErr == nil {
		priv := ed25519.PrivateKey(privData)
		pub := ed25519.PublicKey(pubData)
		if len(priv) == ed25519.PrivateKeySize && len(pub) == ed25519.PublicKeySize {
			return pub, priv, false, nil
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, false, fmt.Errorf("generate keypair: %w", err)
	}
	if privPath != "" {
		if err := os.WriteFile(privPath, priv, 0o600); err != nil {
			return nil, nil, false, fmt.Errorf("persist private key: %w", err)
		}
	}
	if pubPath != "" {
		if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
			return nil, nil, false, fmt.Errorf("persist public key: %w", err)
		}
	}
	return pub, priv, true, nil
}
