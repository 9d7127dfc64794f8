package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// AuthProtocolRevision is the only supported AuthRequest revision.
const AuthProtocolRevision = 1

// AuthReplayWindow is the maximum clock skew tolerated between the
// timestamp embedded in an AuthRequest and the verifier's clock.
const AuthReplayWindow = 3 * time.Second

const (
	authRevSize       = 4
	authTimestampSize = 8
	authNonceSize     = 16
	authPubkeySize    = ed25519.PublicKeySize // 32
	authSigSize       = ed25519.SignatureSize // 64

	authPrefixSize = authRevSize + authTimestampSize + authNonceSize + authPubkeySize // 60
	authTotalSize  = authPrefixSize + authSigSize                                     // 124
)

// AuthRequest is a fixed 124-byte, Ed25519-signed, timestamped nonce
// proving possession of a keypair. It is carried base64-encoded in
// the AgentAuthHeader HTTP header.
type AuthRequest struct {
	Rev       uint32
	Timestamp uint64
	Nonce     [16]byte
	Pubkey    [32]byte
	Signature [64]byte
}

// NewAuthRequest builds and signs an AuthRequest with the given
// Ed25519 private key.
func NewAuthRequest(priv ed25519.PrivateKey) (*AuthRequest, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(priv))
	}

	req := &AuthRequest{
		Rev:       AuthProtocolRevision,
		Timestamp: uint64(time.Now().Unix()),
	}
	if _, err := rand.Read(req.Nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	copy(req.Pubkey[:], priv.Public().(ed25519.PublicKey))

	prefix := req.signedPrefix()
	sig := ed25519.Sign(priv, prefix)
	copy(req.Signature[:], sig)

	return req, nil
}

func (r *AuthRequest) signedPrefix() []byte {
	buf := make([]byte, authPrefixSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Rev)
	binary.LittleEndian.PutUint64(buf[4:12], r.Timestamp)
	copy(buf[12:28], r.Nonce[:])
	copy(buf[28:60], r.Pubkey[:])
	return buf
}

// Verify checks the signature, protocol revision, and replay window.
func (r *AuthRequest) Verify() bool {
	if r.Rev != AuthProtocolRevision {
		return false
	}
	now := time.Now().Unix()
	skew := now - int64(r.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > AuthReplayWindow {
		return false
	}
	return ed25519.Verify(r.Pubkey[:], r.signedPrefix(), r.Signature[:])
}

// Encode renders the AuthRequest as standard base64.
func (r *AuthRequest) Encode() string {
	buf := make([]byte, authTotalSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Rev)
	binary.LittleEndian.PutUint64(buf[4:12], r.Timestamp)
	copy(buf[12:28], r.Nonce[:])
	copy(buf[28:60], r.Pubkey[:])
	copy(buf[60:124], r.Signature[:])
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeAuthRequest parses a header value produced by Encode.
func DecodeAuthRequest(encoded string) (*AuthRequest, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode auth request base64: %w", err)
	}
	if len(buf) != authTotalSize {
		return nil, fmt.Errorf("invalid auth request length %d, want %d", len(buf), authTotalSize)
	}

	var req AuthRequest
	req.Rev = binary.LittleEndian.Uint32(buf[0:4])
	req.Timestamp = binary.LittleEndian.Uint64(buf[4:12])
	copy(req.Nonce[:], buf[12:28])
	copy(req.Pubkey[:], buf[28:60])
	copy(req.Signature[:], buf[60:124])
	return &req, nil
}

// EncodedPubkey returns the standard base64 encoding of the 32-byte
// Ed25519 public key.
func (r *AuthRequest) EncodedPubkey() string {
	return base64.StdEncoding.EncodeToString(r.Pubkey[:])
}

// Fingerprint returns the hex-encoded SHA-256 digest of the
// base64-encoded public key, used as the trust-list identifier.
func (r *AuthRequest) Fingerprint() string {
	return FingerprintFromEncodedPubkey(r.EncodedPubkey())
}

// FingerprintFromEncodedPubkey hashes an already-base64-encoded
// public key string into its trust-list fingerprint.
func FingerprintFromEncodedPubkey(encodedPubkey string) string {
	sum := sha256.Sum256([]byte(encodedPubkey))
	return hex.EncodeToString(sum[:])
}

// GenerateKeypair creates a new Ed25519 keypair for agent identity.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
