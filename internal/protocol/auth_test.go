package protocol

import (
	"testing"
	"time"
)

func TestAuthRequestRoundTrip(t *testing.T) {
	_, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	req, err := NewAuthRequest(priv)
	if err != nil {
		t.Fatalf("new auth request: %v", err)
	}

	encoded := req.Encode()
	decoded, err := DecodeAuthRequest(encoded)
	if err != nil {
		t.Fatalf("decode auth request: %v", err)
	}

	if !decoded.Verify() {
		t.Fatal("expected freshly signed auth request to verify")
	}
}

func TestAuthRequestStaleTimestampFailsVerify(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	req, _ := NewAuthRequest(priv)
	req.Timestamp = uint64(time.Now().Add(-10 * time.Second).Unix())

	// Timestamp mutated after signing: the embedded signature no
	// longer matches the prefix, so Verify fails for two independent
	// reasons (skew and signature mismatch) — both are expected.
	if req.Verify() {
		t.Fatal("expected verify to fail for a stale, re-signed-looking timestamp")
	}
}

func TestAuthRequestTamperedPrefixFailsVerify(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	req, _ := NewAuthRequest(priv)

	req.Pubkey[0] ^= 0x01 // flip a bit in the signed prefix

	if req.Verify() {
		t.Fatal("expected verify to fail after flipping a bit in the signed prefix")
	}
}

func TestAuthRequestRejectsWrongRevision(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	req, _ := NewAuthRequest(priv)
	req.Rev = 2

	if req.Verify() {
		t.Fatal("expected verify to reject an unsupported revision")
	}
}

func TestAuthRequestEncodeDecodePreservesFingerprint(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	req, _ := NewAuthRequest(priv)
	decoded, err := DecodeAuthRequest(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Fingerprint() != req.Fingerprint() {
		t.Fatal("expected fingerprint to round-trip")
	}
}

func TestFingerprintFromEncodedPubkey(t *testing.T) {
	_, priv, _ := GenerateKeypair()
	req, _ := NewAuthRequest(priv)
	fp := FingerprintFromEncodedPubkey(req.EncodedPubkey())
	if fp != req.Fingerprint() {
		t.Fatal("expected fingerprint helper to match AuthRequest.Fingerprint")
	}
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars (sha256), got %d", len(fp))
	}
}
