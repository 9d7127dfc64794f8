package controller

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateSelfSignedCertProducesLoadableKeypair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "controller.crt")
	keyPath := filepath.Join(dir, "controller.key")

	if err := GenerateSelfSignedCert(certPath, keyPath, []string{"example.internal"}); err != nil {
		t.Fatalf("generate cert: %v", err)
	}

	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("load generated keypair: %v", err)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf certificate: %v", err)
	}

	found := false
	for _, name := range leaf.DNSNames {
		if name == "example.internal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected extra SAN in DNSNames, got %v", leaf.DNSNames)
	}
	if !leaf.NotAfter.After(time.Now()) {
		t.Fatal("expected certificate to not be expired")
	}
}
