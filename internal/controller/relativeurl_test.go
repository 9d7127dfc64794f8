package controller

import (
	"net"
	"testing"

	"mxfleet/internal/systeminfo"
)

func TestIsInSubnet(t *testing.T) {
	s := subnet{ip: net.ParseIP("192.168.1.1").To4(), prefixLen: 24}

	if !isInSubnet(net.ParseIP("192.168.1.200"), s) {
		t.Fatal("expected 192.168.1.200 to be in 192.168.1.0/24")
	}
	if isInSubnet(net.ParseIP("192.168.2.1"), s) {
		t.Fatal("expected 192.168.2.1 to not be in 192.168.1.0/24")
	}
}

func TestRoutableFiltersUnreachableTargets(t *testing.T) {
	candidates := []subnet{{ip: net.ParseIP("10.0.0.5").To4(), prefixLen: 24}}
	targets := []subnet{
		{ip: net.ParseIP("10.0.0.9").To4(), prefixLen: 24},
		{ip: net.ParseIP("172.16.0.9").To4(), prefixLen: 24},
	}

	got := routable(candidates, targets)
	if len(got) != 1 {
		t.Fatalf("expected 1 routable target, got %d", len(got))
	}
	if !got[0].ip.Equal(net.ParseIP("10.0.0.9").To4()) {
		t.Fatalf("unexpected routable target %v", got[0].ip)
	}
}

func TestRemoteSubnetsParsesSystemInfoNICs(t *testing.T) {
	nics := []systeminfo.NIC{
		{Name: "eth0", IPv4: "10.1.2.3", Mask: "255.255.255.0"},
		{Name: "bad", IPv4: "not-an-ip", Mask: "255.255.255.0"},
	}

	subs := remoteSubnets(nics)
	if len(subs) != 1 {
		t.Fatalf("expected 1 valid subnet, got %d", len(subs))
	}
	if subs[0].prefixLen != 24 {
		t.Fatalf("expected /24, got /%d", subs[0].prefixLen)
	}
}

func TestFormatURL(t *testing.T) {
	got := formatURL("http", net.ParseIP("10.0.0.1"), 8080, "info")
	want := "http://10.0.0.1:8080/info"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSchemeAndPortRejectsDisabledHTTPS(t *testing.T) {
	st := &State{Config: &Config{HTTPPort: 8080, HTTPSPort: 8443, EnableHTTPS: false}}
	if _, _, err := st.schemeAndPort(true); err == nil {
		t.Fatal("expected an error when https is requested but disabled")
	}
	scheme, port, err := st.schemeAndPort(false)
	if err != nil || scheme != "http" || port != 8080 {
		t.Fatalf("unexpected result %q %d %v", scheme, port, err)
	}
}
