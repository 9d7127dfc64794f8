package discovery

import "testing"

func TestRequestResponseRoundTrip(t *testing.T) {
	req := NewRequest()
	data, err := req.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if decoded.Magic != MagicRequest || decoded.Revision != ProtocolRevision {
		t.Fatalf("unexpected request: %+v", decoded)
	}

	resp := Response{Magic: MagicResponse, WS: []string{"ws://192.168.1.10:8080/ws"}}
	data, err = resp.Encode()
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	decodedResp, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decodedResp.Magic != MagicResponse || len(decodedResp.WS) != 1 {
		t.Fatalf("unexpected response: %+v", decodedResp)
	}
}

func TestToProbeURL(t *testing.T) {
	cases := map[string]string{
		"ws://1.2.3.4:80/ws":  "http://1.2.3.4:80/ws",
		"wss://1.2.3.4:80/ws": "https://1.2.3.4:80/ws",
	}
	for in, want := range cases {
		got, err := toProbeURL(in)
		if err != nil {
			t.Fatalf("toProbeURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("toProbeURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := toProbeURL("ftp://1.2.3.4/ws"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
