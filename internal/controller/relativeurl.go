package controller

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"mxfleet/internal/systeminfo"
)

// subnet is a local or remote IPv4 address plus its prefix length, the
// unit relative-url matching works over.
type subnet struct {
	ip        net.IP
	prefixLen int
}

// localSubnets enumerates this host's non-loopback IPv4 interfaces as
// subnets (spec §6 relative-url family).
func localSubnets() ([]subnet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []subnet
	for _, iface := range ifaces {
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
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			ones, _ := ipNet.Mask.Size()
			out = append(out, subnet{ip: ip4, prefixLen: ones})
		}
	}
	return out, nil
}

// remoteSubnets reads the NICs carried in a host's collected system
// info.
func remoteSubnets(nics []systeminfo.NIC) []subnet {
	var out []subnet
	for _, nic := range nics {
		ip := net.ParseIP(nic.IPv4).To4()
		if ip == nil {
			continue
		}
		ones, _ := net.IPMask(net.ParseIP(nic.Mask).To4()).Size()
		out = append(out, subnet{ip: ip, prefixLen: ones})
	}
	return out
}

func isInSubnet(ip net.IP, s subnet) bool {
	if s.prefixLen <= 0 || s.prefixLen >= 32 {
		return false
	}
	mask := net.CIDRMask(s.prefixLen, 32)
	return ip.Mask(mask).Equal(s.ip.Mask(mask))
}

// routable returns every target subnet reachable from at least one of
// the candidate subnets.
func routable(candidates, targets []subnet) []subnet {
	var out []subnet
	for _, target := range targets {
		for _, candidate := range candidates {
			if isInSubnet(target.ip, candidate) {
				out = append(out, target)
				break
			}
		}
	}
	return out
}

func formatURL(scheme string, ip net.IP, port int, path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, ip.String(), port, path)
}

// handleRelativeURLByHost answers GET /api/relative-url/by-host: the
// host's own advertised controller_url, rewritten to this controller's
// scheme/port.
func (st *State) handleRelativeURLByHost(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	path := r.URL.Query().Get("path")
	useHTTPS := r.URL.Query().Get("https") == "true"

	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Host not found", "urls": []string{}})
		return
	}

	scheme, port, err := st.schemeAndPort(useHTTPS)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}

	u := sess.Extra.ControllerURL
	if idx := strings.Index(u, "://"); idx >= 0 {
		u = u[idx+3:]
	}
	if idx := strings.Index(u, "/"); idx >= 0 {
		u = u[:idx]
	}
	if idx := strings.Index(u, ":"); idx >= 0 {
		u = u[:idx]
	}
	url := formatURL(scheme, net.ParseIP(u), port, path)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "urls": []string{url}})
}

// handleRelativeURLByHostIP answers GET /api/relative-url/by-host-ip:
// this controller's own addresses that share a subnet with the host's
// NICs.
func (st *State) handleRelativeURLByHostIP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	path := r.URL.Query().Get("path")
	useHTTPS := r.URL.Query().Get("https") == "true"

	scheme, port, err := st.schemeAndPort(useHTTPS)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}

	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Host not found", "urls": []string{}})
		return
	}

	local, err := localSubnets()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}
	remote := remoteSubnets(sess.Extra.SystemInfo.NICs)
	matches := routable(remote, local)

	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, formatURL(scheme, m.ip, port, path))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "urls": urls})
}

// handleRelativeURLByIP answers GET /api/relative-url/by-ip: this
// controller's own addresses that share a subnet with the given ip.
func (st *State) handleRelativeURLByIP(w http.ResponseWriter, r *http.Request) {
	ipStr := r.URL.Query().Get("ip")
	path := r.URL.Query().Get("path")
	useHTTPS := r.URL.Query().Get("https") == "true"

	scheme, port, err := st.schemeAndPort(useHTTPS)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}

	target := net.ParseIP(ipStr).To4()
	if target == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid IP address", "urls": []string{}})
		return
	}

	local, err := localSubnets()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}

	var urls []string
	for _, s := range local {
		if isInSubnet(target, s) {
			urls = append(urls, formatURL(scheme, s.ip, port, path))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "urls": urls})
}

// handleRelativeURLRemoteIPByHostIP answers GET
// /api/relative-url/remote-ip-by-host-ip: the host's own NIC addresses
// that share a subnet with this controller.
func (st *State) handleRelativeURLRemoteIPByHostIP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")

	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Host not found", "urls": []string{}})
		return
	}

	local, err := localSubnets()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "urls": []string{}})
		return
	}
	remote := remoteSubnets(sess.Extra.SystemInfo.NICs)
	matches := routable(local, remote)

	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m.ip.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "urls": urls})
}

func (st *State) schemeAndPort(useHTTPS bool) (string, int, error) {
	if useHTTPS {
		if !st.Config.EnableHTTPS {
			return "", 0, fmt.Errorf("HTTPS is not enabled")
		}
		return "https", st.Config.HTTPSPort, nil
	}
	return "http", st.Config.HTTPPort, nil
}
