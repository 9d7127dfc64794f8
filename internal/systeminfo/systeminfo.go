// Package systeminfo collects the small, OS-independent host snapshot
// that travels in the connect handshake and is used by the relative-url
// API family. Full OS-specific collection (disks, packages, etc.) is
// out of scope for the core (spec §1) and is left to an external
// collaborator; this is deliberately the minimum the core needs.
package systeminfo

import (
	"net"
	"os"
	"runtime"
)

// NIC is one non-loopback IPv4 network interface.
type NIC struct {
	Name string `json:"name"`
	IPv4 string `json:"ipv4"`
	Mask string `json:"mask"`
}

// SystemInfo is the snapshot carried in ConnectHandshake.SystemInfo
// and cached in HostSession.Extra.
type SystemInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	NICs     []NIC  `json:"nics"`
}

// Collect gathers the current host's snapshot.
func Collect() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Hostname: hostname,
		OS:       runtime.GOOS,
		NICs:     collectNICs(),
	}
}

func collectNICs() []NIC {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var nics []NIC
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
			nics = append(nics, NIC{
				Name: iface.Name,
				IPv4: ip4.String(),
				Mask: net.IP(ipNet.Mask).String(),
			})
		}
	}
	return nics
}
