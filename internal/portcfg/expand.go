package portcfg

import (
	"net"
)

// Expand turns an INADDR_ANY port configuration into one copy per local
// IPv4 interface address, or returns p unchanged as a single-element slice
// if it is already address-specific (spec.md §3: "Address \"*\" means
// INADDR_ANY and expands at bind time to one port configuration per local
// interface").
//
// net.Interfaces is used directly: enumerating local interface addresses is
// an OS-facing concern none of the retrieved third-party libraries cover,
// so this is the one place portcfg reaches past golang.org/x/sys/unix.
func Expand(p Port) ([]Port, error) {
	if !p.IsAny() {
		return []Port{p}, nil
	}

	addrs, err := localIPv4Addrs()
	if err != nil {
		return nil, err
	}
	out := make([]Port, 0, len(addrs))
	for _, a := range addrs {
		copy := p
		copy.IPAddr = a
		out = append(out, copy)
	}
	return out, nil
}

func localIPv4Addrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, ip4.String())
		}
	}
	return out, nil
}
