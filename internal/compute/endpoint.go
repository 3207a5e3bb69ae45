package compute

import (
	"fmt"
	"strings"

	"github.com/openwake/openwake/internal/config"
)

// Endpoint is the resolved reachable address for a target's instance.
// Recomputed on each unshelve attempt, never cached.
type Endpoint struct {
	Address         string
	Scheme          string
	Port            int // 0 means the scheme default
	LaunchPath      string
	HealthcheckPath string
	VerifyTLS       bool
}

// BaseURL returns scheme://host[:port], bracketing IPv6 literals and
// omitting the port when it equals the scheme's conventional default.
func (e Endpoint) BaseURL() string {
	host := formatHost(e.Address)
	defaultPort := 0
	switch e.Scheme {
	case "http":
		defaultPort = 80
	case "https":
		defaultPort = 443
	}
	if e.Port == 0 || e.Port == defaultPort {
		return fmt.Sprintf("%s://%s", e.Scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", e.Scheme, host, e.Port)
}

// LaunchURL returns the externally shareable URL for the target.
func (e Endpoint) LaunchURL() string {
	return e.BaseURL() + e.LaunchPath
}

// HealthcheckURL returns the URL probed for application readiness.
func (e Endpoint) HealthcheckURL() string {
	return e.BaseURL() + e.HealthcheckPath
}

// ResolveEndpoint picks the best address for the instance and combines it
// with the target's routing settings. Returns nil when no address resolves.
func ResolveEndpoint(inst *Instance, target config.Target) *Endpoint {
	addr := SelectAddress(inst, target.PreferredNetworks)
	if addr == "" {
		return nil
	}
	launch := target.LaunchPath
	if launch == "" {
		launch = "/"
	}
	health := target.HealthcheckPath
	if health == "" {
		health = "/"
	}
	return &Endpoint{
		Address:         addr,
		Scheme:          target.URLScheme,
		Port:            target.Port,
		LaunchPath:      launch,
		HealthcheckPath: health,
		VerifyTLS:       target.TLSVerified(),
	}
}

// SelectAddress applies the address-selection policy in strict priority order:
// preferred networks as listed, then floating addresses anywhere, then any
// IPv4, then any address at all, then the instance-level access IP fallbacks.
func SelectAddress(inst *Instance, preferredNetworks []string) string {
	for _, name := range preferredNetworks {
		candidates := inst.network(name)
		if addr := pickIPv4First(candidates); addr != "" {
			return addr
		}
	}
	for _, n := range inst.Networks {
		for _, a := range n.Addresses {
			if a.Type == "floating" && a.Addr != "" {
				return a.Addr
			}
		}
	}
	for _, n := range inst.Networks {
		for _, a := range n.Addresses {
			if a.Version == 4 && a.Addr != "" {
				return a.Addr
			}
		}
	}
	for _, n := range inst.Networks {
		for _, a := range n.Addresses {
			if a.Addr != "" {
				return a.Addr
			}
		}
	}
	if inst.AccessIPv4 != "" {
		return inst.AccessIPv4
	}
	return inst.AccessIPv6
}

// pickIPv4First returns an IPv4 address when one exists, else the first address.
func pickIPv4First(candidates []Address) string {
	for _, a := range candidates {
		if a.Version == 4 && a.Addr != "" {
			return a.Addr
		}
	}
	for _, a := range candidates {
		if a.Addr != "" {
			return a.Addr
		}
	}
	return ""
}

// formatHost wraps IPv6 literals in square brackets for URLs.
func formatHost(address string) string {
	if strings.Contains(address, ":") && !strings.HasPrefix(address, "[") {
		return "[" + address + "]"
	}
	return address
}
