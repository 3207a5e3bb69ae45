// Package compute is the boundary to the OpenStack compute API. It exposes
// one attempt and one get-current-state operation per lifecycle verb; all
// polling and backoff logic lives in the action manager.
package compute

import "strings"

// Provider status values reported by Nova.
const (
	StatusActive           = "ACTIVE"
	StatusError            = "ERROR"
	StatusShelved          = "SHELVED"
	StatusShelvedOffloaded = "SHELVED_OFFLOADED"
	StatusUnknown          = "UNKNOWN"
)

// IsShelved reports whether a provider status means the instance is shelved.
func IsShelved(status string) bool {
	return status == StatusShelved || status == StatusShelvedOffloaded
}

// FormatStatus renders a raw provider status for humans ("SHELVED_OFFLOADED"
// becomes "Shelved Offloaded").
func FormatStatus(status string) string {
	if status == "" {
		status = StatusUnknown
	}
	words := strings.Fields(strings.ReplaceAll(status, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	if len(words) == 0 {
		return "Unknown"
	}
	return strings.Join(words, " ")
}

// Address is one port address attached to an instance network.
type Address struct {
	Addr    string
	Version int    // 4 or 6
	Type    string // "fixed" or "floating"
}

// Network is a named network with its addresses, in provider order.
type Network struct {
	Name      string
	Addresses []Address
}

// Instance is a provider-neutral view of a compute instance.
type Instance struct {
	ID         string
	Name       string
	Status     string
	Networks   []Network
	AccessIPv4 string
	AccessIPv6 string
}

func (i *Instance) network(name string) []Address {
	for _, n := range i.Networks {
		if n.Name == name {
			return n.Addresses
		}
	}
	return nil
}
