package compute

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/shelveunshelve"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"

	"github.com/openwake/openwake/internal/config"
)

// Gateway issues lifecycle operations against the cloud provider.
type Gateway interface {
	// FindByName returns the instance with the given name, or nil when absent.
	FindByName(ctx context.Context, name string) (*Instance, error)
	// Get returns the instance with the given id, failing when absent.
	Get(ctx context.Context, id string) (*Instance, error)
	// Unshelve requests the provider release the instance from its shelf.
	Unshelve(ctx context.Context, id string) error
	// Shelve requests the provider shelve the instance.
	Shelve(ctx context.Context, id string) error
}

// NovaGateway implements Gateway against OpenStack Nova via gophercloud.
// gophercloud v1 does not thread a context through individual calls, so the
// provider client carries a request timeout and ctx is checked before each
// call; the provider's own retry semantics stay opaque behind this boundary.
type NovaGateway struct {
	client *gophercloud.ServiceClient
}

// NewNovaGateway authenticates against keystone and returns a Nova gateway.
func NewNovaGateway(cfg config.OpenStack) (*NovaGateway, error) {
	provider, err := NewProviderClient(cfg)
	if err != nil {
		return nil, err
	}
	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{Region: cfg.Region})
	if err != nil {
		return nil, fmt.Errorf("nova: compute endpoint: %w", err)
	}
	return &NovaGateway{client: client}, nil
}

// NewProviderClient authenticates with either the username/password/project
// triple or the application-credential pair, whichever the config carries.
func NewProviderClient(cfg config.OpenStack) (*gophercloud.ProviderClient, error) {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		AllowReauth:      true,
	}
	if cfg.HasApplicationCredentials() {
		opts.ApplicationCredentialID = cfg.ApplicationCredentialID
		opts.ApplicationCredentialSecret = cfg.ApplicationCredentialSecret
	} else {
		opts.Username = cfg.Username
		opts.Password = cfg.Password
		opts.DomainName = cfg.UserDomainName
		if cfg.ProjectDomainName != "" {
			opts.Scope = &gophercloud.AuthScope{
				ProjectName: cfg.ProjectName,
				DomainName:  cfg.ProjectDomainName,
			}
		} else {
			opts.TenantName = cfg.ProjectName
		}
	}

	provider, err := openstack.NewClient(cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("nova: provider client: %w", err)
	}
	provider.HTTPClient = http.Client{Timeout: 60 * time.Second}

	if err := openstack.Authenticate(provider, opts); err != nil {
		return nil, fmt.Errorf("nova: authenticate: %w", err)
	}
	return provider, nil
}

func (g *NovaGateway) FindByName(ctx context.Context, name string) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := servers.List(g.client, servers.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("nova: list servers named %q: %w", name, err)
	}
	found, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, fmt.Errorf("nova: extract servers: %w", err)
	}
	// The name filter is a regex match server-side; insist on an exact match.
	for i := range found {
		if found[i].Name == name {
			return fromServer(&found[i]), nil
		}
	}
	return nil, nil
}

func (g *NovaGateway) Get(ctx context.Context, id string) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	srv, err := servers.Get(g.client, id).Extract()
	if err != nil {
		return nil, fmt.Errorf("nova: get server %s: %w", id, err)
	}
	return fromServer(srv), nil
}

func (g *NovaGateway) Unshelve(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := shelveunshelve.Unshelve(g.client, id, shelveunshelve.UnshelveOpts{}).ExtractErr(); err != nil {
		return fmt.Errorf("nova: unshelve server %s: %w", id, err)
	}
	return nil
}

func (g *NovaGateway) Shelve(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := shelveunshelve.Shelve(g.client, id).ExtractErr(); err != nil {
		return fmt.Errorf("nova: shelve server %s: %w", id, err)
	}
	return nil
}

// fromServer converts a Nova server into the provider-neutral Instance.
// Network names are sorted so the fallback address passes are deterministic.
func fromServer(s *servers.Server) *Instance {
	inst := &Instance{
		ID:         s.ID,
		Name:       s.Name,
		Status:     strings.ToUpper(s.Status),
		AccessIPv4: s.AccessIPv4,
		AccessIPv6: s.AccessIPv6,
	}
	if inst.Status == "" {
		inst.Status = StatusUnknown
	}

	names := make([]string, 0, len(s.Addresses))
	for name := range s.Addresses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entries, ok := s.Addresses[name].([]interface{})
		if !ok {
			continue
		}
		network := Network{Name: name}
		for _, raw := range entries {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			addr, _ := entry["addr"].(string)
			if addr == "" {
				continue
			}
			version := 0
			if v, ok := entry["version"].(float64); ok {
				version = int(v)
			}
			addrType, _ := entry["OS-EXT-IPS:type"].(string)
			network.Addresses = append(network.Addresses, Address{
				Addr:    addr,
				Version: version,
				Type:    addrType,
			})
		}
		inst.Networks = append(inst.Networks, network)
	}
	return inst
}
