// Package dns maintains the controller's own DNS record in OpenStack
// Designate so the control page stays reachable after redeploys.
package dns

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/dns/v2/recordsets"
	"github.com/gophercloud/gophercloud/openstack/dns/v2/zones"
)

// Outcome reports what EnsureRecord did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// DesignateGateway wraps the Designate v2 API. Like the Nova gateway it
// carries the provider client's request timeout instead of per-call contexts.
type DesignateGateway struct {
	client *gophercloud.ServiceClient
}

// NewDesignateGateway returns a DNS gateway on an authenticated provider.
func NewDesignateGateway(provider *gophercloud.ProviderClient, region string) (*DesignateGateway, error) {
	client, err := openstack.NewDNSV2(provider, gophercloud.EndpointOpts{Region: region})
	if err != nil {
		return nil, fmt.Errorf("designate: dns endpoint: %w", err)
	}
	return &DesignateGateway{client: client}, nil
}

// EnsureRecord makes sure hostname resolves to address with the given TTL,
// creating or updating the recordset in the longest-suffix matching zone.
func (g *DesignateGateway) EnsureRecord(ctx context.Context, hostname, address string, ttl int) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fqdn := hostname
	if !strings.HasSuffix(fqdn, ".") {
		fqdn += "."
	}
	recordType := "A"
	if strings.Contains(address, ":") {
		recordType = "AAAA"
	}

	pages, err := zones.List(g.client, zones.ListOpts{}).AllPages()
	if err != nil {
		return "", fmt.Errorf("designate: list zones: %w", err)
	}
	allZones, err := zones.ExtractZones(pages)
	if err != nil {
		return "", fmt.Errorf("designate: extract zones: %w", err)
	}

	zoneNames := make([]string, 0, len(allZones))
	zoneIDs := make(map[string]string, len(allZones))
	for _, z := range allZones {
		zoneNames = append(zoneNames, z.Name)
		zoneIDs[z.Name] = z.ID
	}
	zoneName := MatchZone(fqdn, zoneNames)
	if zoneName == "" {
		return "", fmt.Errorf("designate: no zone matches %s", fqdn)
	}
	zoneID := zoneIDs[zoneName]

	if err := ctx.Err(); err != nil {
		return "", err
	}
	rsPages, err := recordsets.ListByZone(g.client, zoneID, recordsets.ListOpts{
		Name: fqdn,
		Type: recordType,
	}).AllPages()
	if err != nil {
		return "", fmt.Errorf("designate: list recordsets in %s: %w", zoneName, err)
	}
	existing, err := recordsets.ExtractRecordSets(rsPages)
	if err != nil {
		return "", fmt.Errorf("designate: extract recordsets: %w", err)
	}

	for _, rs := range existing {
		if rs.Name != fqdn {
			continue
		}
		if rs.TTL == ttl && len(rs.Records) == 1 && rs.Records[0] == address {
			return OutcomeUnchanged, nil
		}
		_, err := recordsets.Update(g.client, zoneID, rs.ID, recordsets.UpdateOpts{
			TTL:     &ttl,
			Records: []string{address},
		}).Extract()
		if err != nil {
			return "", fmt.Errorf("designate: update %s: %w", fqdn, err)
		}
		return OutcomeUpdated, nil
	}

	_, err = recordsets.Create(g.client, zoneID, recordsets.CreateOpts{
		Name:    fqdn,
		Type:    recordType,
		TTL:     ttl,
		Records: []string{address},
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("designate: create %s: %w", fqdn, err)
	}
	return OutcomeCreated, nil
}

// MatchZone returns the longest zone name that is a suffix of fqdn, or ""
// when no zone matches. Both fqdn and zone names are absolute (dot-suffixed).
func MatchZone(fqdn string, zoneNames []string) string {
	candidates := make([]string, 0, len(zoneNames))
	for _, name := range zoneNames {
		if fqdn == name || strings.HasSuffix(fqdn, "."+name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	return candidates[0]
}
