// Package reconciler diffs the service inventory against the reverse proxy
// rule set and classifies every proxy-needing service and every rule as
// in-sync, missing, or orphaned.
package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/akibrhast/synosync/inventory"
	"github.com/akibrhast/synosync/proxy"
	"github.com/akibrhast/synosync/types"
)

// Reconciler wires the inventory and the rule manager together and carries
// the rule defaults used when creating missing proxies.
type Reconciler struct {
	inventory    *inventory.Inventory
	rules        *proxy.Manager
	domainSuffix string
	backendHost  string
}

// New creates a reconciler. domainSuffix forms suggested domains
// (service.suffix); backendHost is the forwarding target for auto-created
// rules.
func New(inv *inventory.Inventory, rules *proxy.Manager, domainSuffix, backendHost string) *Reconciler {
	return &Reconciler{
		inventory:    inv,
		rules:        rules,
		domainSuffix: domainSuffix,
		backendHost:  backendHost,
	}
}

// Report diffs the current inventory snapshot against a force-refreshed rule
// set. If the refresh fails the diff still runs against the last known rules
// and the error is returned alongside the report so the caller can surface
// the staleness.
func (r *Reconciler) Report(ctx context.Context) (types.SyncReport, error) {
	rules, err := r.rules.ListRules(ctx, true)
	report := BuildReport(r.inventory.Services(), rules, r.domainSuffix)
	if err != nil {
		return report, fmt.Errorf("sync report built from stale rules: %w", err)
	}
	return report, nil
}

// BuildReport classifies services against rules. Every proxy-needing service
// with a port lands in exactly one of in-sync or missing; every rule that
// declares a backend port lands in exactly one of matched or orphaned.
// Deterministic for fixed inputs: services and rules keep their input order.
func BuildReport(services []types.Service, rules []types.ProxyRule, domainSuffix string) types.SyncReport {
	// Last writer wins on duplicate backend ports; duplicates are surfaced by
	// the conflict checks, not resolved here.
	byBackendPort := make(map[int]types.ProxyRule)
	for _, rule := range rules {
		if rule.Backend.Port != 0 {
			byBackendPort[rule.Backend.Port] = rule
		}
	}

	report := types.SyncReport{
		InSync:          []types.SyncedService{},
		MissingProxies:  []types.MissingProxy{},
		OrphanedProxies: []types.OrphanedRule{},
	}

	// Ports claimed by proxy-needing services. Rules outside this set are
	// orphaned even if some non-proxy service publishes their port.
	neededPorts := make(map[int]bool)

	for _, svc := range services {
		if !svc.NeedsProxy || !svc.HasProxyPort() {
			continue
		}
		neededPorts[svc.ProxyPort] = true

		if rule, ok := byBackendPort[svc.ProxyPort]; ok {
			report.InSync = append(report.InSync, types.SyncedService{
				Service: svc.ServiceName,
				Port:    svc.ProxyPort,
				Domain:  rule.Frontend.Domain,
			})
		} else {
			report.MissingProxies = append(report.MissingProxies, types.MissingProxy{
				Service:         svc.ServiceName,
				Port:            svc.ProxyPort,
				Stack:           svc.StackName,
				SuggestedDomain: svc.ServiceName + "." + domainSuffix,
			})
		}
	}

	for _, rule := range rules {
		if rule.Backend.Port == 0 || neededPorts[rule.Backend.Port] {
			continue
		}
		report.OrphanedProxies = append(report.OrphanedProxies, types.OrphanedRule{
			ID:          rule.ID,
			UUID:        rule.UUID,
			Description: rule.Description,
			Domain:      rule.Frontend.Domain,
			Port:        rule.Backend.Port,
		})
	}

	return report
}

// ApplyMissing creates one rule per missing entry of report, continuing past
// individual failures. Each rule forwards the suggested domain to the
// configured backend host with HSTS on.
func (r *Reconciler) ApplyMissing(ctx context.Context, report types.SyncReport) types.ApplyResult {
	var result types.ApplyResult
	for _, missing := range report.MissingProxies {
		spec := types.RuleSpec{
			Description:    missing.Service,
			FrontendDomain: missing.SuggestedDomain,
			FrontendPort:   proxy.DefaultFrontendPort,
			BackendHost:    r.backendHost,
			BackendPort:    missing.Port,
			HSTS:           true,
			Websocket:      r.inventory.NeedsWebsocket(missing.Service),
		}

		if err := r.rules.CreateRule(ctx, spec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", missing.Service, err))
			log.Error().Err(err).Str("service", missing.Service).Msg("Failed to create missing proxy rule")
			continue
		}
		result.Created++
		log.Info().
			Str("service", missing.Service).
			Str("domain", missing.SuggestedDomain).
			Int("backend_port", missing.Port).
			Msg("Created missing proxy rule")
	}
	return result
}
