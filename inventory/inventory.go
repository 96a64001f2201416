// Package inventory materializes Service entities from the container
// inventory source and computes per-snapshot metadata: proxy port selection,
// proxy need, port conflicts, and statistics.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akibrhast/synosync/portainer"
	"github.com/akibrhast/synosync/ports"
	"github.com/akibrhast/synosync/types"
)

// Compose labels carrying stack and service association.
const (
	labelComposeProject = "com.docker.compose.project"
	labelComposeService = "com.docker.compose.service"

	// StandaloneStack groups containers with no compose project label.
	StandaloneStack = "standalone"
)

// Source is the container inventory collaborator.
type Source interface {
	Endpoints(ctx context.Context) ([]portainer.Endpoint, error)
	Stacks(ctx context.Context, endpointID int) ([]portainer.Stack, error)
	Containers(ctx context.Context, endpointID int) ([]container.Summary, error)
}

// Inventory owns the current Service snapshot. A scan replaces the snapshot
// atomically; a failed scan leaves the previous one untouched. Safe for
// concurrent callers.
type Inventory struct {
	source     Source
	classifier *Classifier

	mu         sync.Mutex
	services   []types.Service
	snapshotID uuid.UUID
	scannedAt  time.Time
}

// New creates an inventory over source. A nil classifier falls back to the
// default keyword tables.
func New(source Source, classifier *Classifier) *Inventory {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Inventory{source: source, classifier: classifier}
}

// Scan rebuilds the full Service set from the source. On any collaborator
// error the previous snapshot is retained unchanged.
func (inv *Inventory) Scan(ctx context.Context) error {
	endpoints, err := inv.source.Endpoints(ctx)
	if err != nil {
		return fmt.Errorf("inventory scan failed: %w", err)
	}

	var services []types.Service
	for _, endpoint := range endpoints {
		stacks, err := inv.source.Stacks(ctx, endpoint.ID)
		if err != nil {
			return fmt.Errorf("inventory scan failed on endpoint %q: %w", endpoint.Name, err)
		}

		containers, err := inv.source.Containers(ctx, endpoint.ID)
		if err != nil {
			return fmt.Errorf("inventory scan failed on endpoint %q: %w", endpoint.Name, err)
		}

		log.Debug().
			Str("endpoint", endpoint.Name).
			Int("stacks", len(stacks)).
			Int("containers", len(containers)).
			Msg("Scanned endpoint")

		for _, c := range containers {
			svc, ok := inv.normalize(endpoint.Name, c)
			if !ok {
				continue
			}
			services = append(services, svc)
		}
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].Identity < services[j].Identity
	})

	snapshotID := uuid.New()

	inv.mu.Lock()
	inv.services = services
	inv.snapshotID = snapshotID
	inv.scannedAt = time.Now()
	inv.mu.Unlock()

	log.Info().
		Str("snapshot", snapshotID.String()).
		Int("services", len(services)).
		Msg("Inventory scan completed")
	return nil
}

// normalize turns one raw container record into a Service. Containers without
// a name cannot be identified and are skipped.
func (inv *Inventory) normalize(endpoint string, c container.Summary) (types.Service, bool) {
	if len(c.Names) == 0 {
		return types.Service{}, false
	}

	identity := strings.TrimPrefix(c.Names[0], "/")

	serviceName := c.Labels[labelComposeService]
	if serviceName == "" {
		serviceName = identity
	}

	stackName := c.Labels[labelComposeProject]
	if stackName == "" {
		stackName = StandaloneStack
	}

	published := publishedPorts(c.Ports)

	return types.Service{
		Identity:    identity,
		ServiceName: serviceName,
		StackName:   stackName,
		Image:       c.Image,
		State:       c.State,
		Endpoint:    endpoint,
		Ports:       published,
		ProxyPort:   inv.classifier.ProxyPort(identity, published),
		NeedsProxy:  inv.classifier.NeedsProxy(serviceName, c.Image),
		Labels:      c.Labels,
	}, true
}

// publishedPorts collects the distinct public ports ascending, skipping
// mappings with no published port.
func publishedPorts(mappings []container.Port) []int {
	seen := make(map[int]bool)
	var result []int
	for _, m := range mappings {
		port := int(m.PublicPort)
		if port == 0 || seen[port] {
			continue
		}
		seen[port] = true
		result = append(result, port)
	}
	sort.Ints(result)
	return result
}

// Services returns the current snapshot.
func (inv *Inventory) Services() []types.Service {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]types.Service, len(inv.services))
	copy(out, inv.services)
	return out
}

// Statistics summarizes the current snapshot. Proxy need counts running
// services only.
func (inv *Inventory) Statistics() types.Statistics {
	services := inv.Services()

	stats := types.Statistics{Total: len(services)}
	for i := range services {
		svc := &services[i]
		if svc.Running() {
			stats.Running++
		}
		if svc.HasProxyPort() {
			stats.WithPorts++
		}
		if svc.NeedsProxy && svc.Running() {
			stats.NeedingProxy++
		}
	}
	stats.PortConflicts = len(inv.PortConflicts())
	return stats
}

// PortConflicts maps each contested proxy port to the identities sharing it.
// Services without a proxy port never conflict.
func (inv *Inventory) PortConflicts() map[int][]string {
	return ports.FindConflicts(inv.Services(),
		func(s types.Service) int { return s.ProxyPort },
		func(s types.Service) string { return s.Identity },
	)
}

// Suggestions pre-fills a rule proposal for every running, proxy-needing
// service with a published port.
func (inv *Inventory) Suggestions(domainSuffix string) []types.Suggestion {
	var suggestions []types.Suggestion
	for _, svc := range inv.Services() {
		if !svc.NeedsProxy || !svc.Running() || !svc.HasProxyPort() {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			Service:         svc.ServiceName,
			Port:            svc.ProxyPort,
			Stack:           svc.StackName,
			SuggestedDomain: svc.ServiceName + "." + domainSuffix,
			Websocket:       inv.classifier.NeedsWebsocket(svc.ServiceName, svc.Image),
			HSTS:            true,
		})
	}
	return suggestions
}

// NeedsWebsocket reports whether the named service matches the websocket
// allowlist, considering its image when the service is in the current
// snapshot.
func (inv *Inventory) NeedsWebsocket(serviceName string) bool {
	for _, svc := range inv.Services() {
		if svc.ServiceName == serviceName {
			return inv.classifier.NeedsWebsocket(svc.ServiceName, svc.Image)
		}
	}
	return inv.classifier.NeedsWebsocket(serviceName, "")
}

// SuggestNextPort returns the first free port at or above start, considering
// the proxy ports of the current snapshot.
func (inv *Inventory) SuggestNextPort(start int) int {
	used := make(map[int]bool)
	for _, svc := range inv.Services() {
		if svc.HasProxyPort() {
			used[svc.ProxyPort] = true
		}
	}
	return ports.SuggestNextPort(used, start)
}

// LastScan reports when and under which snapshot ID the inventory was last
// rebuilt. The zero time means no successful scan has happened yet.
func (inv *Inventory) LastScan() (uuid.UUID, time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.snapshotID, inv.scannedAt
}
