// Package proxy owns the reverse proxy rule cache and the mutation gateway in
// front of the rule store: cached reads, existence and conflict queries, and
// validated create/delete calls that invalidate the cache on success.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/akibrhast/synosync/ports"
	"github.com/akibrhast/synosync/types"
)

// DefaultFrontendPort is used when a rule spec does not name a frontend port.
const DefaultFrontendPort = 443

// Store is the proxy-rule store collaborator.
type Store interface {
	List(ctx context.Context) ([]types.ProxyRule, error)
	Create(ctx context.Context, spec types.RuleSpec) error
	Delete(ctx context.Context, keys []string) error
}

// Manager owns the rule cache. Reads are served from cache unless a refresh
// is forced; any successful mutation invalidates the cache. Safe for
// concurrent callers.
type Manager struct {
	store Store

	mu      sync.Mutex
	cache   []types.ProxyRule
	cached  bool
	lastErr error
}

// NewManager creates a manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// ListRules returns the current rule set. With forceRefresh false a cached
// result is returned unchanged. On a fetch failure the previous cache (or an
// empty set) is returned alongside the error so callers can surface the
// staleness without losing data.
func (m *Manager) ListRules(ctx context.Context, forceRefresh bool) ([]types.ProxyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached && !forceRefresh {
		return copyRules(m.cache), nil
	}

	rules, err := m.store.List(ctx)
	if err != nil {
		m.lastErr = err
		log.Warn().Err(err).Msg("Failed to fetch proxy rules, serving last known set")
		return copyRules(m.cache), fmt.Errorf("failed to refresh rules: %w", err)
	}

	m.cache = rules
	m.cached = true
	m.lastErr = nil
	return copyRules(rules), nil
}

// Invalidate clears the cache so the next ListRules call fetches fresh data.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cache = nil
	m.cached = false
	m.mu.Unlock()
}

// LastError returns the most recent fetch failure, nil after a successful
// fetch.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// DescriptionExists reports whether a rule already carries this exact
// description. Advisory only.
func (m *Manager) DescriptionExists(ctx context.Context, description string) bool {
	rules, _ := m.ListRules(ctx, false)
	for _, rule := range rules {
		if rule.Description == description {
			return true
		}
	}
	return false
}

// DomainPortExists reports whether a rule already claims this frontend
// domain and port pair. This is the authoritative collision check for rule
// creation; a domain may appear on multiple rules as long as each uses a
// distinct frontend port.
func (m *Manager) DomainPortExists(ctx context.Context, domain string, port int) bool {
	rules, _ := m.ListRules(ctx, false)
	for _, rule := range rules {
		if rule.Frontend.Domain == domain && rule.Frontend.Port == port {
			return true
		}
	}
	return false
}

// BackendPortConflicts lists rules already forwarding to a backend port.
// Advisory only, never blocks creation.
func (m *Manager) BackendPortConflicts(ctx context.Context, port int) []types.BackendConflict {
	rules, _ := m.ListRules(ctx, false)
	var conflicts []types.BackendConflict
	for _, rule := range rules {
		if rule.Backend.Port == port {
			conflicts = append(conflicts, types.BackendConflict{
				Description: rule.Description,
				Domain:      rule.Frontend.Domain,
				Host:        rule.Backend.Host,
				Port:        port,
			})
		}
	}
	return conflicts
}

// UsedBackendPorts returns the distinct backend ports across all rules,
// ascending.
func (m *Manager) UsedBackendPorts(ctx context.Context) []int {
	rules, _ := m.ListRules(ctx, false)
	seen := make(map[int]bool)
	var used []int
	for _, rule := range rules {
		port := rule.Backend.Port
		if port == 0 || seen[port] {
			continue
		}
		seen[port] = true
		used = append(used, port)
	}
	sort.Ints(used)
	return used
}

// ConflictingBackendPorts maps each backend port shared by two or more rules
// to the descriptions of those rules.
func (m *Manager) ConflictingBackendPorts(ctx context.Context) map[int][]string {
	rules, _ := m.ListRules(ctx, false)
	return ports.FindConflicts(rules,
		func(r types.ProxyRule) int { return r.Backend.Port },
		func(r types.ProxyRule) string { return r.Description },
	)
}

// SuggestNextPort returns the first backend port at or above the default
// start that no rule uses.
func (m *Manager) SuggestNextPort(ctx context.Context) int {
	return ports.SuggestNextPort(ports.UsedSet(m.UsedBackendPorts(ctx)), ports.DefaultStart)
}

// CreateRule validates spec and submits it to the store. A frontend
// domain/port collision is a hard block, re-checked against a fresh rule set
// because rules can change between the caller's check and the submit.
// Description and backend port collisions are logged but never block. The
// cache is invalidated on success.
func (m *Manager) CreateRule(ctx context.Context, spec types.RuleSpec) error {
	if spec.FrontendPort == 0 {
		spec.FrontendPort = DefaultFrontendPort
	}

	if spec.Description == "" {
		return fmt.Errorf("description must not be empty")
	}
	if spec.FrontendDomain == "" {
		return fmt.Errorf("frontend domain must not be empty")
	}
	if spec.BackendHost == "" {
		return fmt.Errorf("backend host must not be empty")
	}
	if spec.BackendPort < 1 || spec.BackendPort > ports.MaxPort {
		return fmt.Errorf("backend port %d is out of range", spec.BackendPort)
	}
	if spec.FrontendPort < 1 || spec.FrontendPort > ports.MaxPort {
		return fmt.Errorf("frontend port %d is out of range", spec.FrontendPort)
	}

	if _, err := m.ListRules(ctx, true); err != nil {
		return fmt.Errorf("cannot verify frontend availability: %w", err)
	}
	if m.DomainPortExists(ctx, spec.FrontendDomain, spec.FrontendPort) {
		return fmt.Errorf("a rule for %s:%d already exists", spec.FrontendDomain, spec.FrontendPort)
	}

	if m.DescriptionExists(ctx, spec.Description) {
		log.Warn().Str("description", spec.Description).Msg("Rule description already in use")
	}
	if conflicts := m.BackendPortConflicts(ctx, spec.BackendPort); len(conflicts) > 0 {
		log.Warn().
			Int("backend_port", spec.BackendPort).
			Int("rules", len(conflicts)).
			Msg("Backend port already used by other rules")
	}

	if err := m.store.Create(ctx, spec); err != nil {
		return classifyStoreError("create", err)
	}

	m.Invalidate()
	log.Info().
		Str("description", spec.Description).
		Str("frontend", fmt.Sprintf("%s:%d", spec.FrontendDomain, spec.FrontendPort)).
		Str("backend", fmt.Sprintf("%s:%d", spec.BackendHost, spec.BackendPort)).
		Bool("websocket", spec.Websocket).
		Msg("Created reverse proxy rule")
	return nil
}

// DeleteRules removes rules by identifier. An empty identifier list is
// rejected before any store interaction. The cache is invalidated on success
// and a count-aware message is returned.
func (m *Manager) DeleteRules(ctx context.Context, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("no rule identifiers provided")
	}

	if err := m.store.Delete(ctx, keys); err != nil {
		return "", classifyStoreError("delete", err)
	}

	m.Invalidate()
	log.Info().Int("count", len(keys)).Msg("Deleted reverse proxy rules")

	plural := ""
	if len(keys) > 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d rule%s deleted", len(keys), plural), nil
}

// classifyStoreError maps known provider error codes to actionable reasons;
// unknown codes pass through with the raw code attached.
func classifyStoreError(op string, err error) error {
	var storeErr *types.StoreError
	if !errors.As(err, &storeErr) {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	switch storeErr.Code {
	case types.StoreCodeDomainRejected:
		return fmt.Errorf("domain invalid, already claimed, or outside account scope: %w", err)
	case types.StoreCodeBadParameter:
		return fmt.Errorf("invalid parameter format: %w", err)
	default:
		return fmt.Errorf("%s failed with provider error code %d: %w", op, storeErr.Code, err)
	}
}

func copyRules(rules []types.ProxyRule) []types.ProxyRule {
	out := make([]types.ProxyRule, len(rules))
	copy(out, rules)
	return out
}
