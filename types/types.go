package types

// Service represents one container known to the inventory, normalized from the
// raw Portainer/Docker record. A snapshot holds one Service per container name.
type Service struct {
	// Identity is the container name with the leading slash stripped. Unique
	// within one inventory snapshot.
	Identity string `json:"identity"`
	// ServiceName is the compose service label when present, else Identity.
	ServiceName string `json:"service_name"`
	// StackName is the compose project label when present, else "standalone".
	StackName string `json:"stack_name"`
	Image     string `json:"image"`
	State     string `json:"state"`
	Endpoint  string `json:"endpoint,omitempty"`
	// Ports holds all distinct published ports, ascending. Empty if none.
	Ports []int `json:"ports"`
	// ProxyPort is the single port reconciliation matches on, 0 if Ports is
	// empty. Always a member of Ports otherwise.
	ProxyPort int `json:"proxy_port,omitempty"`
	// NeedsProxy is a heuristic default, overridable by the operator.
	NeedsProxy bool              `json:"needs_proxy"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Running reports whether the container is in the running state.
func (s *Service) Running() bool {
	return s.State == "running"
}

// HasProxyPort reports whether a reconciliation port was selected.
func (s *Service) HasProxyPort() bool {
	return s.ProxyPort != 0
}

// Frontend is the public side of a reverse proxy rule.
type Frontend struct {
	Domain      string `json:"domain"`
	Port        int    `json:"port"`
	HSTSEnabled bool   `json:"hsts_enabled"`
}

// Backend is the internal side of a reverse proxy rule.
type Backend struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProxyRule represents one reverse proxy entry, normalized from the raw store
// record. At least one of ID / UUID is set; the UUID is preferred as the key
// for delete operations when present.
type ProxyRule struct {
	ID          int      `json:"id"`
	UUID        string   `json:"uuid,omitempty"`
	Description string   `json:"description"`
	Frontend    Frontend `json:"frontend"`
	Backend     Backend  `json:"backend"`
	// HasCustomHeaders signals websocket capability (upgrade headers present).
	HasCustomHeaders bool `json:"has_custom_headers"`
}

// RuleSpec describes a reverse proxy rule to be created.
type RuleSpec struct {
	Description    string `json:"description"`
	FrontendDomain string `json:"frontend_domain"`
	FrontendPort   int    `json:"frontend_port"`
	BackendHost    string `json:"backend_host"`
	BackendPort    int    `json:"backend_port"`
	HSTS           bool   `json:"hsts"`
	Websocket      bool   `json:"websocket"`
}

// BackendConflict is an existing rule that already forwards to a backend
// port. Advisory only: shared backend ports are legal during migrations.
type BackendConflict struct {
	Description string `json:"description"`
	Domain      string `json:"domain"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
}

// Suggestion is a pre-filled rule proposal for a proxy-needing service.
type Suggestion struct {
	Service         string `json:"service"`
	Port            int    `json:"port"`
	Stack           string `json:"stack"`
	SuggestedDomain string `json:"suggested_domain"`
	Websocket       bool   `json:"websocket"`
	HSTS            bool   `json:"hsts"`
}

// Statistics summarizes one inventory snapshot.
type Statistics struct {
	Total         int `json:"total"`
	Running       int `json:"running"`
	WithPorts     int `json:"with_ports"`
	NeedingProxy  int `json:"needing_proxy"`
	PortConflicts int `json:"port_conflicts"`
}

// SyncedService is a service whose proxy port matched an existing rule.
type SyncedService struct {
	Service string `json:"service"`
	Port    int    `json:"port"`
	Domain  string `json:"domain"`
}

// MissingProxy is a proxy-needing service with no matching rule.
type MissingProxy struct {
	Service         string `json:"service"`
	Port            int    `json:"port"`
	Stack           string `json:"stack"`
	SuggestedDomain string `json:"suggested_domain"`
}

// OrphanedRule is a rule whose backend port matches no proxy-needing service.
type OrphanedRule struct {
	ID          int    `json:"id"`
	UUID        string `json:"uuid,omitempty"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	Port        int    `json:"port"`
}

// SyncReport classifies every proxy-needing service and every rule.
// Recomputed on each reconciliation pass, never persisted.
type SyncReport struct {
	InSync          []SyncedService `json:"in_sync"`
	MissingProxies  []MissingProxy  `json:"missing_proxies"`
	OrphanedProxies []OrphanedRule  `json:"orphaned_proxies"`
}

// ApplyResult summarizes an auto-create pass over a report's missing entries.
type ApplyResult struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
