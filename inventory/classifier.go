package inventory

import "strings"

// Classifier holds the keyword tables driving the proxy and websocket
// heuristics. The defaults cover the usual suspects; operators can extend
// every table through configuration without a rebuild. Matches are best-effort
// defaults, never guarantees.
type Classifier struct {
	// ProxyDenylist marks internal infrastructure (databases, caches, queues)
	// that should not be exposed through the reverse proxy. Case-insensitive
	// substring match against service name and image.
	ProxyDenylist []string
	// WebsocketAllowlist marks applications known to need protocol upgrade
	// support on their suggested rules.
	WebsocketAllowlist []string
	// PortOverrides selects a preferred proxy port for containers whose name
	// contains the key, for services that publish both a UI port and an
	// agent/peer port. The override only applies when the port is published.
	PortOverrides map[string]int
}

// DefaultClassifier returns the built-in keyword tables.
func DefaultClassifier() *Classifier {
	return &Classifier{
		ProxyDenylist: []string{
			"database", "db", "postgres", "mysql", "mariadb", "mongo",
			"redis", "cache", "rabbitmq", "kafka", "zookeeper",
			"elasticsearch", "logstash",
		},
		WebsocketAllowlist: []string{
			"plex", "portainer", "qbittorrent", "immich",
			"jellyfin", "home-assistant", "grafana", "netdata",
		},
		PortOverrides: map[string]int{
			// Portainer publishes 9000 (web UI) and 8000 (edge agent); the
			// proxy must target the UI.
			"portainer": 9000,
		},
	}
}

// Extend appends extra keywords to the deny and allow tables.
func (c *Classifier) Extend(denylist, allowlist []string) {
	c.ProxyDenylist = append(c.ProxyDenylist, denylist...)
	c.WebsocketAllowlist = append(c.WebsocketAllowlist, allowlist...)
}

// NeedsProxy reports whether a service should get a reverse proxy rule:
// true unless the service name or image matches the denylist.
func (c *Classifier) NeedsProxy(serviceName, image string) bool {
	return !matchesAny(c.ProxyDenylist, serviceName, image)
}

// NeedsWebsocket reports whether a suggested rule should carry upgrade
// headers.
func (c *Classifier) NeedsWebsocket(serviceName, image string) bool {
	return matchesAny(c.WebsocketAllowlist, serviceName, image)
}

// ProxyPort selects the port reconciliation matches on: the named override
// when published, else the lowest published port. Returns 0 when nothing is
// published.
func (c *Classifier) ProxyPort(containerName string, published []int) int {
	if len(published) == 0 {
		return 0
	}

	name := strings.ToLower(containerName)
	for keyword, preferred := range c.PortOverrides {
		if !strings.Contains(name, keyword) {
			continue
		}
		for _, port := range published {
			if port == preferred {
				return preferred
			}
		}
	}

	// published is sorted ascending, so this is the minimum.
	return published[0]
}

func matchesAny(keywords []string, serviceName, image string) bool {
	service := strings.ToLower(serviceName)
	img := strings.ToLower(image)
	for _, keyword := range keywords {
		if strings.Contains(service, keyword) || strings.Contains(img, keyword) {
			return true
		}
	}
	return false
}
