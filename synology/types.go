package synology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// flexPort decodes a port that the DSM API serializes as either a JSON number
// or a string. Unparsable or absent values decode to 0 so the rest of the core
// only ever sees integer ports.
type flexPort int

func (p *flexPort) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*p = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*p = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("port %q is not numeric: %w", s, err)
		}
		*p = flexPort(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = flexPort(n)
	return nil
}

// ruleRecord is the raw reverse proxy entry as returned by the DSM API.
type ruleRecord struct {
	ID          int    `json:"id"`
	UUID        string `json:"uuid"`
	Description string `json:"description"`
	Frontend    struct {
		FQDN  string   `json:"fqdn"`
		Port  flexPort `json:"port"`
		HTTPS struct {
			HSTS bool `json:"hsts"`
		} `json:"https"`
	} `json:"frontend"`
	Backend struct {
		FQDN string   `json:"fqdn"`
		Port flexPort `json:"port"`
	} `json:"backend"`
	CustomizeHeaders []headerDirective `json:"customize_headers"`
}

type headerDirective struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ruleEntry is the create payload. Field order and defaults mirror what the
// DSM UI submits; deviating from them makes the API reject the entry.
type ruleEntry struct {
	Description          string            `json:"description"`
	ProxyConnectTimeout  int               `json:"proxy_connect_timeout"`
	ProxyReadTimeout     int               `json:"proxy_read_timeout"`
	ProxySendTimeout     int               `json:"proxy_send_timeout"`
	ProxyHTTPVersion     int               `json:"proxy_http_version"`
	ProxyInterceptErrors bool              `json:"proxy_intercept_errors"`
	Frontend             entryFrontend     `json:"frontend"`
	Backend              entryBackend      `json:"backend"`
	CustomizeHeaders     []headerDirective `json:"customize_headers"`
}

type entryFrontend struct {
	ACL      *string    `json:"acl"`
	FQDN     string     `json:"fqdn"`
	Port     int        `json:"port"`
	Protocol int        `json:"protocol"`
	HTTPS    entryHTTPS `json:"https"`
}

type entryHTTPS struct {
	HSTS bool `json:"hsts"`
}

type entryBackend struct {
	FQDN     string `json:"fqdn"`
	Port     int    `json:"port"`
	Protocol int    `json:"protocol"`
}

// apiResponse is the common DSM webapi envelope.
type apiResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code int `json:"code"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}
