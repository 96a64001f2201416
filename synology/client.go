// Package synology implements the proxy-rule store collaborator: a client for
// the DSM AppPortal reverse proxy webapi. Raw records are normalized into
// types.ProxyRule at this boundary so the rest of the core only handles
// integer ports.
package synology

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/akibrhast/synosync/types"
)

const (
	reverseProxyAPI = "SYNO.Core.AppPortal.ReverseProxy"
	authAPI         = "SYNO.API.Auth"

	// Frontend protocol 1 is HTTPS, backend protocol 0 is HTTP.
	frontendProtocolHTTPS = 1
	backendProtocolHTTP   = 0

	proxyTimeoutSeconds = 60
)

// websocketHeaders are the two pass-through directives DSM needs to support
// protocol upgrade through the proxy.
var websocketHeaders = []headerDirective{
	{Name: "Upgrade", Value: "$http_upgrade"},
	{Name: "Connection", Value: "$connection_upgrade"},
}

// Client talks to the DSM webapi using a session cookie plus SYNO token.
type Client struct {
	baseURL    string
	username   string
	password   string
	synoToken  string
	httpClient *http.Client
}

// NewClient creates a DSM client. When insecure is true, TLS certificate
// verification is disabled to accommodate self-signed NAS certificates.
func NewClient(baseURL, username, password string, insecure bool) *Client {
	jar, _ := cookiejar.New(nil)

	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Jar:       jar,
			Transport: transport,
		},
	}
}

// Login establishes a DSM session and stores the SYNO token.
func (c *Client) Login(ctx context.Context) error {
	params := url.Values{
		"api":     {authAPI},
		"version": {"7"},
		"method":  {"login"},
		"account": {c.username},
		"passwd":  {c.password},
		"session": {"ReverseProxy"},
		"format":  {"cookie"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/webapi/auth.cgi?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach DSM: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if !envelope.Success {
		return &types.StoreError{Op: "login", Code: envelope.Error.Code}
	}

	var data struct {
		SynoToken string `json:"synotoken"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("failed to decode login data: %w", err)
	}

	c.synoToken = data.SynoToken
	log.Debug().Str("url", c.baseURL).Msg("Logged in to DSM")
	return nil
}

// List fetches all reverse proxy rules and normalizes them.
func (c *Client) List(ctx context.Context) ([]types.ProxyRule, error) {
	form := url.Values{
		"api":     {reverseProxyAPI},
		"version": {"1"},
		"method":  {"list"},
	}

	envelope, err := c.call(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	var data struct {
		Entries []ruleRecord `json:"entries"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode rule entries: %w", err)
	}

	rules := make([]types.ProxyRule, 0, len(data.Entries))
	for _, rec := range data.Entries {
		rules = append(rules, types.ProxyRule{
			ID:          rec.ID,
			UUID:        rec.UUID,
			Description: rec.Description,
			Frontend: types.Frontend{
				Domain:      rec.Frontend.FQDN,
				Port:        int(rec.Frontend.Port),
				HSTSEnabled: rec.Frontend.HTTPS.HSTS,
			},
			Backend: types.Backend{
				Host: rec.Backend.FQDN,
				Port: int(rec.Backend.Port),
			},
			HasCustomHeaders: len(rec.CustomizeHeaders) > 0,
		})
	}
	return rules, nil
}

// Create submits a new rule entry built from spec.
func (c *Client) Create(ctx context.Context, spec types.RuleSpec) error {
	entry := ruleEntry{
		Description:          spec.Description,
		ProxyConnectTimeout:  proxyTimeoutSeconds,
		ProxyReadTimeout:     proxyTimeoutSeconds,
		ProxySendTimeout:     proxyTimeoutSeconds,
		ProxyHTTPVersion:     1,
		ProxyInterceptErrors: false,
		Frontend: entryFrontend{
			FQDN:     spec.FrontendDomain,
			Port:     spec.FrontendPort,
			Protocol: frontendProtocolHTTPS,
			HTTPS:    entryHTTPS{HSTS: spec.HSTS},
		},
		Backend: entryBackend{
			FQDN:     spec.BackendHost,
			Port:     spec.BackendPort,
			Protocol: backendProtocolHTTP,
		},
		CustomizeHeaders: []headerDirective{},
	}
	if spec.Websocket {
		entry.CustomizeHeaders = websocketHeaders
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode rule entry: %w", err)
	}

	form := url.Values{
		"api":     {reverseProxyAPI},
		"version": {"1"},
		"method":  {"create"},
		"entry":   {string(payload)},
	}

	if _, err := c.call(ctx, form); err != nil {
		return err
	}
	return nil
}

// Delete removes rules by identifier. Numeric identifiers are submitted as
// row IDs, anything else as UUIDs; DSM exposes both delete variants.
func (c *Client) Delete(ctx context.Context, keys []string) error {
	numeric := make([]int, 0, len(keys))
	allNumeric := true
	for _, key := range keys {
		n, err := strconv.Atoi(key)
		if err != nil {
			allNumeric = false
			break
		}
		numeric = append(numeric, n)
	}

	form := url.Values{
		"api":     {reverseProxyAPI},
		"version": {"1"},
		"method":  {"delete"},
	}
	if allNumeric {
		payload, err := json.Marshal(numeric)
		if err != nil {
			return fmt.Errorf("failed to encode rule ids: %w", err)
		}
		form.Set("id", string(payload))
	} else {
		payload, err := json.Marshal(keys)
		if err != nil {
			return fmt.Errorf("failed to encode rule uuids: %w", err)
		}
		form.Set("uuids", string(payload))
	}

	if _, err := c.call(ctx, form); err != nil {
		return err
	}
	return nil
}

// call posts one webapi form request, logging in first if needed, and unwraps
// the response envelope. Store rejections surface as *types.StoreError.
func (c *Client) call(ctx context.Context, form url.Values) (*apiResponse, error) {
	if c.synoToken == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := c.baseURL + "/webapi/entry.cgi/" + reverseProxyAPI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-SYNO-TOKEN", c.synoToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return nil, &types.StoreError{Op: form.Get("method"), Code: envelope.Error.Code}
	}
	return &envelope, nil
}
