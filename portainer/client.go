// Package portainer implements the inventory source collaborator: a minimal
// client for the Portainer REST API. Container listings are served by
// Portainer's Docker Engine API proxy, so responses decode straight into the
// Docker SDK types.
package portainer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog/log"
)

// Endpoint is a Docker environment registered in Portainer.
type Endpoint struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

// Stack is a compose stack registered in Portainer. Used for enumeration only;
// container labels are the source of truth for stack association.
type Stack struct {
	ID         int    `json:"Id"`
	Name       string `json:"Name"`
	EndpointID int    `json:"EndpointId"`
}

// Client talks to the Portainer API using JWT bearer auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	token      string
	httpClient *http.Client
}

// NewClient creates a Portainer client. When insecure is true, TLS certificate
// verification is disabled to accommodate self-signed NAS certificates.
func NewClient(baseURL, username, password string, insecure bool) *Client {
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
			Transport: transport,
		},
	}
}

// Authenticate logs in and stores the JWT for subsequent requests.
func (c *Client) Authenticate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach Portainer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed (status %d)", resp.StatusCode)
	}

	var body struct {
		JWT string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	if body.JWT == "" {
		return fmt.Errorf("authentication succeeded but no token was returned")
	}

	c.token = body.JWT
	log.Debug().Str("url", c.baseURL).Msg("Authenticated with Portainer")
	return nil
}

// Endpoints lists all Docker environments.
func (c *Client) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.getJSON(ctx, "/api/endpoints", &endpoints); err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	return endpoints, nil
}

// Stacks lists the stacks attached to one endpoint. Portainer returns stacks
// for all endpoints, so the result is filtered client-side.
func (c *Client) Stacks(ctx context.Context, endpointID int) ([]Stack, error) {
	var stacks []Stack
	if err := c.getJSON(ctx, "/api/stacks", &stacks); err != nil {
		return nil, fmt.Errorf("failed to list stacks: %w", err)
	}

	filtered := stacks[:0]
	for _, s := range stacks {
		if s.EndpointID == endpointID {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// Containers lists all containers on one endpoint, including stopped ones.
// The response is the raw Docker container list proxied by Portainer.
func (c *Client) Containers(ctx context.Context, endpointID int) ([]container.Summary, error) {
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/json?all=true", endpointID)
	var containers []container.Summary
	if err := c.getJSON(ctx, path, &containers); err != nil {
		return nil, fmt.Errorf("failed to list containers for endpoint %d: %w", endpointID, err)
	}
	return containers, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
