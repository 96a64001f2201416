package portainer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("auth method = %s, want POST", r.Method)
		}
		_, _ = w.Write([]byte(`{"jwt":"token123"}`))
	})
	mux.HandleFunc("/api/endpoints", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_, _ = w.Write([]byte(`[{"Id":1,"Name":"local"},{"Id":2,"Name":"remote"}]`))
	})
	mux.HandleFunc("/api/stacks", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_, _ = w.Write([]byte(`[
			{"Id":10,"Name":"media","EndpointId":1},
			{"Id":11,"Name":"infra","EndpointId":2}
		]`))
	})
	mux.HandleFunc("/api/endpoints/1/docker/containers/json", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		if r.URL.Query().Get("all") != "true" {
			t.Errorf("container listing must include stopped containers")
		}
		_, _ = w.Write([]byte(`[{
			"Names":["/media-bazarr-1"],
			"Image":"linuxserver/bazarr:latest",
			"State":"running",
			"Labels":{"com.docker.compose.project":"media","com.docker.compose.service":"bazarr"},
			"Ports":[{"PrivatePort":6767,"PublicPort":6767,"Type":"tcp"}]
		}]`))
	})
	return httptest.NewServer(mux)
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer token123" {
		t.Errorf("Authorization = %q, want Bearer token123", got)
	}
}

func TestClientFlow(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "secret", false)
	ctx := context.Background()

	endpoints, err := client.Endpoints(ctx)
	if err != nil {
		t.Fatalf("Endpoints() failed: %v", err)
	}
	if len(endpoints) != 2 || endpoints[0].Name != "local" {
		t.Fatalf("unexpected endpoints %+v", endpoints)
	}

	stacks, err := client.Stacks(ctx, 1)
	if err != nil {
		t.Fatalf("Stacks() failed: %v", err)
	}
	if len(stacks) != 1 || stacks[0].Name != "media" {
		t.Errorf("stacks should be filtered to the endpoint, got %+v", stacks)
	}

	containers, err := client.Containers(ctx, 1)
	if err != nil {
		t.Fatalf("Containers() failed: %v", err)
	}
	if len(containers) != 1 {
		t.Fatalf("expected 1 container, got %d", len(containers))
	}
	c := containers[0]
	if c.Names[0] != "/media-bazarr-1" {
		t.Errorf("Names = %v", c.Names)
	}
	if c.Ports[0].PublicPort != 6767 {
		t.Errorf("PublicPort = %d, want 6767", c.Ports[0].PublicPort)
	}
}

func TestAuthenticationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "wrong", false)
	if _, err := client.Endpoints(context.Background()); err == nil {
		t.Fatalf("expected authentication failure to surface")
	}
}
