package synology

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/akibrhast/synosync/types"
)

// newTestServer serves the DSM login endpoint and delegates reverse proxy
// calls to handle.
func newTestServer(t *testing.T, handle func(t *testing.T, form url.Values, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/webapi/auth.cgi", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "login" {
			t.Errorf("unexpected auth method %q", r.URL.Query().Get("method"))
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"synotoken":"tok123"}}`))
	})
	mux.HandleFunc("/webapi/entry.cgi/"+reverseProxyAPI, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-SYNO-TOKEN"); got != "tok123" {
			t.Errorf("X-SYNO-TOKEN = %q, want tok123", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		handle(t, r.PostForm, w)
	})
	return httptest.NewServer(mux)
}

func TestListNormalizesPorts(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, form url.Values, w http.ResponseWriter) {
		if form.Get("method") != "list" {
			t.Errorf("method = %q, want list", form.Get("method"))
		}
		// One frontend port as a string, one as a number.
		_, _ = w.Write([]byte(`{"success":true,"data":{"entries":[
			{"id":1,"uuid":"aaaa-bbbb","description":"bazarr",
			 "frontend":{"fqdn":"bazarr.example.com","port":"443","https":{"hsts":true}},
			 "backend":{"fqdn":"nas","port":6767},
			 "customize_headers":[{"name":"Upgrade","value":"$http_upgrade"}]},
			{"id":2,"description":"sonarr",
			 "frontend":{"fqdn":"sonarr.example.com","port":443,"https":{"hsts":false}},
			 "backend":{"fqdn":"nas","port":"8989"},
			 "customize_headers":[]}
		]}}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "secret", false)
	rules, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	bazarr := rules[0]
	if bazarr.Frontend.Port != 443 {
		t.Errorf("string frontend port should normalize to 443, got %d", bazarr.Frontend.Port)
	}
	if bazarr.Backend.Port != 6767 {
		t.Errorf("Backend.Port = %d, want 6767", bazarr.Backend.Port)
	}
	if !bazarr.Frontend.HSTSEnabled {
		t.Errorf("HSTS flag lost in normalization")
	}
	if !bazarr.HasCustomHeaders {
		t.Errorf("customize_headers should flag websocket capability")
	}

	sonarr := rules[1]
	if sonarr.Backend.Port != 8989 {
		t.Errorf("string backend port should normalize to 8989, got %d", sonarr.Backend.Port)
	}
	if sonarr.HasCustomHeaders {
		t.Errorf("rule without headers should not be flagged")
	}
	if sonarr.UUID != "" {
		t.Errorf("absent uuid should stay empty")
	}
}

func TestCreateSerializesEntry(t *testing.T) {
	var entry ruleEntry
	srv := newTestServer(t, func(t *testing.T, form url.Values, w http.ResponseWriter) {
		if form.Get("method") != "create" {
			t.Errorf("method = %q, want create", form.Get("method"))
		}
		if err := json.Unmarshal([]byte(form.Get("entry")), &entry); err != nil {
			t.Fatalf("entry is not valid JSON: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "secret", false)
	err := client.Create(context.Background(), types.RuleSpec{
		Description:    "bazarr",
		FrontendDomain: "bazarr.example.com",
		FrontendPort:   443,
		BackendHost:    "nas",
		BackendPort:    6767,
		HSTS:           true,
		Websocket:      true,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if entry.Frontend.FQDN != "bazarr.example.com" || entry.Frontend.Port != 443 {
		t.Errorf("unexpected frontend %+v", entry.Frontend)
	}
	if !entry.Frontend.HTTPS.HSTS {
		t.Errorf("HSTS flag not serialized")
	}
	if entry.Backend.FQDN != "nas" || entry.Backend.Port != 6767 {
		t.Errorf("unexpected backend %+v", entry.Backend)
	}
	if len(entry.CustomizeHeaders) != 2 {
		t.Fatalf("websocket rule must carry exactly two header directives, got %d", len(entry.CustomizeHeaders))
	}
	if entry.CustomizeHeaders[0].Name != "Upgrade" || entry.CustomizeHeaders[1].Name != "Connection" {
		t.Errorf("unexpected header directives %+v", entry.CustomizeHeaders)
	}
}

func TestCreateWithoutWebsocketHasNoHeaders(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, form url.Values, w http.ResponseWriter) {
		var entry ruleEntry
		if err := json.Unmarshal([]byte(form.Get("entry")), &entry); err != nil {
			t.Fatalf("entry is not valid JSON: %v", err)
		}
		if len(entry.CustomizeHeaders) != 0 {
			t.Errorf("plain rule must not carry header directives: %+v", entry.CustomizeHeaders)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "secret", false)
	err := client.Create(context.Background(), types.RuleSpec{
		Description:    "sonarr",
		FrontendDomain: "sonarr.example.com",
		FrontendPort:   443,
		BackendHost:    "nas",
		BackendPort:    8989,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
}

func TestDeleteKeyEncoding(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		wantField string
		wantJSON  string
	}{
		{"numeric ids", []string{"3", "7"}, "id", "[3,7]"},
		{"uuids", []string{"aaaa-bbbb", "cccc-dddd"}, "uuids", `["aaaa-bbbb","cccc-dddd"]`},
		{"mixed falls back to uuids", []string{"3", "aaaa-bbbb"}, "uuids", `["3","aaaa-bbbb"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(t *testing.T, form url.Values, w http.ResponseWriter) {
				if form.Get("method") != "delete" {
					t.Errorf("method = %q, want delete", form.Get("method"))
				}
				if got := form.Get(tt.wantField); got != tt.wantJSON {
					t.Errorf("form[%s] = %q, want %q", tt.wantField, got, tt.wantJSON)
				}
				_, _ = w.Write([]byte(`{"success":true}`))
			})
			defer srv.Close()

			client := NewClient(srv.URL, "admin", "secret", false)
			if err := client.Delete(context.Background(), tt.keys); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
		})
	}
}

func TestStoreRejectionCarriesCode(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, form url.Values, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":4154}}`))
	})
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "secret", false)
	err := client.Create(context.Background(), types.RuleSpec{
		Description:    "bad",
		FrontendDomain: "bad.example.com",
		FrontendPort:   443,
		BackendHost:    "nas",
		BackendPort:    8080,
	})
	if err == nil {
		t.Fatalf("expected rejection")
	}

	var storeErr *types.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *types.StoreError, got %T", err)
	}
	if storeErr.Code != types.StoreCodeDomainRejected {
		t.Errorf("Code = %d, want %d", storeErr.Code, types.StoreCodeDomainRejected)
	}
}

func TestFlexPort(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{"number", `443`, 443, false},
		{"string", `"443"`, 443, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage", `"https"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p flexPort
			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if int(p) != tt.expected {
				t.Errorf("flexPort(%s) = %d, want %d", tt.input, int(p), tt.expected)
			}
		})
	}
}
