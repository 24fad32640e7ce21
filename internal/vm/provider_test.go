package vm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPProviderAllocate(t *testing.T) {
	var gotAuth, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/vms" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["vm_type"] != "standard" {
			t.Errorf("vm_type = %q", req["vm_type"])
		}
		gotName = req["vm_name"]

		json.NewEncoder(w).Encode(map[string]string{"id": "vm-42"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret-token")
	id, latency, err := p.Allocate(context.Background(), "standard")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if id != "vm-42" {
		t.Errorf("id = %q, want vm-42", id)
	}
	if latency <= 0 {
		t.Errorf("latency = %v, want > 0", latency)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if !strings.HasPrefix(gotName, "runner-") {
		t.Errorf("vm_name = %q, want runner- prefix", gotName)
	}
}

func TestHTTPProviderAllocateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	_, _, err := p.Allocate(context.Background(), "standard")
	if !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("err = %v, want ErrAllocationFailed", err)
	}
}

func TestHTTPProviderAllocateUnreachable(t *testing.T) {
	p := NewHTTPProvider("http://127.0.0.1:1", "")
	_, _, err := p.Allocate(context.Background(), "standard")
	if !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("err = %v, want ErrAllocationFailed", err)
	}
}

func TestHTTPProviderRelease(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	if err := p.Release(context.Background(), "vm-42"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if gotPath != "/api/vms/vm-42" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestHTTPProviderReleaseAlreadyGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	// A 404 means the VM is already released; not an error.
	if err := p.Release(context.Background(), "vm-gone"); err != nil {
		t.Errorf("Release of missing vm = %v, want nil", err)
	}
}
