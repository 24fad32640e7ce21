// Package vm abstracts the execution sandbox: allocation and release of
// isolated VMs, and command execution inside them.
package vm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrAllocationFailed marks a sandbox allocation the control plane rejected
// or that failed in transport. Callers retry a bounded number of times.
var ErrAllocationFailed = errors.New("vm allocation failed")

// Provider allocates and releases sandbox VMs. Implementations must make
// Release idempotent: releasing an already-released VM is a no-op.
type Provider interface {
	// Allocate provisions a VM of the given type and returns its id along
	// with the observed allocation latency.
	Allocate(ctx context.Context, vmType string) (string, time.Duration, error)
	Release(ctx context.Context, vmID string) error
}

// HTTPProvider talks to a VM control plane over its REST API.
type HTTPProvider struct {
	baseURL    string
	apiKey     string // optional bearer token
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the control plane at baseURL.
// apiKey may be empty when the control plane does not require auth.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *HTTPProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// Allocate requests a fresh VM. Each request carries a unique runner name so
// the control plane can label the instance.
func (p *HTTPProvider) Allocate(ctx context.Context, vmType string) (string, time.Duration, error) {
	start := time.Now()

	payload := map[string]string{
		"vm_type": vmType,
		"vm_name": "runner-" + uuid.NewString(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/vms", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%w: control plane returned %d: %s", ErrAllocationFailed, resp.StatusCode, string(respBody))
	}

	var result struct {
		ID   string `json:"id"`
		VMID string `json:"vm_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("%w: invalid allocate response: %v", ErrAllocationFailed, err)
	}

	id := result.ID
	if id == "" {
		id = result.VMID
	}
	if id == "" {
		return "", 0, fmt.Errorf("%w: allocate response carries no vm id", ErrAllocationFailed)
	}

	return id, time.Since(start), nil
}

// Release tears down a VM. A 404 from the control plane means the VM is
// already gone, which counts as success.
func (p *HTTPProvider) Release(ctx context.Context, vmID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/api/vms/"+vmID, nil)
	if err != nil {
		return err
	}
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("release vm %s: %w", vmID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("release vm %s: control plane returned %d: %s", vmID, resp.StatusCode, string(respBody))
	}
}
