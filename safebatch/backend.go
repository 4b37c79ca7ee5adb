package safebatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Backend defines the subset of the multisig execution API this client
// requires. Signer sets and thresholds are the backend's business; this
// client never inspects them.
type Backend interface {
	Submit(ctx context.Context, requestID string, payload []PayloadItem) (string, error)
	GetStatus(ctx context.Context, authorizationID string) (BackendStatus, error)
}

// BackendStatus is the backend's reported state for one authorization.
type BackendStatus struct {
	Status       string `json:"status"`
	SettlementTx string `json:"tx_hash,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// HTTPBackend implements Backend against the multisig service's HTTP API.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPBackend constructs a backend client with sane defaults.
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	RequestID  string        `json:"request_id"`
	Operations []PayloadItem `json:"operations"`
}

type submitResponse struct {
	AuthorizationID string `json:"authorization_id"`
}

// Submit hands the encoded payload to the backend and returns the opaque
// authorization identifier it assigns.
func (b *HTTPBackend) Submit(ctx context.Context, requestID string, payload []PayloadItem) (string, error) {
	body, err := json.Marshal(submitRequest{RequestID: requestID, Operations: payload})
	if err != nil {
		return "", fmt.Errorf("safebatch: encode submit request: %w", err)
	}
	var out submitResponse
	if err := b.do(ctx, http.MethodPost, "/v1/authorizations", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AuthorizationID) == "" {
		return "", fmt.Errorf("safebatch: backend returned empty authorization id")
	}
	return out.AuthorizationID, nil
}

// GetStatus polls the backend for the authorization's current state. Safe to
// call repeatedly.
func (b *HTTPBackend) GetStatus(ctx context.Context, authorizationID string) (BackendStatus, error) {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return BackendStatus{}, fmt.Errorf("safebatch: authorization id required")
	}
	var out BackendStatus
	if err := b.do(ctx, http.MethodGet, "/v1/authorizations/"+authorizationID, nil, &out); err != nil {
		return BackendStatus{}, err
	}
	return out, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if b == nil || b.http == nil {
		return fmt.Errorf("safebatch: backend not configured")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("safebatch: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("safebatch: backend request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("safebatch: read backend response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("safebatch: backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("safebatch: decode backend response: %w", err)
		}
	}
	return nil
}
