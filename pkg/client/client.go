package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/reconciler"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

// DefaultAddress is the manager API of a local deployment
const DefaultAddress = "http://127.0.0.1:3000"

// Client talks to a running manager over its HTTP API
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient creates a client for the manager at addr. A bare host:port is
// treated as plain http.
func NewClient(addr, username, password string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL:  strings.TrimRight(addr, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// envelope mirrors the API response of mutating endpoints
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	State   json.RawMessage `json:"state"`
	Result  json.RawMessage `json:"result"`
	Paths   json.RawMessage `json:"paths"`
}

// APIError is a non-2xx answer from the manager
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("manager returned %d: %s", e.Status, e.Message)
}

// GetState returns the stored document
func (c *Client) GetState(ctx context.Context) (*types.Document, error) {
	var doc types.Document
	if err := c.do(ctx, http.MethodGet, "/api/state", "", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveState replaces the stored document. The broker is not touched.
func (c *Client) SaveState(ctx context.Context, doc *types.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	var env envelope
	return c.do(ctx, http.MethodPost, "/api/state", "application/json", bytes.NewReader(body), &env)
}

// Apply runs the reconciliation pipeline and returns its result. When the
// pipeline fails the partial result is returned together with the error.
func (c *Client) Apply(ctx context.Context) (*reconciler.Result, error) {
	var env envelope
	err := c.do(ctx, http.MethodPost, "/api/apply", "", nil, &env)

	var result *reconciler.Result
	if len(env.Result) > 0 && string(env.Result) != "null" {
		result = &reconciler.Result{}
		if uerr := json.Unmarshal(env.Result, result); uerr != nil && err == nil {
			err = fmt.Errorf("failed to decode result: %w", uerr)
		}
	}
	return result, err
}

// Reload asks the manager to send SIGHUP to the broker
func (c *Client) Reload(ctx context.Context) error {
	var env envelope
	return c.do(ctx, http.MethodPost, "/api/reload", "", nil, &env)
}

// ImportConf merges a mosquitto.conf into the stored document and returns
// the new document
func (c *Client) ImportConf(ctx context.Context, conf []byte) (*types.Document, error) {
	return c.importDocument(ctx, "/api/import/conf", "text/plain", conf)
}

// ImportBackup replaces the stored document with an exported backup
func (c *Client) ImportBackup(ctx context.Context, backup []byte) (*types.Document, error) {
	return c.importDocument(ctx, "/api/backup/import", "application/json", backup)
}

func (c *Client) importDocument(ctx context.Context, path, contentType string, data []byte) (*types.Document, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, path, contentType, bytes.NewReader(data), &env); err != nil {
		return nil, err
	}
	var doc types.Document
	if err := json.Unmarshal(env.State, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// ExportBackup writes the stored document as a backup file to w
func (c *Client) ExportBackup(ctx context.Context, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/backup/export", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	return nil
}

// GenerateCertificates asks the manager to create the TLS bundle
func (c *Client) GenerateCertificates(ctx context.Context) (*security.Bundle, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/certs/generate", "", nil, &env); err != nil {
		return nil, err
	}
	var bundle security.Bundle
	if err := json.Unmarshal(env.Paths, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &bundle, nil
}

// Clients lists the connected broker clients
func (c *Client) Clients(ctx context.Context) ([]types.ClientSession, error) {
	var sessions []types.ClientSession
	if err := c.do(ctx, http.MethodGet, "/api/clients", "", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Stats returns the latest broker metrics
func (c *Client) Stats(ctx context.Context) (*types.BrokerStats, error) {
	var stats types.BrokerStats
	if err := c.do(ctx, http.MethodGet, "/api/stats", "", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// do sends a request and decodes the JSON answer into out. Error answers
// are still decoded so callers can inspect partial results.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach manager: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > 0 && out != nil {
		if uerr := json.Unmarshal(data, out); uerr != nil && resp.StatusCode < 300 {
			return fmt.Errorf("failed to decode response: %w", uerr)
		}
	}
	if resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach manager: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, data)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func apiError(status int, data []byte) error {
	var env envelope
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &env); err == nil && env.Error != "" {
		msg = env.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
