package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the AMLGuard platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// Client is a pure HTTP client for the AMLGuard platform API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new client for the AMLGuard platform.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("platform error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetTransaction fetches a transaction by id.
func (c *Client) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil)
}

// GetComplianceRecord fetches the committed record for a transaction.
func (c *Client) GetComplianceRecord(ctx context.Context, transactionID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(transactionID)+"/record", nil)
}

// EvaluateTransaction runs the verdict pipeline for a stored transaction.
func (c *Client) EvaluateTransaction(ctx context.Context, transactionID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/transactions/"+url.PathEscape(transactionID)+"/evaluate", nil)
}

// IntegrityReport verifies the persistence guarantee over a lookback window.
func (c *Client) IntegrityReport(ctx context.Context, hours int) (json.RawMessage, error) {
	query := url.Values{}
	if hours > 0 {
		query.Set("hours", strconv.Itoa(hours))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/integrity/report", query)
}

// CheckTransactionIntegrity checks one transaction for a missing record.
func (c *Client) CheckTransactionIntegrity(ctx context.Context, transactionID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(transactionID)+"/integrity", nil)
}
