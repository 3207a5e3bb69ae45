// Package client is an HTTP client for the OpenWake API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openwake/openwake/pkg/types"
)

// Client is an HTTP client for the OpenWake API.
type Client struct {
	baseURL      string
	controlToken string
	httpClient   *http.Client
}

// NewClient creates a new OpenWake API client. The control token may be
// empty when only unguarded endpoints are used.
func NewClient(baseURL, controlToken string) *Client {
	return &Client{
		baseURL:      baseURL,
		controlToken: controlToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with control-token authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.controlToken != "" {
		req.Header.Set("X-Control-Token", c.controlToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// ListTargets lists all targets with their current snapshots.
func (c *Client) ListTargets(ctx context.Context) ([]types.TargetStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/targets", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var targets []types.TargetStatus
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return targets, nil
}

// GetTarget returns the refreshed snapshot for one target.
func (c *Client) GetTarget(ctx context.Context, targetID string) (*types.TargetStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/targets/"+url.PathEscape(targetID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var target types.TargetStatus
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &target, nil
}

// Unshelve starts the unshelve workflow for a target.
func (c *Client) Unshelve(ctx context.Context, targetID, reason string) (*types.StatusRecord, error) {
	return c.startAction(ctx, targetID, "unshelve", reason)
}

// Shelve starts the shelve workflow for a target (requires the control token).
func (c *Client) Shelve(ctx context.Context, targetID, reason string) (*types.StatusRecord, error) {
	return c.startAction(ctx, targetID, "shelve", reason)
}

func (c *Client) startAction(ctx context.Context, targetID, verb, reason string) (*types.StatusRecord, error) {
	body := map[string]string{"reason": reason}
	path := fmt.Sprintf("/targets/%s/%s", url.PathEscape(targetID), verb)
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var rec types.StatusRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &rec, nil
}

// ListEvents returns the newest audit records (requires the control token).
func (c *Client) ListEvents(ctx context.Context, limit int) ([]types.Event, error) {
	path := "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var events []types.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return events, nil
}
