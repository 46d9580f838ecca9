// Package client is a thin HTTP client for the guidekit decision server,
// used by the CLI to push validated definitions to a running instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/snapshot"
)

// Client talks to one guidekit server. Admin calls carry the API key in
// the X-API-Key header.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DefineSegment creates or replaces a segment definition.
func (c *Client) DefineSegment(ctx context.Context, seg segment.Segment) error {
	return c.post(ctx, "/v1/segments", seg, nil)
}

// CreateExperiment registers a new draft experiment.
func (c *Client) CreateExperiment(ctx context.Context, exp experiment.Experiment) error {
	return c.post(ctx, "/v1/experiments", exp, nil)
}

// SetExperimentStatus drives the experiment lifecycle.
func (c *Client) SetExperimentStatus(ctx context.Context, id string, status experiment.Status) error {
	payload := map[string]any{"status": status}
	return c.post(ctx, "/v1/experiments/"+id+"/status", payload, nil)
}

// DefineFlow creates or replaces a flow definition and returns any
// non-fatal validation warnings.
func (c *Client) DefineFlow(ctx context.Context, def flow.Flow) ([]string, error) {
	var resp struct {
		Warnings []string `json:"warnings"`
	}
	if err := c.post(ctx, "/v1/flows", def, &resp); err != nil {
		return nil, err
	}
	return resp.Warnings, nil
}

// DefineChecklist creates or replaces a checklist definition.
func (c *Client) DefineChecklist(ctx context.Context, def flow.Checklist) error {
	return c.post(ctx, "/v1/checklists", def, nil)
}

// Definitions fetches the current definitions snapshot. With a non-empty
// etag the request is conditional; (nil, nil) means not modified.
func (c *Client) Definitions(ctx context.Context, etag string) (*snapshot.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/definitions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var snap snapshot.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &snap, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(raw))
}
