package placement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MonitoringClient fetches host snapshots from the monitoring adapter.
// It implements HostSource.
type MonitoringClient struct {
	baseURL string
	http    *http.Client
}

func NewMonitoringClient(baseURL string, timeout time.Duration) *MonitoringClient {
	return &MonitoringClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *MonitoringClient) Hosts(ctx context.Context) ([]HostSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/hosts", nil)
	if err != nil {
		return nil, err
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach monitoring adapter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("monitoring adapter returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Hosts []HostSnapshot `json:"hosts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode hosts response: %w", err)
	}
	return payload.Hosts, nil
}

// SliceVM is one VM demand forwarded to the placement service.
type SliceVM struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	CPU  int32  `json:"cpu"`
	RAM  int32  `json:"ram"`
	Disk int32  `json:"disk"`
}

// Client calls the placement service from the deployment controller.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// PlaceSlice requests a placement for the given slice's pending VMs.
// The caller's bearer token is forwarded so the request stays
// attributable to the end user.
func (c *Client) PlaceSlice(ctx context.Context, sliceID int64, vms []SliceVM, token string) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{"vms": vms})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/placement/slice/%d", c.baseURL, sliceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach placement service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("placement service returned %d: %s", resp.StatusCode, raw)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode placement response: %w", err)
	}
	return &result, nil
}
