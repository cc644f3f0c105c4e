package hives

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joshp123/hivewatch/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// DefaultHistoryLimit matches the telemetry window so a history fetch fills it.
	DefaultHistoryLimit = telemetry.WindowCapacity
)

// Config defines runtime configuration for the hive API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the hive registry and telemetry history endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("hive api base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ListDevices returns the registered hives in registry order.
func (c *Client) ListDevices(ctx context.Context) ([]telemetry.Device, error) {
	var devices []telemetry.Device
	if err := c.getJSON(ctx, "list devices", []string{"hives"}, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// LoadHistory returns up to limit recent readings for deviceID, oldest first.
// The endpoint answers newest first.
func (c *Client) LoadHistory(ctx context.Context, deviceID string, limit int) ([]telemetry.Reading, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var newestFirst []telemetry.Reading
	path := []string{"hives", url.PathEscape(deviceID), "telemetry"}
	if err := c.getJSON(ctx, "load history", path, query, &newestFirst); err != nil {
		return nil, err
	}

	slices.Reverse(newestFirst)
	return newestFirst, nil
}

func (c *Client) getJSON(ctx context.Context, op string, path []string, query url.Values, dest any) error {
	endpoint, payload, err := c.getBytes(ctx, op, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return &TransportError{Op: op, Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, op string, path []string, query url.Values) (string, []byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return "", nil, &TransportError{Op: op, Endpoint: c.baseURL, Err: fmt.Errorf("build url: %w", err)}
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return endpoint, nil, &TransportError{Op: op, Endpoint: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return endpoint, nil, &TransportError{Op: op, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return endpoint, nil, &TransportError{Op: op, Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return endpoint, nil, &TransportError{
			Op:         op,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(payload))),
		}
	}

	return endpoint, payload, nil
}
