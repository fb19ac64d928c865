package remote

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

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/utils"
)

// Record is the wire form of one entity coming from or going to the
// remote API.
type Record struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Deleted   bool            `json:"deleted,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Delta is the server response to an incremental pull
type Delta struct {
	Data       []Record  `json:"data"`
	ServerTime time.Time `json:"serverTime"`
}

// Client talks to the remote CMMS API. Every call carries the signed
// device token and the instance ID.
type Client struct {
	baseURL    string
	instanceID string
	secret     string
	httpClient *http.Client
}

// NewClient creates a remote API client from configuration
func NewClient(cfg *config.RemoteConfig, instanceID string) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		instanceID: instanceID,
		secret:     cfg.TokenSecret,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Health probes the remote /health endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Error{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// Pull fetches entities of one type changed since the given watermark.
// A zero since fetches everything.
func (c *Client) Pull(ctx context.Context, entityType string, since time.Time) (*Delta, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, entityType)
	if !since.IsZero() {
		u += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull %s failed: %w", entityType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.responseError(resp)
	}

	var delta Delta
	if err := json.NewDecoder(resp.Body).Decode(&delta); err != nil {
		return nil, fmt.Errorf("failed to decode %s delta: %w", entityType, err)
	}
	return &delta, nil
}

// Create submits a locally created entity. Returns the server's
// assigned record.
func (c *Client) Create(ctx context.Context, entityType string, payload json.RawMessage) (*Record, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, entityType)
	return c.submit(ctx, http.MethodPost, u, payload, nil)
}

// Update submits a local edit. baseVersion, when known, is sent as an
// If-Match precondition so the server can detect concurrent edits.
func (c *Client) Update(ctx context.Context, entityType, entityID string, payload json.RawMessage, baseVersion *int64) (*Record, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, entityType, url.PathEscape(entityID))
	return c.submit(ctx, http.MethodPatch, u, payload, baseVersion)
}

// Delete submits a local deletion
func (c *Client) Delete(ctx context.Context, entityType, entityID string, baseVersion *int64) error {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, entityType, url.PathEscape(entityID))
	_, err := c.submit(ctx, http.MethodDelete, u, nil, baseVersion)
	return err
}

func (c *Client) submit(ctx context.Context, method, u string, payload json.RawMessage, baseVersion *int64) (*Record, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if baseVersion != nil {
		req.Header.Set("If-Match", strconv.FormatInt(*baseVersion, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.responseError(resp)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &rec, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Instance-ID", c.instanceID)
	if c.secret != "" {
		if token, err := utils.CreateDeviceToken(c.secret, c.instanceID, 5*time.Minute); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// responseError reads an error response body. Version conflict
// responses may carry the server's current copy of the entity.
func (c *Client) responseError(resp *http.Response) error {
	re := &Error{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return re
	}

	var parsed struct {
		Error   string  `json:"error"`
		Message string  `json:"message"`
		Current *Record `json:"current"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		re.Message = string(body)
		return re
	}

	re.Message = parsed.Error
	if re.Message == "" {
		re.Message = parsed.Message
	}
	re.Current = parsed.Current
	return re
}
