package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
)

// Client talks to the capboard HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check: HTTP %d: %s", status, body)
	}
	return nil
}

// CreateCompany posts one company.
func (c *Client) CreateCompany(ctx context.Context, rec types.CompanyRecord) error {
	status, body, err := c.do(ctx, http.MethodPost, "/companies", rec)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create %s: HTTP %d: %s", rec.Symbol, status, body)
	}
	return nil
}

// Outcome of submitting one tick.
type Outcome int

// Tick outcomes.
const (
	Accepted Outcome = iota
	Duplicate
	Rejected
)

// SubmitTick posts one tick. Backpressure is reported as Rejected without
// an error so the caller can retry.
func (c *Client) SubmitTick(ctx context.Context, t model.Tick) (Outcome, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/ticks", types.NewTickMessage(t))
	if err != nil {
		return Rejected, err
	}
	switch status {
	case http.StatusAccepted:
		return Accepted, nil
	case http.StatusOK:
		return Duplicate, nil
	case http.StatusTooManyRequests:
		return Rejected, nil
	}
	return Rejected, fmt.Errorf("tick %s: HTTP %d: %s", t.TickID, status, body)
}

// Ranked fetches GET /companies?sort=mode.
func (c *Client) Ranked(ctx context.Context, mode string) ([]types.Ranked, error) {
	return c.list(ctx, "/companies?sort="+url.QueryEscape(mode))
}

// BySymbols fetches GET /companies?symbols=....
func (c *Client) BySymbols(ctx context.Context, symbols []string) ([]types.Ranked, error) {
	return c.list(ctx, "/companies?symbols="+url.QueryEscape(strings.Join(symbols, ",")))
}

func (c *Client) list(ctx context.Context, path string) ([]types.Ranked, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", path, status, body)
	}
	var rows []types.Ranked
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rows, nil
}
