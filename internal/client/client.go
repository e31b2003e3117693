// Package client reads a root's aggregates over the observer HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/observer"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNotFound     = errors.New("not found")
	ErrNotAttached  = errors.New("root not attached")
	ErrUnexpected   = errors.New("unexpected response")
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "localhost:1871",
		RequestTimeout: 10 * time.Second,
	}
}

// Client talks to one observer endpoint.
type Client struct {
	base string
	http *http.Client
}

// New creates a new client. Addr may be host:port or a full URL.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	base := cfg.Addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Status mirrors the root's status document with states as strings.
type Status struct {
	ID             string        `json:"id"`
	Role           string        `json:"role"`
	State          string        `json:"state"`
	Epoch          uint64        `json:"epoch"`
	Parent         string        `json:"parent,omitempty"`
	ParentLink     string        `json:"parent_link"`
	ParentAttempts int           `json:"parent_attempts,omitempty"`
	Children       []ChildStatus `json:"children"`
	Counters       int           `json:"counters"`
	Aggregates     int           `json:"aggregates"`
	Evictions      int64         `json:"evictions,omitempty"`
	Rejections     int64         `json:"rejections,omitempty"`
}

// ChildStatus is one child as the root sees it.
type ChildStatus struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	LastSeen time.Time `json:"last_seen"`
	Updates  uint64    `json:"updates"`
}

// =============================================================================
// Queries
// =============================================================================

// Aggregates returns every aggregate, sorted by name.
func (c *Client) Aggregates(ctx context.Context) ([]observer.EntryView, error) {
	var out []observer.EntryView
	return out, c.get(ctx, "/aggregates", &out)
}

// Aggregate returns one aggregate. A name the root has not seen yields
// ErrNotFound.
func (c *Client) Aggregate(ctx context.Context, name string) (observer.EntryView, error) {
	var out observer.EntryView
	if name == "" {
		return out, fmt.Errorf("aggregate name: %w", ErrInvalidInput)
	}
	return out, c.get(ctx, "/aggregates/"+url.PathEscape(name), &out)
}

// Keys returns the aggregated names.
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	var out []string
	return out, c.get(ctx, "/keys", &out)
}

// Hist returns the distribution summary of name.
func (c *Client) Hist(ctx context.Context, name string) (observer.HistView, error) {
	var out observer.HistView
	if name == "" {
		return out, fmt.Errorf("histogram name: %w", ErrInvalidInput)
	}
	return out, c.get(ctx, "/hist/"+url.PathEscape(name), &out)
}

// Values returns the latest value of every live origin behind name, sorted
// by origin.
func (c *Client) Values(ctx context.Context, name string) (observer.ValuesView, error) {
	var out observer.ValuesView
	if name == "" {
		return out, fmt.Errorf("values name: %w", ErrInvalidInput)
	}
	return out, c.get(ctx, "/values/"+url.PathEscape(name), &out)
}

// Topology returns the root's current topology.
func (c *Client) Topology(ctx context.Context) (observer.TopologyView, error) {
	var out observer.TopologyView
	return out, c.get(ctx, "/topology", &out)
}

// Count returns the number of participants.
func (c *Client) Count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.get(ctx, "/count", &out)
	return out.Count, err
}

// Status returns the root's status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	return out, c.get(ctx, "/status", &out)
}

// Healthy reports whether the observer answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// WaitReady polls the health check with backoff until it succeeds or ctx
// ends.
func (c *Client) WaitReady(ctx context.Context, backoff liveness.Backoff) error {
	for attempt := 0; ; attempt++ {
		err := c.Healthy(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("observer %s not ready: %w", c.base, err)
		case <-time.After(backoff.Delay(attempt)):
		}
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("GET %s: %w", path, ErrNotAttached)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s: %w", path, resp.Status,
			strings.TrimSpace(string(body)), ErrUnexpected)
	}

	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
