// Package http implements the record-store contract against a remote
// shared record store speaking JSON over HTTP. This is the deployment shape
// where several services share one store; the embedded backends serve
// single-node installs.
//
// Versioning rides on entity tags: reads surface the record version as a
// strong ETag, updates send it back as If-Match, and a 412 response maps to
// store.ErrConflict. Attribute search is a query on the kind's collection
// and may be eventually consistent on the server side, which is why callers
// pair it with store.WaitIndexed.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// Config holds the remote record-store connection settings.
type Config struct {
	// BaseURL is the root of the record-store API, e.g.
	// https://records.internal:8443/api/v1.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Token is an optional bearer token sent on every request.
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Timeout bounds each request.
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// Client is a remote record-store client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the record store rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http record store requires base_url")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// createResponse is the body returned by the store on record creation.
type createResponse struct {
	ID string `json:"id"`
}

// findResponse is the body returned by an attribute search.
type findResponse struct {
	IDs []string `json:"ids"`
}

// Create implements store.Client.
func (c *Client) Create(ctx context.Context, rec model.Record) (string, error) {
	if !rec.Kind().IsValid() {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownKind, rec.Kind())
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.recordsURL(rec.Kind(), ""), body, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.statusError(rec.Kind(), rec.GetID(), resp)
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("record store returned no id for created %s", rec.Kind())
	}

	rec.SetID(created.ID)
	rec.SetVersion(versionFromETag(resp.Header.Get("ETag"), 1))
	return created.ID, nil
}

// Read implements store.Client.
func (c *Client) Read(ctx context.Context, id string, rec model.Record) error {
	resp, err := c.do(ctx, http.MethodGet, c.recordsURL(rec.Kind(), id), nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return c.statusError(rec.Kind(), id, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(rec); err != nil {
		return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
	}
	rec.SetID(id)
	rec.SetVersion(versionFromETag(resp.Header.Get("ETag"), 1))
	return nil
}

// Update implements store.Client. The carried version travels as If-Match;
// a 412 Precondition Failed is the lost optimistic race.
func (c *Client) Update(ctx context.Context, rec model.Record) error {
	id := rec.GetID()

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}

	etag := fmt.Sprintf("%q", strconv.FormatInt(rec.GetVersion(), 10))
	resp, err := c.do(ctx, http.MethodPut, c.recordsURL(rec.Kind(), id), body, etag)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		rec.SetVersion(versionFromETag(resp.Header.Get("ETag"), rec.GetVersion()+1))
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%s %q at version beyond %d: %w",
			rec.Kind(), id, rec.GetVersion(), store.ErrConflict)
	default:
		return c.statusError(rec.Kind(), id, resp)
	}
}

// FindByAttribute implements store.Client. The remote index is eventually
// consistent; a miss here is not proof of absence (see store.WaitIndexed).
func (c *Client) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	query := url.Values{"field": {field}, "value": {value}}
	u := c.recordsURL(kind, "") + "?" + query.Encode()

	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(kind, "", resp)
	}

	var found findResponse
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("decode find response: %w", err)
	}
	return found.IDs, nil
}

// HealthCheck implements store.Client.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("record store unhealthy: %s", resp.Status)
	}
	return nil
}

// Close implements store.Client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) recordsURL(kind model.Kind, id string) string {
	u := c.baseURL + "/records/" + url.PathEscape(string(kind))
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, ifMatch string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record store request: %w", err)
	}
	return resp, nil
}

func (c *Client) statusError(kind model.Kind, id string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if id == "" {
		return fmt.Errorf("record store %s %s: %s: %s",
			resp.Request.Method, kind, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("record store %s %s %q: %s: %s",
		resp.Request.Method, kind, id, resp.Status, strings.TrimSpace(string(snippet)))
}

// versionFromETag parses a strong ETag of the form `"42"`. Falls back when
// the store omits the header.
func versionFromETag(etag string, fallback int64) int64 {
	trimmed := strings.Trim(etag, `W/"`)
	if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return v
	}
	return fallback
}

// Interface guard.
var _ store.Client = (*Client)(nil)
