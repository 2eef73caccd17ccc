package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"stocksync-api/internal/model"
	"stocksync-api/internal/syncerr"

	"golang.org/x/time/rate"
)

// TokenSource supplies and invalidates remote session tokens.
type TokenSource interface {
	ValidToken(ctx context.Context) (*model.RemoteSessionToken, error)
	Invalidate(ctx context.Context) error
}

// ClientConfig holds RemoteClient settings.
type ClientConfig struct {
	BaseURL   string
	RateLimit rate.Limit // requests per second; 0 disables limiting
	RateBurst int
}

// Client performs authenticated JSON calls against the remote inventory API.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a remote client. httpClient must carry a timeout.
func NewClient(httpClient *http.Client, tokens TokenSource, cfg ClientConfig) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Request sends payload to path and decodes the JSON response into out (when non-nil).
// For GET and DELETE a url.Values payload is sent as the query string; any other
// payload is JSON encoded into the body.
//
// An "unauthorized" response invalidates the session and the request is retried
// exactly once with a fresh token. A second rejection is returned as an auth error.
func (c *Client) Request(ctx context.Context, method, path string, payload, out interface{}) error {
	tok, err := c.tokens.ValidToken(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, tok, method, path, payload, out)
	if !isUnauthorized(err) {
		return err
	}

	log.Printf("[RemoteClient] %s %s rejected as unauthorized, refreshing session", method, path)
	if err := c.tokens.Invalidate(ctx); err != nil {
		log.Printf("[RemoteClient] Failed to invalidate session: %v", err)
	}

	tok, err = c.tokens.ValidToken(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, tok, method, path, payload, out)
	if isUnauthorized(err) {
		e := syncerr.Auth(opName(method, path), "request rejected after token refresh")
		e.StatusCode = http.StatusUnauthorized
		return e
	}
	return err
}

// Get is Request with GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Request(ctx, http.MethodGet, path, query, out)
}

// Post is Request with POST.
func (c *Client) Post(ctx context.Context, path string, payload, out interface{}) error {
	return c.Request(ctx, http.MethodPost, path, payload, out)
}

// Put is Request with PUT.
func (c *Client) Put(ctx context.Context, path string, payload, out interface{}) error {
	return c.Request(ctx, http.MethodPut, path, payload, out)
}

// Delete is Request with DELETE.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Request(ctx, http.MethodDelete, path, query, out)
}

func (c *Client) do(ctx context.Context, tok *model.RemoteSessionToken, method, path string, payload, out interface{}) error {
	op := opName(method, path)

	if err := c.limiter.Wait(ctx); err != nil {
		return syncerr.Connection(op, err)
	}

	target := serverFor(tok, c.baseURL) + path
	var body io.Reader
	if q, ok := payload.(url.Values); ok {
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
	} else if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return syncerr.Validation(op, fmt.Sprintf("failed to encode payload: %v", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	req.Header.Set("Authorization", tok.Value)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.Connection(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.Connection(op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		e := syncerr.Auth(op, "unauthorized")
		e.StatusCode = resp.StatusCode
		return e
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return syncerr.RemoteServer(op, resp.StatusCode, snippet(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return syncerr.Malformed(op, err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	return syncerr.Is(err, syncerr.KindAuth) && syncerr.StatusOf(err) == http.StatusUnauthorized
}

func opName(method, path string) string {
	return "remote " + method + " " + path
}
