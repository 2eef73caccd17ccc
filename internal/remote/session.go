package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"stocksync-api/internal/cache"
	"stocksync-api/internal/model"
	"stocksync-api/internal/syncerr"

	"golang.org/x/sync/singleflight"
)

const (
	// PathAuthorize exchanges application credentials for a session token.
	PathAuthorize = "/api/Auth/AuthorizeByApplication"

	// PathPing is the liveness probe used to decide whether a cached token is still good.
	PathPing = "/api/Auth/Ping"

	defaultAuthorizeTimeout = 30 * time.Second
)

// Credentials identify this installation to the remote system.
type Credentials struct {
	ApplicationID     string
	ApplicationSecret string
	InstallToken      string
}

type authorizeRequest struct {
	ApplicationID     string `json:"ApplicationId"`
	ApplicationSecret string `json:"ApplicationSecret"`
	Token             string `json:"Token"`
}

type authorizeResponse struct {
	Token  string `json:"Token"`
	Server string `json:"Server"`
}

// Session acquires and caches the remote session token.
type Session struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	slot       *cache.TokenSlot
	group      singleflight.Group
	now        func() time.Time
}

// NewSession creates a session that stores its token in slot.
func NewSession(httpClient *http.Client, baseURL string, creds Credentials, slot *cache.TokenSlot) *Session {
	return &Session{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		slot:       slot,
		now:        time.Now,
	}
}

// ValidToken returns the cached token if the liveness probe accepts it,
// otherwise authorizes once, caches the result and returns it.
func (s *Session) ValidToken(ctx context.Context) (*model.RemoteSessionToken, error) {
	cached, err := s.slot.Load(ctx)
	if err != nil {
		log.Printf("[RemoteSession] Token cache unavailable, re-authorizing: %v", err)
		cached = nil
	}

	if cached != nil {
		err := s.probe(ctx, cached)
		if err == nil {
			return cached, nil
		}
		if syncerr.Is(err, syncerr.KindConnection) {
			return nil, err
		}
		log.Printf("[RemoteSession] Cached token failed liveness probe: %v", err)
	}

	return s.refresh(ctx, cached)
}

// Invalidate clears the cached token; the next ValidToken call re-authorizes.
func (s *Session) Invalidate(ctx context.Context) error {
	return s.slot.Clear(ctx)
}

// refresh performs the authorization round-trip. Concurrent callers in this
// process share one call; callers in other processes may race, which is harmless
// because issuing a token does not revoke the others.
//
// The shared call does not inherit the caller's cancellation, so one caller
// giving up does not fail the others waiting on it.
func (s *Session) refresh(ctx context.Context, stale *model.RemoteSessionToken) (*model.RemoteSessionToken, error) {
	ch := s.group.DoChan("authorize", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout())
		defer cancel()

		tok, err := s.authorize(fctx)
		if err != nil {
			return nil, err
		}
		swapped, err := s.slot.Replace(fctx, stale, tok)
		if err != nil {
			log.Printf("[RemoteSession] Failed to cache token: %v", err)
		} else if !swapped {
			log.Printf("[RemoteSession] Token slot changed concurrently, keeping fresh token for this call")
		}
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, syncerr.Connection("remote.authorize", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.RemoteSessionToken), nil
	}
}

func (s *Session) flightTimeout() time.Duration {
	if s.httpClient != nil && s.httpClient.Timeout > 0 {
		return s.httpClient.Timeout
	}
	return defaultAuthorizeTimeout
}

func (s *Session) authorize(ctx context.Context) (*model.RemoteSessionToken, error) {
	const op = "remote.authorize"

	body, err := json.Marshal(authorizeRequest{
		ApplicationID:     s.creds.ApplicationID,
		ApplicationSecret: s.creds.ApplicationSecret,
		Token:             s.creds.InstallToken,
	})
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+PathAuthorize, bytes.NewReader(body))
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.Connection(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.Connection(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := syncerr.Auth(op, fmt.Sprintf("authorization rejected: %s", snippet(raw)))
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	var out authorizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, syncerr.Malformed(op, err)
	}
	if out.Token == "" {
		return nil, syncerr.Auth(op, "authorization response carried no token")
	}

	log.Printf("[RemoteSession] Authorized application %s", s.creds.ApplicationID)
	return &model.RemoteSessionToken{
		Value:    out.Token,
		Server:   strings.TrimRight(out.Server, "/"),
		CachedAt: s.now(),
	}, nil
}

func (s *Session) probe(ctx context.Context, tok *model.RemoteSessionToken) error {
	const op = "remote.ping"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverFor(tok, s.baseURL)+PathPing, nil)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	req.Header.Set("Authorization", tok.Value)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return syncerr.Connection(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		e := syncerr.Auth(op, "token rejected")
		e.StatusCode = resp.StatusCode
		return e
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return syncerr.RemoteServer(op, resp.StatusCode, "ping failed")
	}
	return nil
}

// serverFor returns the server a token is bound to, falling back to the configured base URL.
func serverFor(tok *model.RemoteSessionToken, fallback string) string {
	if tok != nil && tok.Server != "" {
		return tok.Server
	}
	return fallback
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
