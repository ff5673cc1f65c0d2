package sierra

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arguspanoptes/argus-server/internal/catalog"
)

// Tokens are treated as expired this long before the server says so, to
// avoid using a token that dies mid-request.
const expiryMargin = 60 * time.Second

// tokenCache holds one client-credentials token per adapter. Concurrent
// refreshes coalesce behind a single in-flight request; a 401/403 from
// the API invalidates the cache so the next call fetches a fresh token.
type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time

	group singleflight.Group
	now   func() time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{now: time.Now}
}

// get returns the cached token when still fresh, otherwise refreshes via
// fetch. Only one fetch is in flight at a time; concurrent callers share
// its result.
func (c *tokenCache) get(ctx context.Context, fetch func(context.Context) (string, time.Duration, error)) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expires) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expires) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		// The refresh is shared by every coalesced waiter, so it must
		// not die with the caller that happened to start it.
		token, ttl, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.expires = c.now().Add(ttl - expiryMargin)
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the cached token.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// fetchToken requests a client-credentials token: POST {base}/token with
// Basic auth of key:secret.
func (a *Adapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL()+"/token", body)
	if err != nil {
		return "", 0, a.Fail(catalog.KindUnknown, "token", err)
	}
	req.SetBasicAuth(a.creds.Key, a.creds.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.Do(req, "token")
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", 0, a.Failf(catalog.KindAuth, "token", "token request rejected: status %d", resp.StatusCode)
	}
	if err := a.CheckStatus(resp, "token"); err != nil {
		return "", 0, err
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.UnmarshalRead(resp.Body, &payload); err != nil {
		return "", 0, a.Fail(catalog.KindParse, "token", err)
	}
	if payload.AccessToken == "" {
		return "", 0, a.Failf(catalog.KindAuth, "token", "token response missing access_token")
	}
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= expiryMargin {
		ttl = expiryMargin + time.Minute
	}
	return payload.AccessToken, ttl, nil
}
