// Package browser routes catalog traffic through a headless-browser
// service for upstreams gated by anti-bot challenges. The service
// exposes a Browserless-style HTTP façade: POST /content renders a page
// and returns its HTML, POST /function runs a script inside the page
// and returns its result. Browser contexts are expensive, so a shared
// pool bounds how many are open at once.
package browser

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxContexts bounds concurrent browser contexts when the
// configuration leaves it unset.
const DefaultMaxContexts = 3

// Pool hands out browser contexts from the shared service, at most
// maxContexts at a time. Acquire suspends until a slot frees up.
type Pool struct {
	serviceURL string
	client     *http.Client
	sem        *semaphore.Weighted
}

// NewPool builds a pool over the browser service at serviceURL.
func NewPool(serviceURL string, maxContexts int64) *Pool {
	if maxContexts <= 0 {
		maxContexts = DefaultMaxContexts
	}
	return &Pool{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		sem:        semaphore.NewWeighted(maxContexts),
	}
}

// Acquire claims a browser context, blocking until one is free or ctx
// is done. The caller must Release it on every exit path.
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Context{pool: p}, nil
}

// Context is one claimed browser context. Release is idempotent.
type Context struct {
	pool    *Pool
	release sync.Once
}

// Release returns the context's slot to the pool.
func (c *Context) Release() {
	c.release.Do(func() { c.pool.sem.Release(1) })
}

type contentRequest struct {
	URL            string `json:"url"`
	WaitForTimeout int    `json:"waitForTimeout,omitempty"`
}

type functionRequest struct {
	Code    string            `json:"code"`
	Context map[string]string `json:"context"`
}

// Content navigates the context to url and returns the rendered HTML.
func (c *Context) Content(ctx context.Context, url string, waitMS int) (string, error) {
	body, err := c.post(ctx, "/content", contentRequest{URL: url, WaitForTimeout: waitMS})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Fetch runs an in-page fetch() against url and returns the raw
// response body. Running inside the page means the request carries the
// challenge clearance cookies the navigation earned.
func (c *Context) Fetch(ctx context.Context, url string) ([]byte, error) {
	const code = `export default async function ({ context }) {
  const res = await fetch(context.url, { headers: { accept: "application/json" } });
  return { data: await res.text(), type: "application/json" };
}`
	return c.post(ctx, "/function", functionRequest{
		Code:    code,
		Context: map[string]string{"url": url},
	})
}

func (c *Context) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.pool.serviceURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.pool.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
		return nil, fmt.Errorf("browser service navigation timed out: %w", context.DeadlineExceeded)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("browser service fault: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
