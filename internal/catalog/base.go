package catalog

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// DefaultRequestTimeout bounds a single HTTP call when the adapter
// config leaves timeoutMs unset.
const DefaultRequestTimeout = 10 * time.Second

// UserAgent identifies the service to upstream catalogs.
const UserAgent = "ArgusSearch/1.0 (library availability aggregator)"

// Searcher is the narrow surface a concrete adapter implements. Wrap
// lifts it into the full Adapter contract.
type Searcher interface {
	ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error)
	ExecuteHealthCheck(ctx context.Context) error
	SystemID() string
	Protocol() domain.Protocol
}

// Wrap decorates a concrete adapter with the shared bookkeeping:
// monotonic timing, uniform error classification, and health status
// assembly.
func Wrap(inner Searcher) Adapter {
	return &wrapped{inner: inner}
}

type wrapped struct {
	inner Searcher
}

func (w *wrapped) SystemID() string          { return w.inner.SystemID() }
func (w *wrapped) Protocol() domain.Protocol { return w.inner.Protocol() }

func (w *wrapped) Search(ctx context.Context, isbn13 string) (*Result, error) {
	start := time.Now()
	holdings, err := w.inner.ExecuteSearch(ctx, isbn13)
	if err != nil {
		return nil, Classify(err, w.inner.SystemID(), w.inner.Protocol(), "search")
	}
	return &Result{
		Holdings:     holdings,
		ResponseTime: time.Since(start),
		Protocol:     w.inner.Protocol(),
	}, nil
}

func (w *wrapped) HealthCheck(ctx context.Context) (status HealthStatus) {
	start := time.Now()
	status = HealthStatus{
		SystemID: w.inner.SystemID(),
		Protocol: w.inner.Protocol(),
	}
	defer func() {
		status.LatencyMS = time.Since(start).Milliseconds()
		status.CheckedAt = time.Now().UTC()
		if r := recover(); r != nil {
			status.Healthy = false
			status.Message = fmt.Sprintf("health check panicked: %v", r)
		}
	}()
	if err := w.inner.ExecuteHealthCheck(ctx); err != nil {
		status.Message = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// Base carries the identity and shared HTTP plumbing every concrete
// adapter embeds: a client with the per-request timeout, classified
// error constructors, and the fingerprint helper.
type Base struct {
	systemID   string
	systemName string
	catalogURL string
	protocol   domain.Protocol
	baseURL    string
	client     *http.Client
}

// NewBase builds the embedded base from a system and one of its adapter
// configs. The per-request timeout comes from the config's timeoutMs,
// falling back to DefaultRequestTimeout.
func NewBase(system *domain.LibrarySystem, cfg domain.AdapterConfig) Base {
	timeout := DefaultRequestTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return Base{
		systemID:   system.ID,
		systemName: system.Name,
		catalogURL: system.CatalogURL,
		protocol:   cfg.Protocol,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

func (b *Base) SystemID() string          { return b.systemID }
func (b *Base) SystemName() string        { return b.systemName }
func (b *Base) Protocol() domain.Protocol { return b.protocol }
func (b *Base) BaseURL() string           { return b.baseURL }
func (b *Base) CatalogURL() string        { return b.catalogURL }

// HTTPClient exposes the underlying client for adapters that need to
// layer on cookie jars or custom transports.
func (b *Base) HTTPClient() *http.Client { return b.client }

// SetHTTPClient replaces the underlying client, preserving the
// configured per-request timeout when the replacement has none.
func (b *Base) SetHTTPClient(c *http.Client) {
	if c.Timeout == 0 {
		c.Timeout = b.client.Timeout
	}
	b.client = c
}

// Fail wraps err as a classified error bound to this adapter.
func (b *Base) Fail(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, SystemID: b.systemID, Protocol: b.protocol, Err: err}
}

// Failf builds a classified error bound to this adapter.
func (b *Base) Failf(kind Kind, op, format string, args ...any) *Error {
	return b.Fail(kind, op, fmt.Errorf(format, args...))
}

// Fingerprint derives the dedup key for one item at one branch. copyKey
// is a barcode or item id when the upstream provides one.
func (b *Base) Fingerprint(isbn, branch, callNumber, copyKey string) string {
	return domain.BuildFingerprint(b.systemID, isbn, branch, callNumber, copyKey)
}

// Do sends req through the adapter's HTTP client, classifying transport
// failures. The client enforces the per-request timeout; ctx on the
// request carries the per-system deadline.
func (b *Base) Do(req *http.Request, op string) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, Classify(err, b.systemID, b.protocol, op)
	}
	return resp, nil
}

// CheckStatus enforces the default status mapping: 2xx passes, 401/403
// is an auth failure, 429 a rate limit, anything else a remote fault.
// On failure the body is drained and closed.
func (b *Base) CheckStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return b.Failf(KindAuth, op, "upstream rejected credentials: status %d", resp.StatusCode)
	case http.StatusTooManyRequests:
		return b.Failf(KindRateLimit, op, "upstream rate limited: status %d", resp.StatusCode)
	default:
		return b.Failf(KindConnection, op, "upstream fault: status %d", resp.StatusCode)
	}
}

// GetJSON fetches url and decodes the JSON response into out.
func (b *Base) GetJSON(ctx context.Context, op, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return b.Fail(KindUnknown, op, err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := b.Do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := b.CheckStatus(resp, op); err != nil {
		return err
	}
	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return b.Fail(KindParse, op, err)
	}
	return nil
}

// GetHTML fetches url and parses the response into a document tree.
func (b *Base) GetHTML(ctx context.Context, op, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, b.Fail(KindUnknown, op, err)
	}
	resp, err := b.Do(req, op)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := b.CheckStatus(resp, op); err != nil {
		return nil, err
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, b.Fail(KindParse, op, err)
	}
	return doc, nil
}

// Ping issues a lightweight GET against the adapter's base URL; shared
// by health checks that have no cheaper endpoint.
func (b *Base) Ping(ctx context.Context, url string) error {
	if url == "" {
		url = b.baseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.Do(req, "health")
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return b.Failf(KindConnection, "health", "upstream fault: status %d", resp.StatusCode)
	}
	return nil
}
