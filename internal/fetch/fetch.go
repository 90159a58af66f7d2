// Package fetch performs single-URL fetches for the collectors and the
// keyword-extraction crawl. It layers UA rotation, optional uTLS
// fingerprinting, proxy rotation, rate limiting, and bot-protection detection
// on top of pkg/httpclient, and reports failures inside the Result rather
// than as errors so callers can treat every outcome uniformly.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fhalamzie/topicminer/internal/fingerprint"
	"github.com/fhalamzie/topicminer/pkg/httpclient"
	"github.com/fhalamzie/topicminer/pkg/proxy"
	"github.com/fhalamzie/topicminer/pkg/ratelimit"
	"github.com/fhalamzie/topicminer/pkg/useragent"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Result captures the outcome of one fetch. A transport-level failure leaves
// StatusCode zero and sets Error; an HTTP-level block sets Blocked/BlockSrc.
type Result struct {
	ID         string
	URL        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockSrc   string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	CreatedAt  time.Time
	Error      string // non-empty if the fetch failed before an HTTP response
}

// Failed reports whether the fetch produced no usable body.
func (r *Result) Failed() bool {
	return r.Error != "" || r.StatusCode >= 400 || r.Blocked
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// AcceptLanguage overrides the default en-US header; the rss and news
	// collectors set it to the target market's language.
	AcceptLanguage string
}

// Fetcher performs GET fetches with the configured evasion layers. Holding a
// single client across requests lets cookie jars and connections persist for
// the lifetime of the Fetcher.
type Fetcher struct {
	config Config
	client *httpclient.Client
}

// New initializes a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.5"
	}

	// One transport per fetcher; per-request proxy rotation goes through the
	// request context so the shared Proxy func stays immutable.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("fetch: setting up transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: creating client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch executes a GET request against targetURL. The returned error is
// always nil; failures are reported through Result so one blocked or broken
// URL never aborts a collector loop.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return &Result{
				ID:        uuid.New().String(),
				URL:       targetURL,
				CreatedAt: time.Now().UTC(),
				Error:     fmt.Sprintf("rate limiter failed: %v", err),
			}, nil
		}
	}

	start := time.Now()
	result := &Result{
		ID:        uuid.New().String(),
		URL:       targetURL,
		CreatedAt: start.UTC(),
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	result.Duration = time.Since(start)

	// Identify bot-protection challenges so collectors can log the source.
	Analyze(result, DefaultDetectors())

	return result, nil
}
