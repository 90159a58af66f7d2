package keywords

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/fhalamzie/topicminer/internal/fetch"
)

// page is one successfully fetched HTML document.
type page struct {
	URL  string
	Body []byte
}

type crawlConfig struct {
	MaxDepth      int
	MaxPages      int
	Concurrency   int
	Domains       []string
	RespectRobots bool
	UserAgent     string
	QueueSize     int
}

// crawler runs a bounded same-domain BFS and collects the pages it fetches.
type crawler struct {
	cfg     crawlConfig
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	auditor *robotsAuditor

	visitedMu sync.RWMutex
	visited   map[string]struct{}

	pagesMu sync.Mutex
	pages   []page
}

type job struct {
	URL   string
	Depth int
}

func newCrawler(cfg crawlConfig, fetcher *fetch.Fetcher, auditor *robotsAuditor, logger *slog.Logger) *crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 30
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		auditor: auditor,
		visited: make(map[string]struct{}),
	}
}

// run crawls from the seeds and returns the collected pages.
func (c *crawler) run(ctx context.Context, seeds []string) ([]page, error) {
	queueSize := c.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	queue := make(chan job, queueSize)

	for _, seed := range seeds {
		if c.shouldVisit(seed) {
			c.markVisited(seed)
			queue <- job{URL: seed, Depth: 0}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Jobs discovered during processing also add to the WaitGroup before
	// entering the queue, so Wait covers seeds and discovered links alike.
	var jobsWg sync.WaitGroup
	jobsWg.Add(len(queue))

	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case j := <-queue:
					c.processJob(gCtx, j, queue, &jobsWg)
					jobsWg.Done()
				}
			}
		})
	}

	done := make(chan struct{})
	go func() {
		jobsWg.Wait()
		close(done)
	}()

	select {
	case <-gCtx.Done():
		return c.collected(), gCtx.Err()
	case <-done:
	}

	return c.collected(), nil
}

func (c *crawler) processJob(ctx context.Context, j job, queue chan<- job, wg *sync.WaitGroup) {
	if c.pageCount() >= c.cfg.MaxPages {
		return
	}

	if c.cfg.RespectRobots && c.auditor != nil {
		allowed, err := c.auditor.isAllowed(ctx, j.URL, c.cfg.UserAgent)
		if err != nil {
			c.logger.Warn("error checking robots.txt", "url", j.URL, "error", err)
		} else if !allowed {
			c.logger.Debug("url blocked by robots.txt", "url", j.URL)
			return
		}
	}

	c.logger.Debug("fetching", "url", j.URL, "depth", j.Depth)

	result, err := c.fetcher.Fetch(ctx, j.URL)
	if err != nil || result == nil || result.Failed() {
		c.logger.Warn("page fetch failed", "url", j.URL)
		return
	}

	contentType := ""
	if vals := result.Headers["Content-Type"]; len(vals) > 0 {
		contentType = vals[0]
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return
	}

	c.addPage(page{URL: j.URL, Body: result.Body})

	if j.Depth >= c.cfg.MaxDepth || c.pageCount() >= c.cfg.MaxPages {
		return
	}

	for _, link := range c.extractLinks(j.URL, result.Body) {
		if c.shouldVisit(link) {
			c.markVisited(link)
			wg.Add(1)
			select {
			case queue <- job{URL: link, Depth: j.Depth + 1}:
			case <-ctx.Done():
				wg.Done()
			}
		}
	}
}

func (c *crawler) addPage(p page) {
	c.pagesMu.Lock()
	defer c.pagesMu.Unlock()
	if len(c.pages) < c.cfg.MaxPages {
		c.pages = append(c.pages, p)
	}
}

func (c *crawler) pageCount() int {
	c.pagesMu.Lock()
	defer c.pagesMu.Unlock()
	return len(c.pages)
}

func (c *crawler) collected() []page {
	c.pagesMu.Lock()
	defer c.pagesMu.Unlock()
	out := make([]page, len(c.pages))
	copy(out, c.pages)
	return out
}

func (c *crawler) shouldVisit(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	u.Fragment = ""
	normalized := u.String()

	c.visitedMu.RLock()
	_, seen := c.visited[normalized]
	c.visitedMu.RUnlock()
	if seen {
		return false
	}

	if len(c.cfg.Domains) > 0 {
		inScope := false
		host := strings.ToLower(u.Hostname())
		for _, domain := range c.cfg.Domains {
			d := strings.ToLower(domain)
			if host == d || strings.HasSuffix(host, "."+d) {
				inScope = true
				break
			}
		}
		if !inScope {
			return false
		}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return true
}

func (c *crawler) markVisited(rawURL string) {
	u, err := url.Parse(rawURL)
	if err == nil {
		u.Fragment = ""
		rawURL = u.String()
	}

	c.visitedMu.Lock()
	c.visited[rawURL] = struct{}{}
	c.visitedMu.Unlock()
}

func (c *crawler) extractLinks(baseURL string, body []byte) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(u).String())
	})
	return links
}
