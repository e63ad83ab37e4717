package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"

	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

// ComplianceConfig configures robots.txt handling.
type ComplianceConfig struct {
	UserAgent    string        `json:"user_agent"`
	CacheTTL     time.Duration `json:"cache_ttl"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// DefaultComplianceConfig returns the robots defaults used by the
// harvest binaries.
func DefaultComplianceConfig() *ComplianceConfig {
	return &ComplianceConfig{
		UserAgent:    ratelimit.DefaultCollectorConfig().UserAgent,
		CacheTTL:     24 * time.Hour,
		FetchTimeout: 10 * time.Second,
	}
}

// robotsEntry is a cached per-host ruleset. A nil group means the host
// has no usable robots.txt and everything is allowed.
type robotsEntry struct {
	group   *robotstxt.Group
	fetched time.Time
}

// Compliance answers whether a URL may be fetched under the site's
// robots.txt and exposes the site's requested crawl delay. Rulesets are
// cached per host and refreshed after the configured TTL.
type Compliance struct {
	cache      map[string]*robotsEntry
	mu         sync.RWMutex
	client     *http.Client
	config     *ComplianceConfig
	agentToken string
}

// NewCompliance creates a robots.txt checker.
func NewCompliance(config *ComplianceConfig) *Compliance {
	if config == nil {
		config = DefaultComplianceConfig()
	}
	return &Compliance{
		cache:      make(map[string]*robotsEntry),
		client:     &http.Client{Timeout: config.FetchTimeout},
		config:     config,
		agentToken: agentToken(config.UserAgent),
	}
}

// agentToken reduces a full User-Agent header to the product token that
// robots.txt groups match on.
func agentToken(userAgent string) string {
	token := userAgent
	if i := strings.IndexAny(token, "/ "); i > 0 {
		token = token[:i]
	}
	if token == "" {
		token = "*"
	}
	return token
}

// Allowed reports whether rawURL may be fetched. Failures to retrieve or
// parse robots.txt allow the fetch; only an explicit disallow blocks it.
func (c *Compliance) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	entry, err := c.entryForHost(ctx, parsed)
	if err != nil {
		return true, err
	}
	if entry.group == nil {
		return true, nil
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return entry.group.Test(path), nil
}

// CrawlDelay returns the crawl delay robots.txt requests for the URL's
// host, or zero when none is set or the ruleset is not cached yet. It
// never triggers a fetch; Allowed populates the cache.
func (c *Compliance) CrawlDelay(rawURL string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[hostKey(parsed)]
	if !ok || entry.group == nil {
		return 0
	}
	return entry.group.CrawlDelay
}

func hostKey(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func (c *Compliance) entryForHost(ctx context.Context, u *url.URL) (*robotsEntry, error) {
	key := hostKey(u)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetched) < c.config.CacheTTL {
		return entry, nil
	}

	entry = c.fetchRobots(ctx, key)

	c.mu.Lock()
	c.cache[key] = entry
	c.mu.Unlock()
	return entry, nil
}

// fetchRobots retrieves and parses a host's robots.txt. Any failure is
// cached as allow-all so a broken robots endpoint cannot stall harvests.
func (c *Compliance) fetchRobots(ctx context.Context, baseURL string) *robotsEntry {
	entry := &robotsEntry{fetched: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/robots.txt", nil)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("host", baseURL).Msg("Could not fetch robots.txt")
		return entry
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return entry
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		log.Debug().Err(err).Str("host", baseURL).Msg("Could not parse robots.txt")
		return entry
	}

	entry.group = data.FindGroup(c.agentToken)
	return entry
}
