package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

const (
	// Bodies above this size are aborted mid-download. Gazette PDFs top out
	// around 40MB; anything bigger is a misconfigured URL.
	defaultMaxBodySize = 100 * 1024 * 1024

	// The senate backend answers 200 with this exact body when its
	// connection pool is exhausted. It counts as a failed attempt.
	overloadMarker = "Connection failed: Too many connections"
)

var (
	// ErrRobotsDisallowed is returned when robots.txt forbids the URL.
	ErrRobotsDisallowed = errors.New("fetch blocked by robots.txt")

	// ErrBodyTooLarge is returned when a response exceeds the size cap.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")

	// softRedirectRe matches the JavaScript redirect the senate site
	// serves instead of an HTTP 3xx on some document pages.
	softRedirectRe = regexp.MustCompile(`window\.location\.href = "(.*)"`)
)

// FetcherConfig controls retry, timeout and politeness behavior.
type FetcherConfig struct {
	UserAgent      string        `json:"user_agent"`
	MaxRetries     int           `json:"max_retries"`
	RetryBaseWait  time.Duration `json:"retry_base_wait"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodySize    int64         `json:"max_body_size"`
	RespectRobots  bool          `json:"respect_robots"`
}

// DefaultFetcherConfig mirrors the collector identity used across sources.
func DefaultFetcherConfig() *FetcherConfig {
	cc := ratelimit.DefaultCollectorConfig()
	return &FetcherConfig{
		UserAgent:      cc.UserAgent,
		MaxRetries:     cc.MaxRetries,
		RetryBaseWait:  2 * time.Second,
		RequestTimeout: cc.RequestTimeout,
		MaxBodySize:    defaultMaxBodySize,
		RespectRobots:  true,
	}
}

// FetchResult is the outcome of a single successful fetch.
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
}

// Fetcher retrieves pages and files from source sites with retries,
// per-source rate limiting and robots.txt compliance. All harvesters share
// one Fetcher so the politeness state is global to the process.
type Fetcher struct {
	client     *resty.Client
	limiter    *ratelimit.SourceRateLimiter
	compliance *Compliance
	config     *FetcherConfig
}

// NewFetcher builds a Fetcher. limiter and compliance may be shared with
// other components; compliance may be nil when RespectRobots is false.
func NewFetcher(config *FetcherConfig, limiter *ratelimit.SourceRateLimiter, compliance *Compliance) (*Fetcher, error) {
	if config == nil {
		config = DefaultFetcherConfig()
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if config.RespectRobots && compliance == nil {
		return nil, fmt.Errorf("compliance checker required when robots enforcement is on")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", config.UserAgent)
	client.SetTimeout(config.RequestTimeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &Fetcher{
		client:     client,
		limiter:    limiter,
		compliance: compliance,
		config:     config,
	}, nil
}

// Fetch downloads rawURL with a GET request. The source key selects the
// rate-limit bucket. Attempts are retried with a linearly growing wait;
// an HTTP 200 carrying the overload marker counts as a failure. A soft
// JavaScript redirect in the body is followed once, upgraded to https.
func (f *Fetcher) Fetch(ctx context.Context, source, rawURL string) (*FetchResult, error) {
	result, err := f.fetchWithRetries(ctx, source, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if target, ok := f.softRedirectTarget(result); ok {
		log.Debug().
			Str("source", source).
			Str("from", rawURL).
			Str("to", target).
			Msg("Following soft redirect")
		return f.fetchWithRetries(ctx, source, target, nil)
	}
	return result, nil
}

// FetchForm posts form fields to rawURL. Used by sources that paginate
// through POST endpoints. Soft redirects are not followed for forms.
func (f *Fetcher) FetchForm(ctx context.Context, source, rawURL string, form map[string]string) (*FetchResult, error) {
	return f.fetchWithRetries(ctx, source, rawURL, &requestPayload{Form: form})
}

// PostJSON posts payload as a JSON document and decodes the response into
// out. Used by GraphQL-backed sources.
func (f *Fetcher) PostJSON(ctx context.Context, source, rawURL string, payload, out interface{}) error {
	result, err := f.fetchWithRetries(ctx, source, rawURL, &requestPayload{JSON: payload})
	if err != nil {
		return err
	}
	if result.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d from %s", result.StatusCode, rawURL)
	}
	if err := json.Unmarshal(result.Body, out); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", rawURL, err)
	}
	return nil
}

// FetchJSON downloads rawURL with the given query parameters and decodes
// the JSON response into out.
func (f *Fetcher) FetchJSON(ctx context.Context, source, rawURL string, query map[string]string, out interface{}) error {
	target := rawURL
	if len(query) > 0 {
		vals := url.Values{}
		for k, v := range query {
			vals.Set(k, v)
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + vals.Encode()
	}

	result, err := f.fetchWithRetries(ctx, source, target, nil)
	if err != nil {
		return err
	}
	if result.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d from %s", result.StatusCode, target)
	}
	if err := json.Unmarshal(result.Body, out); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", target, err)
	}
	return nil
}

// requestPayload selects the request method: nil means GET, Form posts
// urlencoded fields, JSON posts a JSON document.
type requestPayload struct {
	Form map[string]string
	JSON interface{}
}

func (f *Fetcher) fetchWithRetries(ctx context.Context, source, rawURL string, payload *requestPayload) (*FetchResult, error) {
	if f.config.RespectRobots && f.compliance != nil {
		allowed, err := f.compliance.Allowed(ctx, rawURL)
		if err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("Robots check failed, assuming allowed")
		} else if !allowed {
			log.Info().Str("source", source).Str("url", rawURL).Msg("Skipping URL disallowed by robots.txt")
			return nil, fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
		}
		if delay := f.compliance.CrawlDelay(rawURL); delay > 0 {
			f.limiter.RaiseInterval(source, delay)
		}
	}

	var lastResult *FetchResult
	var lastErr error
	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		if err := f.limiter.WaitForSource(ctx, source); err != nil {
			return nil, err
		}

		result, err := f.doRequest(ctx, rawURL, payload)
		switch {
		case err != nil:
		case bytes.Contains(result.Body, []byte(overloadMarker)):
			err = fmt.Errorf("server overloaded: %s", rawURL)
		case result.StatusCode != 200:
			err = fmt.Errorf("status %d from %s", result.StatusCode, rawURL)
		}
		if err == nil {
			f.limiter.RecordSuccess(source)
			return result, nil
		}
		if result != nil {
			lastResult = result
		}

		lastErr = err
		f.limiter.RecordError(source, err)
		log.Warn().
			Err(err).
			Str("source", source).
			Str("url", rawURL).
			Int("attempt", attempt).
			Msg("Fetch attempt failed")

		if attempt < f.config.MaxRetries {
			wait := time.Duration(attempt) * f.config.RetryBaseWait
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// Callers distinguish "server answered with a bad status" from
	// "could not reach the server": the last response comes back for
	// status inspection, overload replies do not.
	if lastResult != nil && !bytes.Contains(lastResult.Body, []byte(overloadMarker)) {
		return lastResult, nil
	}
	return nil, fmt.Errorf("fetch failed after %d attempts: %w", f.config.MaxRetries, lastErr)
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string, payload *requestPayload) (*FetchResult, error) {
	req := f.client.R().SetContext(ctx).SetDoNotParseResponse(true)

	var resp *resty.Response
	var err error
	switch {
	case payload != nil && payload.Form != nil:
		resp, err = req.SetFormData(payload.Form).Post(rawURL)
	case payload != nil && payload.JSON != nil:
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(payload.JSON).Post(rawURL)
	default:
		resp, err = req.Get(rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.RawBody().Close()

	body, err := io.ReadAll(io.LimitReader(resp.RawBody(), f.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, rawURL)
	}

	finalURL := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
		FinalURL:    finalURL,
	}, nil
}

// softRedirectTarget extracts the first JavaScript location redirect from
// an HTML body, if present. The scheme is upgraded to https because the
// senate emits http targets that then bounce through a real redirect.
func (f *Fetcher) softRedirectTarget(result *FetchResult) (string, bool) {
	if result.StatusCode != 200 {
		return "", false
	}
	if !strings.Contains(result.ContentType, "html") && result.ContentType != "" {
		return "", false
	}
	if !bytes.Contains(result.Body, []byte("window.location.href")) {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return "", false
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "window.location.href") {
			script = s.Text()
			return false
		}
		return true
	})
	if script == "" {
		return "", false
	}

	m := softRedirectRe.FindStringSubmatch(script)
	if m == nil || m[1] == "" {
		return "", false
	}
	target := strings.Replace(m[1], "http://", "https://", 1)
	return target, true
}
