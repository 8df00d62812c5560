// Package edge fetches the CDN's published list of edge server addresses.
package edge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
)

// DefaultURLs are tried in order.
var DefaultURLs = []string{
	"https://bunnycdn.com/api/system/edgeserverlist",
	"https://api.bunny.net/system/edgeserverlist",
}

const (
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps a response to prevent memory exhaustion.
	MaxBodySize = 10 * 1024 * 1024

	acceptHeader = "application/xml, text/xml, application/json;q=0.9, */*;q=0.1"
	previewLen   = 200
)

// Config configures a Source.
type Config struct {
	URLs      []string
	Timeout   time.Duration
	UserAgent string
}

// Source fetches edge addresses from the first candidate URL that yields any.
type Source struct {
	urls      []string
	timeout   time.Duration
	userAgent string
	client    *http.Client
	parsers   []Parser
	logger    *logging.Logger

	lastURL atomic.Value // string
}

// Option customises a Source.
type Option func(*Source)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithParsers replaces the parser strategy chain.
func WithParsers(p ...Parser) Option {
	return func(s *Source) { s.parsers = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source. Zero config values fall back to defaults.
func NewSource(cfg Config, opts ...Option) *Source {
	s := &Source{
		urls:      slices.Clone(cfg.URLs),
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		parsers:   DefaultParsers(),
		logger:    logging.WithComponent("edge"),
	}
	if len(s.urls) == 0 {
		s.urls = slices.Clone(DefaultURLs)
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.userAgent == "" {
		s.userAgent = brand.UserAgent(brand.Version)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

// URLs returns the candidate URLs in the order they are tried.
func (s *Source) URLs() []string {
	return slices.Clone(s.urls)
}

// LastURL returns the URL of the last successful fetch, or "".
func (s *Source) LastURL() string {
	u, _ := s.lastURL.Load().(string)
	return u
}

// Fetch returns the IPv4 and IPv6 edge addresses from the first URL that
// yields at least one. Transport and parse failures move on to the next URL.
func (s *Source) Fetch(ctx context.Context) (v4, v6 policy.AddressSet, err error) {
	var (
		lastErr error
		preview string
	)
	for _, url := range s.urls {
		if err := ctx.Err(); err != nil {
			return v4, v6, &FetchError{Attempts: len(s.urls), Last: err, Preview: preview}
		}

		body, contentType, err := s.get(ctx, url)
		if err != nil {
			s.logger.Warn("Edge list request failed", "url", url, "error", err)
			lastErr = err
			continue
		}
		preview = truncate(body, previewLen)
		if body == "" {
			lastErr = fmt.Errorf("%s: %w", url, ErrEmptyBody)
			continue
		}

		addrs, err := s.parse(url, contentType, body)
		if err != nil {
			lastErr = err
		}
		if addrs.Empty() {
			if err == nil {
				lastErr = fmt.Errorf("%s: %w", url, ErrNoAddresses)
			}
			s.logger.Warn("Edge list held no addresses", "url", url)
			continue
		}

		v4, v6 = addrs.Split()
		s.lastURL.Store(url)
		s.logger.Info("Fetched edge addresses", "url", url, "v4", v4.Len(), "v6", v6.Len())
		return v4, v6, nil
	}
	return v4, v6, &FetchError{Attempts: len(s.urls), Last: lastErr, Preview: preview}
}

func (s *Source) get(ctx context.Context, url string) (body, contentType string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", &TransportError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return "", "", &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return decodeBody(data), strings.ToLower(resp.Header.Get("Content-Type")), nil
}

// parse runs the strategy chain and returns the valid addresses of the
// first strategy that produced any. The returned error is the last parser
// failure, if any, and is informational only.
func (s *Source) parse(url, contentType, body string) (policy.AddressSet, error) {
	var lastErr error
	for _, p := range s.parsers {
		if !p.Match(contentType, body) {
			continue
		}
		candidates, err := p.Parse(body)
		if err != nil {
			perr := &ParseError{URL: url, Parser: p.Name, Err: err}
			s.logger.Debug("Parser failed", "url", url, "parser", p.Name, "error", err)
			lastErr = perr
			continue
		}
		addrs, rejected := policy.ParseAddressSet(candidates)
		s.logger.Debug("Parsed edge list", "url", url, "parser", p.Name, "valid", addrs.Len(), "rejected", rejected)
		if !addrs.Empty() {
			return addrs, nil
		}
	}
	return policy.AddressSet{}, lastErr
}

// decodeBody converts raw bytes to trimmed UTF-8 text without a BOM.
// Invalid sequences become U+FFFD.
func decodeBody(data []byte) string {
	text := string(bytes.ToValidUTF8(data, []byte(string(utf8.RuneError))))
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// avoid splitting a rune
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
