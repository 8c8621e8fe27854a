package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// UserAgent for profile page requests
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinRequestInterval between requests to the same host
	MinRequestInterval = 500 * time.Millisecond
)

var (
	// ErrNoImage is returned when a profile page carries no usable image
	ErrNoImage = errors.New("no image on profile page")

	// ErrInvalidURL is returned for anything but an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid profile url")

	// ErrHostNotAllowed is returned for profile pages outside the allowed hosts
	ErrHostNotAllowed = errors.New("profile host not allowed")
)

// maxRedirects matches net/http's default policy
const maxRedirects = 10

// Resolver finds a player's picture on their profile page. Only pages on
// the allowed hosts (or their subdomains) are fetched, redirects included.
type Resolver struct {
	httpClient *http.Client
	interval   time.Duration
	hosts      []string

	mu          sync.Mutex
	cache       map[string]string
	lastRequest map[string]time.Time
}

// NewResolver creates a resolver for pages on the given hosts. A nil
// client gets a 10s timeout.
func NewResolver(httpClient *http.Client, hosts []string) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	r := &Resolver{
		interval:    MinRequestInterval,
		cache:       make(map[string]string),
		lastRequest: make(map[string]time.Time),
	}
	for _, h := range hosts {
		if h = strings.ToLower(strings.Trim(strings.TrimSpace(h), ".")); h != "" {
			r.hosts = append(r.hosts, h)
		}
	}

	client := *httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return r.check(req.URL)
	}
	r.httpClient = &client
	return r
}

// ImageURL returns the absolute image URL for a profile page
func (r *Resolver) ImageURL(ctx context.Context, profileURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, profileURL)
	}
	if err := r.check(u); err != nil {
		return "", err
	}

	r.mu.Lock()
	if img, ok := r.cache[u.String()]; ok {
		r.mu.Unlock()
		return img, nil
	}
	r.mu.Unlock()

	if err := r.wait(ctx, u.Host); err != nil {
		return "", err
	}

	doc, err := r.fetch(ctx, u.String())
	if err != nil {
		return "", err
	}

	src := ParseImage(doc)
	if src == "" {
		return "", ErrNoImage
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("bad image reference %q: %w", src, err)
	}
	img := u.ResolveReference(ref).String()

	r.mu.Lock()
	r.cache[u.String()] = img
	r.mu.Unlock()

	return img, nil
}

// check accepts absolute http(s) URLs on an allowed host
func (r *Resolver) check(u *url.URL) error {
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, u.String())
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	for _, allowed := range r.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}

// ParseImage picks the profile picture out of a page: og:image first,
// then the infobox image, then the first image in the main content.
func ParseImage(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[name="twitter:image"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}

	for _, sel := range []string{".infobox img", "#meta img", "main img", "img"} {
		if v, ok := doc.Find(sel).First().Attr("src"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (r *Resolver) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile page: %w", err)
	}
	return doc, nil
}

// wait enforces the per-host request interval
func (r *Resolver) wait(ctx context.Context, host string) error {
	r.mu.Lock()
	last := r.lastRequest[host]
	next := last.Add(r.interval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	r.lastRequest[host] = next
	r.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	log.Printf("[profile] rate limiting %s: waiting %v", host, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
