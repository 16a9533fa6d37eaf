// Package scraper crawls a site and turns its pages into documents that the
// loader can put into a persona's index.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/internal/models"
	"golang.org/x/time/rate"
)

// ScraperConfig represents the configuration for the scraper.
type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// Scraper crawls pages of a single host.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
}

// NewWithConfig creates a new scraper with the given configuration.
func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.MaxPages == 0 {
		config.MaxPages = 50
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	if parsedURL.Host != s.baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			// extensionless paths like /docs/intro
			if !strings.Contains(path[strings.LastIndex(path, "/")+1:], ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.Join(strings.Fields(content), " ")
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}
	return cleanContent(content)
}

// Scrape crawls from startURL, staying on the base host, and returns one
// document per page with text. The page URL is the document id so that
// re-scraping a page replaces it.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	c := &crawl{Scraper: s, visited: make(map[string]bool)}
	if err := c.visit(ctx, normalizeURL(startURL), 0); err != nil {
		return c.documents, err
	}
	return c.documents, nil
}

type crawl struct {
	*Scraper
	visited   map[string]bool
	documents []models.Document
}

func (c *crawl) visit(ctx context.Context, urlStr string, depth int) error {
	if depth > c.config.MaxDepth || c.visited[urlStr] || len(c.visited) >= c.config.MaxPages {
		return nil
	}
	if !c.shouldProcessURL(urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if c.config.OnProgress != nil {
		c.config.OnProgress(urlStr)
	}

	doc, err := c.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	if text := extractMainContent(doc); text != "" {
		title := strings.TrimSpace(doc.Find("title").First().Text())
		if title == "" {
			title = urlStr
		}
		c.documents = append(c.documents, models.Document{ID: urlStr, Title: title, Text: text})
	}

	base, _ := url.Parse(urlStr)
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			log.Debug().Err(err).Str("href", href).Msg("skipping unparsable link")
			return
		}
		links = append(links, normalizeURL(base.ResolveReference(ref).String()))
	})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.visit(ctx, link, depth+1); err != nil {
			log.Warn().Err(err).Str("url", link).Msg("error scraping page")
		}
	}
	return nil
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// normalizeURL drops the fragment so anchors on one page are visited once.
func normalizeURL(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
