package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	rssEndpoint    = "/RSS"
	searchEndpoint = "/Search"

	// maxListingEntries caps candidates taken from a single listing.
	maxListingEntries = 100
)

// Candidate is a document observed on a registry listing. Signal is an
// opaque fingerprint of the listing entry; it changes when the entry
// changes but carries no further meaning.
type Candidate struct {
	RegistryID string
	URL        string
	Title      string
	Signal     string
}

// Discovery enumerates candidate documents from the registry's RSS feed
// and search listings.
type Discovery struct {
	client  *Client
	baseURL *url.URL
	logger  *slog.Logger
}

// NewDiscovery creates a discovery instance for the given registry base URL.
func NewDiscovery(client *Client, baseURL string, logger *slog.Logger) (*Discovery, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		client:  client,
		baseURL: parsed,
		logger:  logger,
	}, nil
}

// Discover polls the registry listings and returns deduplicated
// candidates. A single failing source is logged and skipped; an error
// is returned only when every source fails.
func (d *Discovery) Discover(ctx context.Context) ([]Candidate, error) {
	var candidates []Candidate
	seen := make(map[string]bool)

	appendNew := func(found []Candidate) {
		for _, c := range found {
			if seen[c.RegistryID] {
				continue
			}
			seen[c.RegistryID] = true
			candidates = append(candidates, c)
		}
	}

	rssFound, rssErr := d.discoverFromRSS(ctx)
	if rssErr != nil {
		d.logger.Warn("RSS discovery failed", "error", rssErr)
	}
	appendNew(rssFound)

	searchFound, searchErr := d.discoverFromSearch(ctx)
	if searchErr != nil {
		d.logger.Warn("Search discovery failed", "error", searchErr)
	}
	appendNew(searchFound)

	if rssErr != nil && searchErr != nil {
		return nil, errors.Join(rssErr, searchErr)
	}

	d.logger.Debug("Discovery round complete",
		"candidates", len(candidates),
		"from_rss", len(rssFound),
		"from_search", len(searchFound))
	return candidates, nil
}

func (d *Discovery) discoverFromRSS(ctx context.Context) ([]Candidate, error) {
	feedURL := *d.baseURL
	feedURL.Path = rssEndpoint

	result, err := d.client.Fetch(ctx, feedURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch RSS feed: %w", err)
	}

	return parseRSSListing(result.Body)
}

func (d *Discovery) discoverFromSearch(ctx context.Context) ([]Candidate, error) {
	now := time.Now().UTC()
	query := url.Values{}
	query.Set("date_from", now.AddDate(0, 0, -1).Format("2006-01-02"))
	query.Set("date_to", now.Format("2006-01-02"))

	searchURL := *d.baseURL
	searchURL.Path = searchEndpoint
	searchURL.RawQuery = query.Encode()

	result, err := d.client.Fetch(ctx, searchURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch search listing: %w", err)
	}

	return parseSearchListing(result.Body, d.baseURL)
}

// rssFeed models the subset of the registry RSS feed we consume.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

// parseRSSListing extracts candidates from an RSS feed body.
func parseRSSListing(body []byte) ([]Candidate, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse RSS feed: %w", err)
	}

	items := feed.Channel.Items
	if len(items) > maxListingEntries {
		items = items[:maxListingEntries]
	}

	var candidates []Candidate
	for _, item := range items {
		link := strings.TrimSpace(item.Link)
		registryID := ExtractRegistryID(link)
		if registryID == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			RegistryID: registryID,
			URL:        link,
			Title:      strings.TrimSpace(item.Title),
			Signal:     listingSignal(link, item.Title, item.PubDate),
		})
	}
	return candidates, nil
}

// parseSearchListing extracts candidates from a search results page.
// Document links carry /Document/ or /Case/ path segments.
func parseSearchListing(body []byte, base *url.URL) ([]Candidate, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var links []docLink
	collectDocLinks(root, &links)
	if len(links) > maxListingEntries {
		links = links[:maxListingEntries]
	}

	var candidates []Candidate
	for _, link := range links {
		ref, err := url.Parse(link.href)
		if err != nil {
			continue
		}
		absolute := base.ResolveReference(ref).String()
		registryID := ExtractRegistryID(absolute)
		if registryID == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			RegistryID: registryID,
			URL:        absolute,
			Title:      link.text,
			Signal:     listingSignal(absolute, link.text),
		})
	}
	return candidates, nil
}

type docLink struct {
	href string
	text string
}

func collectDocLinks(n *html.Node, links *[]docLink) {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			if strings.Contains(attr.Val, "/Document/") || strings.Contains(attr.Val, "/Case/") {
				*links = append(*links, docLink{href: attr.Val, text: anchorText(n)})
			}
			break
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectDocLinks(c, links)
	}
}

// anchorText returns the whitespace-normalized text content of a node.
func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// listingSignal fingerprints a listing entry. The hash is opaque: equal
// signals mean the entry looks unchanged, differing signals are only a
// hint that the document may have changed.
func listingSignal(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
