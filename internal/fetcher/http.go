package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"kuharvest/internal/util"
)

// HTTP scrapes the catalog index page for archive links and downloads
// them directly. This is the default fetcher: the registry serves a plain
// directory listing.
type HTTP struct {
	CatalogURL string
	// Filter optionally restricts fetching to these unit identifiers.
	Filter []string
	Client *http.Client
	Logger *slog.Logger
}

// FetchAll discovers every archive on the catalog page and downloads each
// into destDir. Catalog-level failures (unreachable, bad status, unparsable
// page) are wrapped and returned; they halt the run.
func (f *HTTP) FetchAll(ctx context.Context, destDir string) error {
	client := f.Client
	if client == nil {
		client = util.DefaultHTTPClient()
	}

	links, err := f.discover(ctx, client)
	if err != nil {
		return fmt.Errorf("discover catalog %s: %w", f.CatalogURL, err)
	}
	links = filterLinks(links, f.Filter)
	// Stable download order to keep runs and logs comparable.
	sort.Strings(links)
	f.Logger.Info("Catalog discovery finished.",
		slog.String("catalog_url", f.CatalogURL),
		slog.Int("archives", len(links)))

	return downloadAll(ctx, client, f.Logger, links, destDir)
}

// discover fetches the catalog page and returns absolute URLs of every
// .zip anchor on it.
func (f *HTTP) discover(ctx context.Context, client *http.Client) ([]string, error) {
	base, err := url.Parse(f.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.CatalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", util.RandomUserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog GET: %w", err)
	}
	bodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog status %s", resp.Status)
	}
	if readErr != nil {
		return nil, fmt.Errorf("catalog read: %w", readErr)
	}

	root, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("catalog parse HTML: %w", err)
	}

	return resolveLinks(base, parseZipLinks(root)), nil
}

// parseZipLinks returns href attribute values ending with .zip.
func parseZipLinks(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key == "href" && strings.HasSuffix(strings.ToLower(a.Val), ".zip") {
					out = append(out, a.Val)
				}
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
