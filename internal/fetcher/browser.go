package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"kuharvest/internal/util"
)

// Browser discovers archive links by loading the catalog page in a real
// (headless) browser session. Some registry frontends only materialize
// their download links after script execution; this fetcher covers those.
// The archives themselves are still downloaded over plain HTTP.
type Browser struct {
	CatalogURL string
	// ChromePath optionally pins the browser binary. Empty lets the
	// launcher resolve one.
	ChromePath string
	Filter     []string
	Client     *http.Client
	Logger     *slog.Logger
}

// FetchAll renders the catalog page, collects .zip anchors, and downloads
// each archive into destDir.
func (f *Browser) FetchAll(ctx context.Context, destDir string) error {
	links, err := f.discover(ctx)
	if err != nil {
		return fmt.Errorf("browser discover catalog %s: %w", f.CatalogURL, err)
	}
	links = filterLinks(links, f.Filter)
	sort.Strings(links)
	f.Logger.Info("Browser catalog discovery finished.",
		slog.String("catalog_url", f.CatalogURL),
		slog.Int("archives", len(links)))

	client := f.Client
	if client == nil {
		client = util.DefaultHTTPClient()
	}
	return downloadAll(ctx, client, f.Logger, links, destDir)
}

func (f *Browser) discover(ctx context.Context) ([]string, error) {
	base, err := url.Parse(f.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}

	l := launcher.New().Headless(true)
	if f.ChromePath != "" {
		l = l.Bin(f.ChromePath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			f.Logger.Warn("Failed to close browser session.", "error", cerr)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: f.CatalogURL})
	if err != nil {
		return nil, fmt.Errorf("open catalog page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait catalog page load: %w", err)
	}

	anchors, err := page.Elements("a")
	if err != nil {
		return nil, fmt.Errorf("query catalog anchors: %w", err)
	}

	var hrefs []string
	for _, a := range anchors {
		href, err := a.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		if strings.HasSuffix(strings.ToLower(*href), ".zip") {
			hrefs = append(hrefs, *href)
		}
	}
	return resolveLinks(base, hrefs), nil
}
