// Package fetcher retrieves cadastral-unit archives from the public
// registry into the staging directory. Two implementations exist: a plain
// HTTP fetcher that scrapes the catalog index page, and a browser-driven
// fetcher for deployments where the registry must be exercised through a
// real browser session.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"kuharvest/internal/util"
)

// Fetcher populates a staging directory with <unit>.zip archives.
// Failure to reach or read the catalog escalates; failure to download an
// individual archive is logged and that unit is simply absent from the run.
type Fetcher interface {
	FetchAll(ctx context.Context, destDir string) error
}

// unitID derives the unit identifier from an archive link or filename.
func unitID(link string) string {
	base := filepath.Base(link)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// filterLinks keeps only links whose unit identifier appears in want.
// An empty want list keeps everything.
func filterLinks(links, want []string) []string {
	if len(want) == 0 {
		return links
	}
	wanted := make(map[string]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}
	out := links[:0:0]
	for _, link := range links {
		if wanted[unitID(link)] {
			out = append(out, link)
		}
	}
	return out
}

// resolveLinks turns possibly-relative hrefs into absolute archive URLs.
func resolveLinks(base *url.URL, hrefs []string) []string {
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out
}

// downloadAll fetches each archive URL into destDir as <unit>.zip.
// Per-archive failures are warned and skipped: the unit is simply missing
// from the run and a later fetch reacquires it. Only staging-dir setup and
// context cancellation escalate.
func downloadAll(ctx context.Context, client *http.Client, logger *slog.Logger, archiveURLs []string, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir %s: %w", destDir, err)
	}

	fetched, failed := 0, 0
	for i, archiveURL := range archiveURLs {
		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch cancelled: %w", ctx.Err())
		default:
		}

		l := logger.With(slog.String("archive_url", archiveURL), slog.Int("archive_num", i+1), slog.Int("total", len(archiveURLs)))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
		if err != nil {
			l.Warn("Skip archive: create request failed.", "error", err)
			failed++
			continue
		}
		req.Header.Set("User-Agent", util.RandomUserAgent())
		req.Header.Set("Accept", "*/*")

		data, err := util.DownloadFile(client, req)
		if err != nil {
			l.Warn("Skip archive: download failed.", "error", err)
			failed++
			continue
		}

		outPath := filepath.Join(destDir, unitID(archiveURL)+".zip")
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			l.Warn("Skip archive: write failed.", "error", err)
			failed++
			continue
		}
		fetched++
		l.Debug("Archive fetched.", slog.String("path", outPath), slog.Int("bytes", len(data)))
	}

	logger.Info("Archive download finished.",
		slog.Int("fetched", fetched),
		slog.Int("failed", failed))
	return nil
}
