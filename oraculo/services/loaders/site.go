package loaders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"oraculo/oraculo/utils/logging"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// minSiteText is the shortest body text accepted as real content.
const minSiteText = 100

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var whitespace = regexp.MustCompile(`\s+`)

func (l *Loader) loadSite(ctx context.Context, url string) (string, error) {
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		text, err := l.fetchSite(ctx, url)
		if err == nil && len(text) > minSiteText {
			if IsInterstitial(text) && l.renderer != nil {
				return l.renderSite(ctx, url, text), nil
			}
			return text, nil
		}
		if err != nil {
			lastErr = err
			logging.AppLogger.Warn("site fetch failed",
				zap.String("url", url), zap.Int("attempt", i+1), zap.Error(err))
		} else {
			lastErr = nil
		}
		if i == l.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("could not load %s after %d attempts: %w", url, l.attempts, lastErr)
	}
	// every attempt returned a page without usable text
	return "", nil
}

func (l *Loader) fetchSite(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	return pageText(doc), nil
}

// renderSite retries an interstitial page in the browser, keeping the
// original text when rendering does not help.
func (l *Loader) renderSite(ctx context.Context, url, fallback string) string {
	defer logging.LogDuration(ctx, "site_render")()
	html, err := l.renderer.Render(ctx, url)
	if err != nil {
		logging.AppLogger.Warn("browser render failed", zap.String("url", url), zap.Error(err))
		return fallback
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fallback
	}
	text := pageText(doc)
	if len(text) <= minSiteText {
		return fallback
	}
	return text
}

// pageText drops page chrome and collapses whitespace in the body text.
func pageText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, aside").Remove()
	return strings.TrimSpace(whitespace.ReplaceAllString(doc.Find("body").Text(), " "))
}
