package loaders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var errBrowserClosed = errors.New("browser closed")

// Browser renders pages with headless Chromium through Playwright.
type Browser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	timeout time.Duration
}

// NewBrowser starts the Playwright driver. Browsers must already be installed.
func NewBrowser() (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	return &Browser{pw: pw, timeout: 20 * time.Second}, nil
}

func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw != nil {
		b.pw.Stop()
		b.pw = nil
	}
}

func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	b.mu.Lock()
	pw := b.pw
	b.mu.Unlock()
	if pw == nil {
		return "", errBrowserClosed
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		return "", err
	}
	defer browser.Close()

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgents[0]),
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
	})
	if err != nil {
		return "", err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", err
	}
	defer page.Close()

	if err := page.Route("**/*.{png,jpg,jpeg,gif,svg,woff,woff2}", func(route playwright.Route) {
		route.Abort()
	}); err != nil {
		return "", err
	}

	timeout := b.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return "", err
	}
	return page.Content()
}
