// Package loaders turns a document locator into plain text.
package loaders

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"oraculo/oraculo/types"
	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
)

// InterstitialSignature is the text of the anti-bot page some sites serve
// instead of their content.
const InterstitialSignature = "Just a moment...Enable JavaScript and cookies to continue"

// ArchiveScheme prefixes locators that name an object in the document archive.
const ArchiveScheme = "minio://"

// IsInterstitial reports whether text is the anti-bot placeholder page.
func IsInterstitial(text string) bool {
	return strings.Contains(text, InterstitialSignature)
}

type Extractor interface {
	Extract(ctx context.Context, docType types.DocumentType, locator string) (string, error)
}

// Archive is the object store behind minio:// locators and the remote
// extraction cache.
type Archive interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetExtraction(ctx context.Context, locator string) (string, bool, error)
	PutExtraction(ctx context.Context, locator, documentType, text string) error
}

// Renderer loads a page in a real browser and returns its HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

type Options struct {
	HTTPClient *http.Client
	Archive    Archive
	Renderer   Renderer
	// Attempts and RetryDelay bound the site loader.
	Attempts   int
	RetryDelay time.Duration
	// WatchURL is the video page prefix the transcript loader fetches.
	WatchURL string
}

// Loader dispatches on document type.
type Loader struct {
	client     *http.Client
	archive    Archive
	renderer   Renderer
	attempts   int
	retryDelay time.Duration
	watchURL   string
}

func New(opts Options) *Loader {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = 3 * time.Second
	}
	if opts.WatchURL == "" {
		opts.WatchURL = "https://www.youtube.com/watch?v="
	}
	return &Loader{
		client:     opts.HTTPClient,
		archive:    opts.Archive,
		renderer:   opts.Renderer,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		watchURL:   opts.WatchURL,
	}
}

func (l *Loader) Extract(ctx context.Context, docType types.DocumentType, locator string) (string, error) {
	defer logging.LogDuration(ctx, "extract_"+string(docType))()
	locator = strings.TrimSpace(locator)

	switch docType {
	case types.DocumentSite:
		return l.cached(ctx, docType, locator, l.loadSite)
	case types.DocumentVideoTranscript:
		return l.cached(ctx, docType, locator, l.loadTranscript)
	case types.DocumentPDF:
		data, err := l.readSource(ctx, locator)
		if err != nil {
			return "", err
		}
		return extractPDF(data)
	case types.DocumentCSV:
		data, err := l.readSource(ctx, locator)
		if err != nil {
			return "", err
		}
		return extractCSV(data)
	case types.DocumentPlainText:
		data, err := l.readSource(ctx, locator)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", apperrors.DocumentLoad(apperrors.ReasonUnsupportedDocumentType, nil,
			fmt.Sprintf("document type %q is not supported", docType))
	}
}

// cached consults the archive before a remote fetch and stores usable results.
func (l *Loader) cached(ctx context.Context, docType types.DocumentType, locator string, load func(context.Context, string) (string, error)) (string, error) {
	if l.archive != nil {
		text, ok, err := l.archive.GetExtraction(ctx, locator)
		if err != nil {
			logging.AppLogger.Warn("extraction cache read failed", zap.String("locator", locator), zap.Error(err))
		} else if ok {
			logging.AppLogger.Info("extraction cache hit", zap.String("locator", locator))
			return text, nil
		}
	}

	text, err := load(ctx, locator)
	if err != nil {
		return "", err
	}
	if l.archive != nil && strings.TrimSpace(text) != "" && !IsInterstitial(text) {
		if err := l.archive.PutExtraction(ctx, locator, string(docType), text); err != nil {
			logging.AppLogger.Warn("extraction cache write failed", zap.String("locator", locator), zap.Error(err))
		}
	}
	return text, nil
}

// readSource resolves a file locator: an archive key or a local path.
func (l *Loader) readSource(ctx context.Context, locator string) ([]byte, error) {
	if key, ok := strings.CutPrefix(locator, ArchiveScheme); ok {
		if l.archive == nil {
			return nil, fmt.Errorf("archive locator %q but no archive is configured", locator)
		}
		data, err := l.archive.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read archive object %s: %w", key, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", locator, err)
	}
	return data, nil
}
