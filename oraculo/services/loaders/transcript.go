package loaders

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	videoIDPattern      = regexp.MustCompile(`(?:youtube\.com\/(?:[^\/]+\/.+\/|(?:v|e(?:mbed)?)\/|.*[?&]v=)|youtu\.be\/)([^"&?\/\s]{11})`)
	captionTracksMarker = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

	ErrInvalidVideoURL = errors.New("invalid video url")
	ErrNoTranscript    = errors.New("video has no transcript")
)

// preferredCaptionLanguage is tried first when a video has several tracks.
const preferredCaptionLanguage = "pt"

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
}

type timedText struct {
	Cues []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// VideoID returns the 11-character id in a video URL, or "" when there is none.
func VideoID(url string) string {
	m := videoIDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (l *Loader) loadTranscript(ctx context.Context, url string) (string, error) {
	id := VideoID(url)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidVideoURL, url)
	}

	page, err := l.get(ctx, l.watchURL+id)
	if err != nil {
		return "", fmt.Errorf("fetch video page: %w", err)
	}
	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return "", err
	}
	track := pickTrack(tracks)

	body, err := l.get(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	return parseTimedText(body)
}

func (l *Loader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[0])
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	m := captionTracksMarker.FindSubmatch(page)
	if m == nil {
		return nil, ErrNoTranscript
	}
	var tracks []captionTrack
	if err := json.Unmarshal(m[1], &tracks); err != nil {
		return nil, fmt.Errorf("decode caption tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil, ErrNoTranscript
	}
	return tracks, nil
}

func pickTrack(tracks []captionTrack) captionTrack {
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, preferredCaptionLanguage) {
			return t
		}
	}
	return tracks[0]
}

// parseTimedText joins the cue texts of a timedtext XML document.
func parseTimedText(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	parts := make([]string, 0, len(doc.Cues))
	for _, c := range doc.Cues {
		// cue text arrives entity-escaped a second time
		text := strings.TrimSpace(html.UnescapeString(c.Text))
		if text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoTranscript
	}
	return strings.Join(parts, " "), nil
}
