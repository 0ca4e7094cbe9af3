package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned when the remote answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d - %s", e.StatusCode, e.Body)
}

func newRequest(ctx context.Context, url, token string, body any) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func do(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode != http.StatusOK {
		defer r.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		return nil, &StatusError{StatusCode: r.StatusCode, Body: string(b)}
	}
	return r, nil
}

func PostJSON(ctx context.Context, url string, body any, resp any) error {
	return PostJSONWithAuth(ctx, nil, url, "", body, resp)
}

// PostJSONWithAuth posts body as JSON with a bearer token and decodes the reply into resp.
func PostJSONWithAuth(ctx context.Context, client *http.Client, url, token string, body any, resp any) error {
	req, err := newRequest(ctx, url, token, body)
	if err != nil {
		return err
	}
	r, err := do(client, req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if resp != nil {
		return json.NewDecoder(r.Body).Decode(resp)
	}
	return nil
}

func PostStream(ctx context.Context, url string, body any) (io.ReadCloser, error) {
	return PostStreamWithAuth(ctx, nil, url, "", body)
}

// PostStreamWithAuth returns the open response body; the caller closes it.
func PostStreamWithAuth(ctx context.Context, client *http.Client, url, token string, body any) (io.ReadCloser, error) {
	req, err := newRequest(ctx, url, token, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	r, err := do(client, req)
	if err != nil {
		return nil, err
	}
	return r.Body, nil
}
