package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"oraculo/oraculo/utils/httputil"
	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
)

const OllamaBaseURL = "http://localhost:11434/api"

type OllamaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOllamaClient(cfg BackendConfig) (Completer, error) {
	base := cfg.BaseURL
	if base == "" {
		base = OllamaBaseURL
	}
	return &OllamaClient{baseURL: strings.TrimRight(base, "/"), apiKey: cfg.APIKey, httpClient: cfg.HTTPClient}, nil
}

type ollamaResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *OllamaClient) payload(req ChatRequest, stream bool) ChatRequest {
	out := req
	out.Stream = stream
	if req.System != "" {
		out.Messages = append([]Message{{Role: RoleSystem, Content: req.System}}, req.Messages...)
	}
	return out
}

func (c *OllamaClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "ollama_service_run")()
	var resp ollamaResponse
	if err := httputil.PostJSONWithAuth(ctx, c.httpClient, c.baseURL+"/chat", c.apiKey, c.payload(req, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// RunStream decodes Ollama's newline-delimited JSON stream.
func (c *OllamaClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	defer logging.LogDuration(ctx, "ollama_service_run_stream")()

	body, err := httputil.PostStreamWithAuth(ctx, c.httpClient, c.baseURL+"/chat", c.apiKey, c.payload(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)

	go func() {
		defer func() {
			close(ch)
			body.Close()
		}()

		decoder := json.NewDecoder(body)

		for {
			select {
			case <-ctx.Done():
				logging.AppLogger.Info("ollama RunStream context cancelled")
				return
			default:
			}

			var chunk ollamaResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				logging.ErrorLogger.Error("ollama stream decode error", zap.Error(err))
				send(ctx, ch, Chunk{Err: err})
				return
			}
			if chunk.Error != "" {
				send(ctx, ch, Chunk{Err: fmt.Errorf("ollama: %s", chunk.Error)})
				return
			}
			if chunk.Message.Content != "" {
				if !send(ctx, ch, Chunk{Text: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return ch, nil
}
