package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"oraculo/oraculo/utils/httputil"
	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
)

const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIClient speaks the OpenAI chat-completions protocol; Groq and OpenAI both use it.
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newOpenAIClient(name, defaultURL string, cfg BackendConfig) *OpenAIClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultURL
	}
	return &OpenAIClient{
		name:       name,
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
	}
}

// NewGroqClient returns a client pointing to the Groq chat endpoint.
func NewGroqClient(cfg BackendConfig) (Completer, error) {
	return newOpenAIClient("groq", GroqBaseURL, cfg), nil
}

func NewGPTClient(cfg BackendConfig) (Completer, error) {
	return newOpenAIClient("gpt", OpenAIBaseURL, cfg), nil
}

type openAIChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

func (c *OpenAIClient) payload(req ChatRequest, stream bool) openAIChatRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)
	return openAIChatRequest{Model: req.Model, Messages: msgs, Stream: stream}
}

func (c *OpenAIClient) classify(err error) error {
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest && mentionsSystemInstruction(err) {
		return fmt.Errorf("%w: %v", ErrSystemInstructionRejected, err)
	}
	return err
}

// Run executes a single completion request (non-streaming)
func (c *OpenAIClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, c.name+"_service_run")()

	var resp struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	url := c.baseURL + "/chat/completions"
	if err := httputil.PostJSONWithAuth(ctx, c.httpClient, url, c.apiKey, c.payload(req, false), &resp); err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("no choices returned")
}

// RunStream reads the server-sent event stream and forwards content deltas.
func (c *OpenAIClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	defer logging.LogDuration(ctx, c.name+"_service_run_stream")()

	url := c.baseURL + "/chat/completions"
	body, err := httputil.PostStreamWithAuth(ctx, c.httpClient, url, c.apiKey, c.payload(req, true))
	if err != nil {
		return nil, c.classify(err)
	}

	ch := make(chan Chunk)

	go func() {
		defer func() {
			close(ch)
			body.Close()
		}()

		reader := bufio.NewReader(body)

		for {
			select {
			case <-ctx.Done():
				logging.AppLogger.Info("stream context cancelled", zap.String("backend", c.name))
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil && !(err == io.EOF && strings.TrimSpace(line) != "") {
				if err == io.EOF {
					send(ctx, ch, Chunk{Err: io.ErrUnexpectedEOF})
					return
				}
				logging.ErrorLogger.Error("stream read error", zap.String("backend", c.name), zap.Error(err))
				send(ctx, ch, Chunk{Err: err})
				return
			}

			line = strings.TrimSpace(line)
			// skip comments and non-data lines
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
				Error *struct {
					Message string `json:"message"`
				} `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.ErrorLogger.Error("stream JSON parse error",
					zap.String("backend", c.name), zap.Error(err), zap.String("raw_line", data))
				continue
			}
			if chunk.Error != nil {
				send(ctx, ch, Chunk{Err: fmt.Errorf("%s stream error: %s", c.name, chunk.Error.Message)})
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, ch, Chunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
	}()

	return ch, nil
}
