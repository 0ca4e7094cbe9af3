package llm

import (
	"context"
	"fmt"
	"iter"

	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(cfg BackendConfig) (Completer, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: client}, nil
}

// chat opens a chat seeded with every message but the last, which is returned as the input.
func (c *GeminiClient) chat(ctx context.Context, req ChatRequest) (*genai.Chat, string, error) {
	if len(req.Messages) == 0 {
		return nil, "", fmt.Errorf("gemini: empty request")
	}
	last := req.Messages[len(req.Messages)-1]
	history := make([]*genai.Content, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}
	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}
	chat, err := c.client.Chats.Create(ctx, req.Model, config, history)
	if err != nil {
		return nil, "", c.classify(err, req)
	}
	return chat, last.Content, nil
}

func (c *GeminiClient) classify(err error, req ChatRequest) error {
	if req.System != "" && mentionsSystemInstruction(err) {
		return fmt.Errorf("%w: %v", ErrSystemInstructionRejected, err)
	}
	return err
}

func (c *GeminiClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "gemini_service_run")()

	chat, input, err := c.chat(ctx, req)
	if err != nil {
		return "", err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: input})
	if err != nil {
		return "", c.classify(err, req)
	}
	return resp.Text(), nil
}

// RunStream pulls the first response synchronously so a rejected system
// instruction surfaces before any fragment is produced.
func (c *GeminiClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	defer logging.LogDuration(ctx, "gemini_service_run_stream")()

	chat, input, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(chat.SendMessageStream(ctx, genai.Part{Text: input}))
	resp, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, c.classify(err, req)
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stop()
		for ok {
			if err != nil {
				logging.ErrorLogger.Error("gemini stream error", zap.Error(err))
				send(ctx, ch, Chunk{Err: err})
				return
			}
			if text := resp.Text(); text != "" {
				if !send(ctx, ch, Chunk{Text: text}) {
					return
				}
			}
			resp, err, ok = next()
		}
	}()
	return ch, nil
}
