package llm

import (
	"context"
	"fmt"
	"strings"

	"oraculo/oraculo/utils/logging"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const anthropicMaxTokens = 4096

type AnthropicClient struct {
	client anthropic.Client
}

func NewAnthropicClient(cfg BackendConfig) (Completer, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}, nil
}

func (c *AnthropicClient) params(req ChatRequest) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		p.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return p
}

func (c *AnthropicClient) classify(err error, req ChatRequest) error {
	if req.System != "" && mentionsSystemInstruction(err) {
		return fmt.Errorf("%w: %v", ErrSystemInstructionRejected, err)
	}
	return err
}

func (c *AnthropicClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "anthropic_service_run")()

	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", c.classify(err, req)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (c *AnthropicClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	defer logging.LogDuration(ctx, "anthropic_service_run_stream")()

	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	// the first event tells us whether the request was accepted
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = fmt.Errorf("anthropic: empty stream")
		}
		return nil, c.classify(err, req)
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			event := stream.Current()
			if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					if !send(ctx, ch, Chunk{Text: d.Text}) {
						return
					}
				}
			}
			if !stream.Next() {
				break
			}
		}
		if err := stream.Err(); err != nil {
			logging.ErrorLogger.Error("anthropic stream error", zap.Error(err))
			send(ctx, ch, Chunk{Err: err})
		}
	}()
	return ch, nil
}
