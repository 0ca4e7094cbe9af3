package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
)

// MaxSystemPromptChars is the longest system instruction sent to any backend.
const MaxSystemPromptChars = 2000

// Gateway resolves (provider, model, credential) into a Handle.
type Gateway struct {
	registry    *Registry
	credentials map[string]string
	httpClient  *http.Client
}

func NewGateway(registry *Registry, defaultCredentials map[string]string) *Gateway {
	creds := make(map[string]string, len(defaultCredentials))
	for k, v := range defaultCredentials {
		creds[k] = v
	}
	return &Gateway{registry: registry, credentials: creds, httpClient: http.DefaultClient}
}

func (g *Gateway) Registry() *Registry { return g.registry }

// Open validates the selection and builds the backend. The caller's
// credential wins over the configured default.
func (g *Gateway) Open(provider, model, credential string) (*Handle, error) {
	spec, err := g.registry.Lookup(provider, model)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(credential)
	if key == "" {
		key = g.credentials[provider]
	}
	if spec.RequiresKey && key == "" {
		return nil, apperrors.GatewayConfiguration(provider, nil, "no credential supplied or configured")
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return nil, apperrors.GatewayConfiguration(provider, nil, "malformed credential")
	}
	completer, err := spec.New(BackendConfig{
		Provider:   provider,
		APIKey:     key,
		BaseURL:    spec.BaseURL,
		HTTPClient: g.httpClient,
	})
	if err != nil {
		return nil, apperrors.GatewayConfiguration(provider, err, "backend construction failed")
	}
	return &Handle{Provider: provider, Model: model, completer: completer}, nil
}

// Handle is a resolved backend for one provider/model pair.
type Handle struct {
	Provider  string
	Model     string
	completer Completer
}

func NewHandle(provider, model string, c Completer) *Handle {
	return &Handle{Provider: provider, Model: model, completer: c}
}

func (h *Handle) request(input string, history []Message, system string, stream bool) ChatRequest {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: input})
	return ChatRequest{Model: h.Model, Messages: msgs, Stream: stream, System: capSystemPrompt(system)}
}

// Invoke performs one round-trip. A rejected system instruction is retried
// once without it.
func (h *Handle) Invoke(ctx context.Context, input string, history []Message, system string) (string, error) {
	defer logging.LogDuration(ctx, "gateway_invoke_"+h.Provider)()

	req := h.request(input, history, system, false)
	text, err := h.completer.Run(ctx, req)
	if err != nil && errors.Is(err, ErrSystemInstructionRejected) && req.System != "" {
		logging.AppLogger.Warn("system instruction rejected, retrying without it",
			zap.String("provider", h.Provider), zap.String("model", h.Model))
		req.System = ""
		text, err = h.completer.Run(ctx, req)
	}
	if err != nil {
		return "", apperrors.ProviderCall(h.Provider, err)
	}
	return text, nil
}

// Stream starts a streamed completion. The channel is finite and closes when
// the backend finishes, fails (last chunk carries Err) or ctx is done.
func (h *Handle) Stream(ctx context.Context, input string, history []Message, system string) (<-chan Chunk, error) {
	defer logging.LogDuration(ctx, "gateway_stream_"+h.Provider)()

	req := h.request(input, history, system, true)
	ch, err := h.completer.RunStream(ctx, req)
	if err != nil && errors.Is(err, ErrSystemInstructionRejected) && req.System != "" {
		logging.AppLogger.Warn("system instruction rejected, retrying stream without it",
			zap.String("provider", h.Provider), zap.String("model", h.Model))
		req.System = ""
		ch, err = h.completer.RunStream(ctx, req)
	}
	if err != nil {
		return nil, apperrors.ProviderCall(h.Provider, err)
	}
	return ch, nil
}

func capSystemPrompt(s string) string {
	if utf8.RuneCountInString(s) <= MaxSystemPromptChars {
		return s
	}
	return string([]rune(s)[:MaxSystemPromptChars])
}
