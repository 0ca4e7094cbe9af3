package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	apperrors "oraculo/oraculo/utils/errors"
)

type fakeCompleter struct {
	mu           sync.Mutex
	rejectSystem bool
	calls        []ChatRequest
	reply        string
}

func (f *fakeCompleter) record(req ChatRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.rejectSystem && req.System != "" {
		return fmt.Errorf("%w: invalid system_instruction", ErrSystemInstructionRejected)
	}
	return nil
}

func (f *fakeCompleter) Run(ctx context.Context, req ChatRequest) (string, error) {
	if err := f.record(req); err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeCompleter) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	if err := f.record(req); err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: f.reply[:1]}
	ch <- Chunk{Text: f.reply[1:]}
	close(ch)
	return ch, nil
}

func testRegistry(f *fakeCompleter) *Registry {
	return NewRegistry(ProviderSpec{
		Name:        "Fake",
		Models:      []string{"fake-1"},
		RequiresKey: true,
		New: func(cfg BackendConfig) (Completer, error) {
			if cfg.APIKey == "bad" {
				return nil, errors.New("rejected key")
			}
			return f, nil
		},
	})
}

func TestOpenValidatesBeforeConstruction(t *testing.T) {
	constructed := false
	reg := NewRegistry(ProviderSpec{
		Name:   "Fake",
		Models: []string{"fake-1"},
		New: func(cfg BackendConfig) (Completer, error) {
			constructed = true
			return &fakeCompleter{}, nil
		},
	})
	gw := NewGateway(reg, nil)

	if _, err := gw.Open("Nope", "fake-1", "k"); !errors.Is(err, apperrors.ErrUnsupportedProvider) {
		t.Errorf("expected UnsupportedProvider, got %v", err)
	}
	if _, err := gw.Open("Fake", "nope", "k"); !errors.Is(err, apperrors.ErrUnsupportedModel) {
		t.Errorf("expected UnsupportedModel, got %v", err)
	}
	if constructed {
		t.Error("backend must not be constructed for invalid selections")
	}
}

func TestOpenCredentials(t *testing.T) {
	f := &fakeCompleter{reply: "ok"}
	gw := NewGateway(testRegistry(f), map[string]string{"Fake": "default-key"})

	if _, err := gw.Open("Fake", "fake-1", ""); err != nil {
		t.Errorf("expected default credential to be used, got %v", err)
	}
	if _, err := gw.Open("Fake", "fake-1", "bad"); !errors.Is(err, apperrors.ErrGatewayConfigurationFailed) {
		t.Errorf("expected GatewayConfigurationFailed, got %v", err)
	}
	if _, err := gw.Open("Fake", "fake-1", "has space"); !errors.Is(err, apperrors.ErrGatewayConfigurationFailed) {
		t.Errorf("expected malformed credential error, got %v", err)
	}

	bare := NewGateway(testRegistry(f), nil)
	if _, err := bare.Open("Fake", "fake-1", ""); !errors.Is(err, apperrors.ErrGatewayConfigurationFailed) {
		t.Errorf("expected missing credential error, got %v", err)
	}
}

func TestInvokeCapsSystemPrompt(t *testing.T) {
	f := &fakeCompleter{reply: "ok"}
	gw := NewGateway(testRegistry(f), nil)
	h, err := gw.Open("Fake", "fake-1", "key")
	if err != nil {
		t.Fatal(err)
	}
	history := []Message{{Role: RoleUser, Content: "context"}}
	if _, err := h.Invoke(context.Background(), "question", history, strings.Repeat("s", 5000)); err != nil {
		t.Fatal(err)
	}
	got := f.calls[0]
	if len([]rune(got.System)) != MaxSystemPromptChars {
		t.Errorf("expected capped system prompt, got %d chars", len(got.System))
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "question" || got.Messages[1].Role != RoleUser {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if got.Model != "fake-1" {
		t.Errorf("unexpected model %q", got.Model)
	}
}

func TestInvokeRetriesWithoutSystemPrompt(t *testing.T) {
	f := &fakeCompleter{reply: "ok", rejectSystem: true}
	gw := NewGateway(testRegistry(f), nil)
	h, _ := gw.Open("Fake", "fake-1", "key")

	text, err := h.Invoke(context.Background(), "q", nil, "be nice")
	if err != nil || text != "ok" {
		t.Fatalf("unexpected result %q %v", text, err)
	}
	if len(f.calls) != 2 || f.calls[1].System != "" {
		t.Errorf("expected one retry without system prompt, got %+v", f.calls)
	}
}

func TestStreamRetriesWithoutSystemPrompt(t *testing.T) {
	f := &fakeCompleter{reply: "hi", rejectSystem: true}
	gw := NewGateway(testRegistry(f), nil)
	h, _ := gw.Open("Fake", "fake-1", "key")

	ch, err := h.Stream(context.Background(), "q", nil, "be nice")
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	for c := range ch {
		b.WriteString(c.Text)
	}
	if b.String() != "hi" {
		t.Errorf("unexpected stream %q", b.String())
	}
	if len(f.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(f.calls))
	}
}

func TestProviderFailureIsTyped(t *testing.T) {
	reg := NewRegistry(ProviderSpec{
		Name:   "Broken",
		Models: []string{"m"},
		New: func(cfg BackendConfig) (Completer, error) {
			return failingCompleter{}, nil
		},
	})
	h, err := NewGateway(reg, nil).Open("Broken", "m", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Invoke(context.Background(), "q", nil, ""); !errors.Is(err, apperrors.ErrProviderCallFailed) {
		t.Errorf("expected ProviderCallFailed, got %v", err)
	}
}

type failingCompleter struct{}

func (failingCompleter) Run(context.Context, ChatRequest) (string, error) {
	return "", errors.New("boom")
}

func (failingCompleter) RunStream(context.Context, ChatRequest) (<-chan Chunk, error) {
	return nil, errors.New("boom")
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry("")
	if _, err := reg.Lookup(ProviderGroq, "llama-3.1-8b-instant"); err != nil {
		t.Error(err)
	}
	if _, err := reg.Lookup(ProviderGemini, "gemini-2.5-pro"); err != nil {
		t.Error(err)
	}
	if _, err := reg.Lookup(ProviderGemini, "llama-3.1-8b-instant"); !errors.Is(err, apperrors.ErrUnsupportedModel) {
		t.Errorf("expected UnsupportedModel, got %v", err)
	}
	providers := reg.Providers()
	if len(providers) != 5 || providers[0].Name != ProviderGroq {
		t.Errorf("unexpected providers %+v", providers)
	}
	if !reg.Override(ProviderGroq, []string{"custom"}, "http://x") {
		t.Error("expected override to apply")
	}
	if _, err := reg.Lookup(ProviderGroq, "custom"); err != nil {
		t.Error(err)
	}
	if reg.Override("Unknown", nil, "") {
		t.Error("unknown provider must not be overridden")
	}
}
