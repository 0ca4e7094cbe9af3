// Package llm is the provider gateway: a static registry of completion
// backends behind one Completer interface.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSystemInstructionRejected is returned by a backend that refused the
// system instruction before producing any output.
var ErrSystemInstructionRejected = errors.New("system instruction rejected")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  any       `json:"options,omitempty"`
	// System is sent the way each backend expects it.
	System string `json:"-"`
}

// Chunk is one streamed fragment. A chunk with Err set is the last one sent.
type Chunk struct {
	Text string
	Err  error
}

// Completer is implemented by every backend.
type Completer interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
	RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error)
}

// BackendConfig is what a Factory needs to build a Completer.
type BackendConfig struct {
	Provider   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type Factory func(cfg BackendConfig) (Completer, error)

// send delivers c unless ctx is done first.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// mentionsSystemInstruction reports whether a backend error is about the system instruction.
func mentionsSystemInstruction(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "system_instruction") ||
		strings.Contains(msg, "systeminstruction") ||
		strings.Contains(msg, "system instruction") ||
		strings.Contains(msg, "system prompt")
}
