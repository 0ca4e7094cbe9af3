package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oraculo/oraculo/prompts"
	"oraculo/oraculo/services/llm"
	"oraculo/oraculo/services/loaders"
	"oraculo/oraculo/services/normalizer"
	"oraculo/oraculo/services/session"
	"oraculo/oraculo/types"
	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	previewChars = 200

	labelDocument        = "DOCUMENT_CONTENT"
	labelDocumentSummary = "TRUNCATED_DOCUMENT_SUMMARY"
)

// OraculoController runs the session lifecycle: initialize, exchange,
// clear and history.
type OraculoController struct {
	store   *session.Store
	gateway *llm.Gateway
	loader  loaders.Extractor
	persona *prompts.Persona
}

func NewOraculoController(store *session.Store, gateway *llm.Gateway, loader loaders.Extractor, persona *prompts.Persona) *OraculoController {
	if persona == nil {
		persona = prompts.Default()
	}
	return &OraculoController{store: store, gateway: gateway, loader: loader, persona: persona}
}

// Initialize loads and normalizes a document and starts a session grounded
// on it. An existing session with the same id is replaced.
func (c *OraculoController) Initialize(ctx context.Context, ownerID string, req types.InitializeRequest) (*types.InitializeResponse, error) {
	defer logging.LogDuration(ctx, "oraculo_initialize")()

	docType, err := types.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, apperrors.DocumentLoad(apperrors.ReasonUnsupportedDocumentType, err, err.Error())
	}
	handle, err := c.gateway.Open(req.Provider, req.Model, req.APIKey)
	if err != nil {
		return nil, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	release, err := c.store.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	raw, err := c.loader.Extract(ctx, docType, req.Source)
	if err != nil {
		logging.ErrorLogger.Error("document extraction failed",
			zap.String("session_id", sessionID),
			zap.String("document_type", string(docType)),
			zap.Error(err))
		if apperrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperrors.DocumentLoad(apperrors.ReasonExtractionFailed, err, "could not load document: "+err.Error())
	}
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.DocumentLoad(apperrors.ReasonEmptyDocument, nil, "no content could be extracted from the document")
	}
	if loaders.IsInterstitial(raw) {
		return nil, apperrors.DocumentLoad(apperrors.ReasonInterstitialPage, nil, "the page returned a browser check instead of its content, reload and try again")
	}

	res := normalizer.Normalize(raw)
	sess := &session.Session{
		ID:                 sessionID,
		OwnerID:            ownerID,
		Provider:           handle.Provider,
		Model:              handle.Model,
		DocumentType:       docType,
		NormalizedDocument: res.Excerpt,
		IsSummarized:       res.WasSummarized,
		Transcript: []session.Turn{{
			Role:    session.RoleDocumentContext,
			Content: c.contextContent(docType, res.Excerpt, res.WasSummarized),
		}},
		Handle: handle,
	}
	c.store.Put(ctx, sess)

	logging.AppLogger.Info("session initialized",
		zap.String("session_id", sessionID),
		zap.String("owner_id", ownerID),
		zap.String("provider", handle.Provider),
		zap.String("model", handle.Model),
		zap.String("document_type", string(docType)),
		zap.Bool("summarized", res.WasSummarized))

	return &types.InitializeResponse{
		SessionID:       sessionID,
		DocumentPreview: normalizer.Preview(normalizer.Sanitize(raw), previewChars),
		WasSummarized:   res.WasSummarized,
	}, nil
}

// Exchange sends one message and records the user and assistant turns together.
func (c *OraculoController) Exchange(ctx context.Context, ownerID string, req types.ExchangeRequest) (*types.ExchangeResponse, error) {
	defer logging.LogDuration(ctx, "oraculo_exchange")()

	message, err := validateExchange(req)
	if err != nil {
		return nil, err
	}
	release, err := c.store.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, handle, err := c.resolve(ctx, ownerID, req.SessionID, req.APIKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := handle.Invoke(ctx, message, c.history(sess), c.persona.SystemPrompt(sess.DocumentType))
	if err != nil {
		logging.ErrorLogger.Error("provider call failed",
			zap.String("session_id", sess.ID), zap.String("provider", handle.Provider), zap.Error(err))
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		return nil, apperrors.ProviderCall(handle.Provider, errors.New("empty response"))
	}

	c.store.Append(ctx, sess,
		session.Turn{Role: session.RoleUser, Content: message},
		session.Turn{Role: session.RoleAssistant, Content: reply, Metadata: replyMetadata(handle, start, false)},
	)
	return &types.ExchangeResponse{SessionID: sess.ID, Response: reply}, nil
}

// ExchangeStream forwards fragments on the first channel as they arrive.
// Both channels close when the exchange ends; the error channel then holds
// the failure, if any. Turns are recorded only when the stream completes
// and the caller is still there.
func (c *OraculoController) ExchangeStream(ctx context.Context, ownerID string, req types.ExchangeRequest) (<-chan string, <-chan error) {
	ch := make(chan string)
	errCh := make(chan error, 1)
	fail := func(err error) (<-chan string, <-chan error) {
		errCh <- err
		close(ch)
		close(errCh)
		return ch, errCh
	}

	message, err := validateExchange(req)
	if err != nil {
		return fail(err)
	}
	release, err := c.store.Lock(ctx, req.SessionID)
	if err != nil {
		return fail(err)
	}
	sess, handle, err := c.resolve(ctx, ownerID, req.SessionID, req.APIKey)
	if err != nil {
		release()
		return fail(err)
	}

	start := time.Now()
	stream, err := handle.Stream(ctx, message, c.history(sess), c.persona.SystemPrompt(sess.DocumentType))
	if err != nil {
		release()
		return fail(err)
	}

	go func() {
		defer release()
		defer close(errCh)
		defer close(ch)
		defer logging.LogDuration(ctx, "oraculo_exchange_stream")()

		var full strings.Builder
		for chunk := range stream {
			if chunk.Err != nil {
				logging.ErrorLogger.Error("stream failed, discarding exchange",
					zap.String("session_id", sess.ID), zap.String("provider", handle.Provider), zap.Error(chunk.Err))
				errCh <- apperrors.ProviderCall(handle.Provider, chunk.Err)
				return
			}
			frag := normalizer.SanitizeFragment(chunk.Text)
			if frag == "" {
				continue
			}
			full.WriteString(frag)
			select {
			case ch <- frag:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := ctx.Err(); err != nil {
			logging.AppLogger.Info("stream abandoned by caller, discarding exchange", zap.String("session_id", sess.ID))
			errCh <- err
			return
		}
		if strings.TrimSpace(full.String()) == "" {
			errCh <- apperrors.ProviderCall(handle.Provider, errors.New("empty response"))
			return
		}
		c.store.Append(ctx, sess,
			session.Turn{Role: session.RoleUser, Content: message},
			session.Turn{Role: session.RoleAssistant, Content: full.String(), Metadata: replyMetadata(handle, start, true)},
		)
	}()
	return ch, errCh
}

// ClearHistory empties the transcript but keeps the session and its document.
func (c *OraculoController) ClearHistory(ctx context.Context, ownerID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return apperrors.InvalidRequest("session_id is required")
	}
	release, err := c.store.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	sess, err := c.store.Resolve(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	c.store.Clear(ctx, sess)
	logging.AppLogger.Info("history cleared", zap.String("session_id", sessionID), zap.String("owner_id", ownerID))
	return nil
}

// GetHistoryPage returns a page counted back from the newest turn.
func (c *OraculoController) GetHistoryPage(ctx context.Context, ownerID, sessionID string, offset, limit int) (*types.HistoryPage, error) {
	turns, w, err := c.store.Page(ctx, sessionID, ownerID, offset, limit)
	if err != nil {
		return nil, err
	}
	views := make([]types.TurnView, len(turns))
	for i, t := range turns {
		views[i] = types.TurnView{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt, Metadata: t.Metadata}
	}
	return &types.HistoryPage{
		SessionID:  sessionID,
		Messages:   views,
		Offset:     w.Offset,
		Limit:      w.Limit,
		Total:      w.Total,
		HasMore:    w.HasMore,
		NextOffset: w.NextOffset,
	}, nil
}

func (c *OraculoController) ListActive(ctx context.Context, ownerID string) (*types.ActiveSessions, error) {
	recent, err := c.store.Recent(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &types.ActiveSessions{ActiveSessions: c.store.ActiveIDs(ownerID), Conversations: recent}, nil
}

func (c *OraculoController) ListProviders() []types.ProviderInfo {
	return c.gateway.Registry().Providers()
}

// Evict drops the cached copy of a session; the durable record stays.
func (c *OraculoController) Evict(ctx context.Context, ownerID, sessionID string) (bool, error) {
	release, err := c.store.Lock(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer release()
	return c.store.Evict(sessionID, ownerID), nil
}

func (c *OraculoController) Health() session.HealthSnapshot {
	return c.store.Health()
}

func validateExchange(req types.ExchangeRequest) (string, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return "", apperrors.InvalidRequest("session_id is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", apperrors.InvalidRequest("message is required")
	}
	return message, nil
}

// resolve returns the session and binds a backend handle if it has none.
// Must run under the session lock.
func (c *OraculoController) resolve(ctx context.Context, ownerID, sessionID, credential string) (*session.Session, *llm.Handle, error) {
	sess, err := c.store.Resolve(ctx, sessionID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Handle == nil {
		handle, err := c.gateway.Open(sess.Provider, sess.Model, credential)
		if err != nil {
			return nil, nil, err
		}
		sess.Handle = handle
	}
	return sess, sess.Handle, nil
}

func (c *OraculoController) contextContent(docType types.DocumentType, excerpt string, summarized bool) string {
	label := labelDocument
	if summarized {
		label = labelDocumentSummary
	}
	return fmt.Sprintf("%s (%s):\n<<<\n%s\n>>>\n%s", label, docType, excerpt, c.persona.DocumentInstruction)
}

// history maps the transcript to backend messages. A cleared session is
// still grounded on its document through a context message that is never stored.
func (c *OraculoController) history(sess *session.Session) []llm.Message {
	turns := sess.Snapshot()
	msgs := make([]llm.Message, 0, len(turns)+1)
	if len(turns) == 0 || turns[0].Role != session.RoleDocumentContext {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: c.contextContent(sess.DocumentType, sess.NormalizedDocument, sess.IsSummarized),
		})
	}
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}

func replyMetadata(h *llm.Handle, start time.Time, streamed bool) map[string]any {
	return map[string]any{
		"provider":         h.Provider,
		"model":            h.Model,
		"response_time_ms": time.Since(start).Milliseconds(),
		"streamed":         streamed,
	}
}
