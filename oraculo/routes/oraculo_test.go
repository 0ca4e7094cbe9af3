package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oraculo/oraculo/config"
	"oraculo/oraculo/controllers"
	"oraculo/oraculo/prompts"
	"oraculo/oraculo/services/llm"
	"oraculo/oraculo/services/session"
	"oraculo/oraculo/sources/psql/dao"
	"oraculo/oraculo/sources/psql/psqltest"
	"oraculo/oraculo/types"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "route-test-secret"

type scriptedCompleter struct {
	reply     string
	fragments []string
}

func (s scriptedCompleter) Run(context.Context, llm.ChatRequest) (string, error) {
	return s.reply, nil
}

func (s scriptedCompleter) RunStream(ctx context.Context, _ llm.ChatRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, f := range s.fragments {
			select {
			case ch <- llm.Chunk{Text: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// slowCompleter streams one fragment, then waits before the rest. finished
// closes when the stream goroutine exits.
type slowCompleter struct {
	wait     time.Duration
	finished chan struct{}
}

func (s *slowCompleter) Run(context.Context, llm.ChatRequest) (string, error) {
	return "ok", nil
}

func (s *slowCompleter) RunStream(ctx context.Context, _ llm.ChatRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	go func() {
		defer close(s.finished)
		defer close(ch)
		select {
		case ch <- llm.Chunk{Text: "first "}:
		case <-ctx.Done():
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.wait):
		}
		for _, f := range []string{"second ", "third"} {
			select {
			case ch <- llm.Chunk{Text: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type mapLoader map[string]string

func (m mapLoader) Extract(_ context.Context, _ types.DocumentType, locator string) (string, error) {
	return m[locator], nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWith(t, scriptedCompleter{reply: "It costs $5.", fragments: []string{"It costs ", "$5", "."}})
}

func newServerWith(t *testing.T, completer llm.Completer) *httptest.Server {
	t.Helper()
	db := psqltest.NewDatabase(t)
	store := session.NewStore(session.NewGormDurable(dao.NewConversationDAO(db.DB)), session.NewLocalCoordinator(), session.Options{})
	registry := llm.NewRegistry(llm.ProviderSpec{
		Name:   "Fake",
		Models: []string{"fake-1"},
		New:    func(llm.BackendConfig) (llm.Completer, error) { return completer, nil },
	})
	ctrl := controllers.NewOraculoController(store, llm.NewGateway(registry, nil),
		mapLoader{"doc": "The ticket costs five coins at the gate."}, prompts.Default())

	srv := httptest.NewServer(OraculoRoutes(ctrl, config.Config{JWTSecret: testSecret}))
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, owner string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": owner}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func call(t *testing.T, srv *httptest.Server, method, path, owner string, body any) *http.Response {
	t.Helper()
	var payload *strings.Reader
	if body == nil {
		payload = strings.NewReader("")
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		payload = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, srv.URL+path, payload)
	if err != nil {
		t.Fatal(err)
	}
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func initialize(t *testing.T, srv *httptest.Server, owner string) string {
	t.Helper()
	resp := call(t, srv, http.MethodPost, "/initialize", owner, types.InitializeRequest{
		Provider: "Fake", Model: "fake-1", DocumentType: "PlainText", Source: "doc", SessionID: "s1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d", resp.StatusCode)
	}
	var out types.InitializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.SessionID
}

func TestProvidersIsPublic(t *testing.T) {
	srv := newServer(t)
	resp := call(t, srv, http.MethodGet, "/providers", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var providers []types.ProviderInfo
	json.NewDecoder(resp.Body).Decode(&providers)
	if len(providers) != 1 || providers[0].Name != "Fake" {
		t.Fatalf("providers = %+v", providers)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	srv := newServer(t)
	resp := call(t, srv, http.MethodGet, "/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := newServer(t)
	initialize(t, srv, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"missing fields", http.MethodPost, "/initialize", map[string]string{"provider": "Fake"}, http.StatusBadRequest, "invalid_request"},
		{"unknown provider", http.MethodPost, "/initialize", types.InitializeRequest{Provider: "Nope", Model: "m", DocumentType: "PlainText", Source: "doc"}, http.StatusBadRequest, "unsupported_provider"},
		{"unknown model", http.MethodPost, "/initialize", types.InitializeRequest{Provider: "Fake", Model: "m", DocumentType: "PlainText", Source: "doc"}, http.StatusBadRequest, "unsupported_model"},
		{"bad document type", http.MethodPost, "/initialize", types.InitializeRequest{Provider: "Fake", Model: "fake-1", DocumentType: "Spreadsheet", Source: "doc"}, http.StatusBadRequest, "document_load_failed"},
		{"empty document", http.MethodPost, "/initialize", types.InitializeRequest{Provider: "Fake", Model: "fake-1", DocumentType: "PlainText", Source: "missing"}, http.StatusBadRequest, "document_load_failed"},
		{"unknown session", http.MethodPost, "/chat", types.ExchangeRequest{SessionID: "nope", Message: "hi"}, http.StatusNotFound, "session_not_found"},
		{"other owner", http.MethodGet, "/history/s1", nil, http.StatusNotFound, "session_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := "alice"
			if tt.name == "other owner" {
				owner = "bob"
			}
			resp := call(t, srv, tt.method, tt.path, owner, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.kind)
			}
		})
	}
}

func TestChatHistoryAndClear(t *testing.T) {
	srv := newServer(t)
	id := initialize(t, srv, "alice")

	resp := call(t, srv, http.MethodPost, "/chat", "alice", types.ExchangeRequest{SessionID: id, Message: "price?"})
	var reply types.ExchangeResponse
	json.NewDecoder(resp.Body).Decode(&reply)
	if reply.Response != "It costs S5." {
		t.Fatalf("response = %q", reply.Response)
	}

	resp = call(t, srv, http.MethodGet, "/history/"+id+"?offset=0&limit=abc", "alice", nil)
	var page types.HistoryPage
	json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 3 || page.Limit != 30 || len(page.Messages) != 3 {
		t.Fatalf("page = %+v", page)
	}

	resp = call(t, srv, http.MethodPost, "/clear", "alice", types.ClearRequest{SessionID: id})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	resp = call(t, srv, http.MethodGet, "/history/"+id, "alice", nil)
	page = types.HistoryPage{}
	json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 0 || page.HasMore {
		t.Fatalf("page after clear = %+v", page)
	}

	resp = call(t, srv, http.MethodGet, "/sessions", "alice", nil)
	var active types.ActiveSessions
	json.NewDecoder(resp.Body).Decode(&active)
	if len(active.ActiveSessions) != 1 || active.ActiveSessions[0] != id {
		t.Fatalf("active = %+v", active)
	}

	resp = call(t, srv, http.MethodDelete, "/sessions/"+id+"/cache", "alice", nil)
	var evicted map[string]bool
	json.NewDecoder(resp.Body).Decode(&evicted)
	if !evicted["evicted"] {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestChatStreamSSE(t *testing.T) {
	srv := newServer(t)
	id := initialize(t, srv, "alice")

	resp := call(t, srv, http.MethodPost, "/chat/stream", "alice", types.ExchangeRequest{SessionID: id, Message: "price?"})
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	var events, texts []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: {\"text\""):
			var chunk map[string]string
			json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk)
			texts = append(texts, chunk["text"])
		}
	}
	if got := strings.Join(events, ","); got != "chunk,chunk,chunk,done" {
		t.Fatalf("events = %s", got)
	}
	if got := strings.Join(texts, ""); got != "It costs S5." {
		t.Fatalf("text = %q", got)
	}

	resp = call(t, srv, http.MethodGet, "/history/"+id, "alice", nil)
	var page types.HistoryPage
	json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
}

func TestChatStreamUnknownSessionIsJSON(t *testing.T) {
	srv := newServer(t)
	resp := call(t, srv, http.MethodPost, "/chat/stream", "alice", types.ExchangeRequest{SessionID: "nope", Message: "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebsocketStream(t *testing.T) {
	srv := newServer(t)
	id := initialize(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseNow()

	first, _ := json.Marshal(wsRequest{Token: token(t, "alice"), SessionID: id, Message: "price?"})
	if err := conn.Write(ctx, websocket.MessageText, first); err != nil {
		t.Fatal(err)
	}
	var got strings.Builder
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("close = %v", err)
			}
			break
		}
		got.Write(data)
	}
	if got.String() != "It costs S5." {
		t.Fatalf("streamed %q", got.String())
	}
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseNow()

	conn.Write(ctx, websocket.MessageText, []byte(`{"token":"garbage","session_id":"s1","message":"hi"}`))
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "invalid token") {
		t.Fatalf("frame = %s", data)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("close = %v", err)
	}
}

func TestWebsocketDisconnectDiscardsExchange(t *testing.T) {
	completer := &slowCompleter{wait: 2 * time.Second, finished: make(chan struct{})}
	srv := newServerWith(t, completer)
	id := initialize(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := json.Marshal(wsRequest{Token: token(t, "alice"), SessionID: id, Message: "price?"})
	if err := conn.Write(ctx, websocket.MessageText, first); err != nil {
		t.Fatal(err)
	}
	if _, data, err := conn.Read(ctx); err != nil || string(data) != "first " {
		t.Fatalf("first frame = %q, %v", data, err)
	}
	conn.CloseNow()

	select {
	case <-completer.finished:
	case <-ctx.Done():
		t.Fatal("stream never finished")
	}

	// a sync exchange waits for the session lock, so the stream has settled
	resp := call(t, srv, http.MethodPost, "/chat", "alice", types.ExchangeRequest{SessionID: id, Message: "again"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	resp = call(t, srv, http.MethodGet, "/history/"+id, "alice", nil)
	var page types.HistoryPage
	json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3: the abandoned stream must not be recorded", page.Total)
	}
	for _, m := range page.Messages {
		if m.Content == "price?" {
			t.Errorf("abandoned question was stored: %+v", page.Messages)
		}
	}
}
