package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"oraculo/oraculo/config"
	"oraculo/oraculo/controllers"
	"oraculo/oraculo/middlewares"
	"oraculo/oraculo/types"
	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"
	"oraculo/oraculo/utils/sse"
	"oraculo/oraculo/utils/validation"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func OraculoRoutes(ctrl *controllers.OraculoController, cfg config.Config) chi.Router {
	v := validation.NewValidator()
	r := chi.NewRouter()

	r.Get("/providers", handleJSON(func(r *http.Request) (any, int, error) {
		return ctrl.ListProviders(), http.StatusOK, nil
	}))

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))

		gr.Post("/initialize", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.InitializeRequest
			if status, err := decode(r, v, &req); err != nil {
				return nil, status, err
			}
			res, err := ctrl.Initialize(r.Context(), middlewares.OwnerID(r.Context()), req)
			if err != nil {
				return nil, 0, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Post("/chat", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.ExchangeRequest
			if status, err := decode(r, v, &req); err != nil {
				return nil, status, err
			}
			res, err := ctrl.Exchange(r.Context(), middlewares.OwnerID(r.Context()), req)
			if err != nil {
				return nil, 0, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Post("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
			var req types.ExchangeRequest
			if status, err := decode(r, v, &req); err != nil {
				writeError(w, status, err)
				return
			}
			ch, errCh := ctrl.ExchangeStream(r.Context(), middlewares.OwnerID(r.Context()), req)
			streamSSE(w, req.SessionID, ch, errCh)
		})

		gr.Post("/clear", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.ClearRequest
			if status, err := decode(r, v, &req); err != nil {
				return nil, status, err
			}
			if err := ctrl.ClearHistory(r.Context(), middlewares.OwnerID(r.Context()), req.SessionID); err != nil {
				return nil, 0, err
			}
			return map[string]any{"success": true, "session_id": req.SessionID}, http.StatusOK, nil
		}))

		gr.Get("/history/{session_id}", handleJSON(func(r *http.Request) (any, int, error) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			page, err := ctrl.GetHistoryPage(r.Context(), middlewares.OwnerID(r.Context()), chi.URLParam(r, "session_id"), offset, limit)
			if err != nil {
				return nil, 0, err
			}
			return page, http.StatusOK, nil
		}))

		gr.Get("/sessions", handleJSON(func(r *http.Request) (any, int, error) {
			res, err := ctrl.ListActive(r.Context(), middlewares.OwnerID(r.Context()))
			if err != nil {
				return nil, 0, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Delete("/sessions/{session_id}/cache", handleJSON(func(r *http.Request) (any, int, error) {
			evicted, err := ctrl.Evict(r.Context(), middlewares.OwnerID(r.Context()), chi.URLParam(r, "session_id"))
			if err != nil {
				return nil, 0, err
			}
			return map[string]bool{"evicted": evicted}, http.StatusOK, nil
		}))
	})

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		streamWebsocket(w, r, ctrl, cfg)
	})
	return r
}

type flushWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.rc.Flush()
}

// streamSSE relays fragments as chunk events. Failures that happen before
// the first fragment are answered as plain JSON errors.
func streamSSE(w http.ResponseWriter, sessionID string, ch <-chan string, errCh <-chan error) {
	first, ok := <-ch
	if !ok {
		if err := <-errCh; err != nil {
			writeError(w, 0, err)
			return
		}
	}

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)
	bw := bufio.NewWriter(flushWriter{w: w, rc: http.NewResponseController(w)})

	if ok {
		if err := sse.SendChunk(bw, first); err != nil {
			drain(ch, errCh)
			return
		}
		for fragment := range ch {
			if err := sse.SendChunk(bw, fragment); err != nil {
				logging.RequestLogger.Warn("sse client gone", zap.String("session_id", sessionID), zap.Error(err))
				drain(ch, errCh)
				return
			}
		}
	}
	if err := <-errCh; err != nil {
		sse.SendError(bw, string(apperrors.KindOf(err)), err)
		return
	}
	sse.SendDone(bw, map[string]string{"session_id": sessionID})
}

// drain consumes what is left of a stream so its session lock is released.
func drain(ch <-chan string, errCh <-chan error) {
	for range ch {
	}
	<-errCh
}

type wsRequest struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	APIKey    string `json:"api_key,omitempty"`
}

func wsError(err error) []byte {
	data, _ := json.Marshal(errorBody{
		Error:  err.Error(),
		Kind:   string(apperrors.KindOf(err)),
		Reason: apperrors.ReasonOf(err),
	})
	return data
}

// streamWebsocket authenticates with the token in the first frame, then
// writes one text frame per fragment.
func streamWebsocket(w http.ResponseWriter, r *http.Request, ctrl *controllers.OraculoController, cfg config.Config) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := r.Context()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "unsupported data")
		return
	}
	var input wsRequest
	if err := json.Unmarshal(data, &input); err != nil {
		conn.Write(ctx, websocket.MessageText, wsError(apperrors.InvalidRequest("invalid json")))
		conn.Close(websocket.StatusUnsupportedData, "invalid json")
		return
	}
	ownerID, err := middlewares.OwnerFromToken(cfg.JWTSecret, input.Token)
	if err != nil {
		conn.Write(ctx, websocket.MessageText, wsError(err))
		conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	// the request context outlives a hijacked connection; tie the exchange
	// to the peer instead so a disconnect discards it
	streamCtx, cancel := context.WithCancel(conn.CloseRead(ctx))
	defer cancel()

	ch, errCh := ctrl.ExchangeStream(streamCtx, ownerID, types.ExchangeRequest{
		SessionID: input.SessionID,
		Message:   input.Message,
		APIKey:    input.APIKey,
	})
	for fragment := range ch {
		if err := conn.Write(streamCtx, websocket.MessageText, []byte(fragment)); err != nil {
			cancel()
			drain(ch, errCh)
			return
		}
	}
	if err := <-errCh; err != nil {
		conn.Write(ctx, websocket.MessageText, wsError(err))
		conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
