package routes

import (
	"encoding/json"
	"net/http"

	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"
	"oraculo/oraculo/utils/validation"

	"go.uber.org/zap"
)

type errorBody struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Reason string            `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindUnsupportedProvider,
		apperrors.KindUnsupportedModel,
		apperrors.KindDocumentLoadFailed,
		apperrors.KindGatewayConfigurationFailed,
		apperrors.KindInvalidRequest:
		return http.StatusBadRequest
	case apperrors.KindSessionNotFound:
		return http.StatusNotFound
	case apperrors.KindProviderCallFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status == 0 {
		status = statusFor(err)
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorLogger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	body := errorBody{
		Error:  err.Error(),
		Kind:   string(apperrors.KindOf(err)),
		Reason: apperrors.ReasonOf(err),
	}
	if fields := validation.FormatValidationErrors(err); len(fields) > 0 {
		body.Error = validation.Summary(err)
		body.Kind = string(apperrors.KindInvalidRequest)
		body.Fields = fields
	}
	writeJSON(w, status, body)
}

// handleJSON runs handler and encodes its result. A zero status on error
// is derived from the error kind.
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			writeError(w, status, err)
			return
		}
		writeJSON(w, status, res)
	}
}

// decode reads a JSON body into dst and validates its tags.
func decode(r *http.Request, v *validation.Validator, dst any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return http.StatusBadRequest, apperrors.InvalidRequest("invalid json: %v", err)
	}
	if err := v.ValidateStruct(dst); err != nil {
		return http.StatusBadRequest, err
	}
	return 0, nil
}
