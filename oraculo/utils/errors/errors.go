// Package errors holds the typed failures surfaced by the session engine.
// Import it as apperrors to keep the standard errors package usable.
package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnsupportedProvider        Kind = "unsupported_provider"
	KindUnsupportedModel           Kind = "unsupported_model"
	KindDocumentLoadFailed         Kind = "document_load_failed"
	KindSessionNotFound            Kind = "session_not_found"
	KindProviderCallFailed         Kind = "provider_call_failed"
	KindGatewayConfigurationFailed Kind = "gateway_configuration_failed"
	KindInvalidRequest             Kind = "invalid_request"
)

// Reason codes attached to KindDocumentLoadFailed.
const (
	ReasonExtractionFailed        = "extraction_failed"
	ReasonEmptyDocument           = "empty_document"
	ReasonInterstitialPage        = "interstitial_page"
	ReasonUnsupportedDocumentType = "unsupported_document_type"
)

// Sentinels for errors.Is checks; they match any *Error of the same Kind.
var (
	ErrUnsupportedProvider        = &Error{Kind: KindUnsupportedProvider}
	ErrUnsupportedModel           = &Error{Kind: KindUnsupportedModel}
	ErrDocumentLoadFailed         = &Error{Kind: KindDocumentLoadFailed}
	ErrSessionNotFound            = &Error{Kind: KindSessionNotFound}
	ErrProviderCallFailed         = &Error{Kind: KindProviderCallFailed}
	ErrGatewayConfigurationFailed = &Error{Kind: KindGatewayConfigurationFailed}
	ErrInvalidRequest             = &Error{Kind: KindInvalidRequest}
)

type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Reason when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func UnsupportedProvider(name string) *Error {
	return New(KindUnsupportedProvider, "provider %q is not registered", name)
}

func UnsupportedModel(provider, model string) *Error {
	return New(KindUnsupportedModel, "model %q is not available for provider %q", model, provider)
}

func DocumentLoad(reason string, err error, msg string) *Error {
	return &Error{Kind: KindDocumentLoadFailed, Reason: reason, Message: msg, Err: err}
}

func SessionNotFound(sessionID string) *Error {
	return New(KindSessionNotFound, "session %q not found", sessionID)
}

func ProviderCall(provider string, err error) *Error {
	return Wrap(KindProviderCallFailed, err, "provider %s", provider)
}

func GatewayConfiguration(provider string, err error, msg string) *Error {
	return &Error{Kind: KindGatewayConfigurationFailed, Message: fmt.Sprintf("%s: %s", provider, msg), Err: err}
}

func InvalidRequest(format string, args ...any) *Error {
	return New(KindInvalidRequest, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason code of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
