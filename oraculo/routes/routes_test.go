package routes

import (
	"errors"
	"net/http"
	"testing"

	apperrors "oraculo/oraculo/utils/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.UnsupportedProvider("x"), http.StatusBadRequest},
		{apperrors.UnsupportedModel("x", "y"), http.StatusBadRequest},
		{apperrors.InvalidRequest("bad"), http.StatusBadRequest},
		{apperrors.SessionNotFound("s"), http.StatusNotFound},
		{apperrors.ProviderCall("x", errors.New("boom")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
