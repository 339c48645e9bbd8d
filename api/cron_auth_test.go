package api

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCronAuthAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		headers map[string]string
		wantErr error
	}{
		{
			name:    "header secret",
			secret:  "s3cret",
			headers: map[string]string{cronSecretHeader: "s3cret"},
		},
		{
			name:    "bearer secret",
			secret:  "s3cret",
			headers: map[string]string{echo.HeaderAuthorization: "Bearer s3cret"},
		},
		{
			name:    "wrong secret",
			secret:  "s3cret",
			headers: map[string]string{cronSecretHeader: "nope"},
			wantErr: errBadCronSecret,
		},
		{
			name:    "no credentials",
			secret:  "s3cret",
			wantErr: errMissingAuthorization,
		},
		{
			name:    "unconfigured",
			secret:  "",
			headers: map[string]string{cronSecretHeader: "anything"},
			wantErr: errCronSecretUnset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			err := NewCronAuth(tt.secret).Authorize(h)
			if err != tt.wantErr {
				t.Fatalf("Authorize() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCronAuthHeaderTakesPrecedenceOverBearer(t *testing.T) {
	h := make(http.Header)
	h.Set(cronSecretHeader, "s3cret")
	h.Set(echo.HeaderAuthorization, "Bearer something-else")

	if err := NewCronAuth("s3cret").Authorize(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
