package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const cronSecretHeader = "x-cron-secret"

var (
	errCronSecretUnset = errors.New("cron secret is not configured")
	errBadCronSecret   = errors.New("invalid cron secret")
)

// CronAuth authorizes scheduler callbacks with a shared secret. The secret can
// arrive either as a bearer token or in the x-cron-secret header, which is
// what hosted cron services that cannot set Authorization use.
type CronAuth struct {
	secret []byte
}

func NewCronAuth(secret string) *CronAuth {
	return &CronAuth{secret: []byte(secret)}
}

// Authorize returns nil when the request carries the configured secret. A
// missing configuration is an operator error, not a client one.
func (a *CronAuth) Authorize(h http.Header) error {
	if len(a.secret) == 0 {
		return errCronSecretUnset
	}
	provided := h.Get(cronSecretHeader)
	if provided == "" {
		raw := strings.TrimSpace(h.Get(echo.HeaderAuthorization))
		if token, found := strings.CutPrefix(raw, "Bearer "); found {
			provided = strings.TrimSpace(token)
		}
	}
	if provided == "" {
		return errMissingAuthorization
	}
	if subtle.ConstantTimeCompare([]byte(provided), a.secret) != 1 {
		return errBadCronSecret
	}
	return nil
}
