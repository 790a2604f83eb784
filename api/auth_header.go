package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"nexus-gateway/storage"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const (
	bearerPrefix = "Bearer "
	subjectKey   = "subject"
	anonymous    = "anonymous"
)

func bearerToken(header http.Header) (string, error) {
	raw := strings.TrimSpace(header.Get(echo.HeaderAuthorization))
	if raw == "" {
		return "", errMissingAuthorization
	}
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", errBadAuthorization
	}
	token := strings.TrimSpace(raw[len(bearerPrefix):])
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// SessionMiddleware validates an optional bearer token. Requests without one
// proceed anonymously; a present but invalid token is rejected. A valid
// token is forwarded to the remote service as the caller's session.
func SessionMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header)
			if errors.Is(err, errMissingAuthorization) || auth == nil {
				c.Set(subjectKey, anonymous)
				return next(c)
			}
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			sub, err := auth.Subject(token)
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(subjectKey, sub)
			ctx := storage.WithAccessToken(c.Request().Context(), token)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func subject(c echo.Context) string {
	if sub, ok := c.Get(subjectKey).(string); ok && sub != "" {
		return sub
	}
	return anonymous
}
