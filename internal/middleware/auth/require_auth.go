// Package auth guards echo routes with the access token of the caller.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usersvc/internal/logging"
	"github.com/Skotchmaster/usersvc/internal/service"
)

// CtxUsername is the echo context key holding the authenticated username.
const CtxUsername = "username"

type ctxKey struct{}

type Verifier interface {
	Verify(ctx context.Context, accessToken string) (string, error)
}

type Guard struct {
	Verifier Verifier
	Cookies  Cookies
}

func NewGuard(v Verifier, cookies Cookies) *Guard {
	return &Guard{Verifier: v, Cookies: cookies}
}

// AccessToken reads the access cookie, falling back to a bearer header.
func AccessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (g *Guard) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("mw", "require_auth")

		token := AccessToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		username, err := g.Verifier.Verify(ctx, token)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrExpired):
			l.Info("auth_rejected", "status", 401, "reason", err.Error())
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		case errors.Is(err, service.ErrInvalidToken):
			l.Info("auth_rejected", "status", 401, "reason", err.Error())
			c.SetCookie(g.Cookies.Delete(AccessCookie))
			c.SetCookie(g.Cookies.Delete(RefreshCookie))
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		default:
			l.Error("auth_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}

		c.Set(CtxUsername, username)
		ctx = context.WithValue(ctx, ctxKey{}, username)
		ctx = logging.IntoContext(ctx, logging.FromContext(ctx).With("username", username))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// UsernameFrom returns the username set by RequireAuth.
func UsernameFrom(c echo.Context) (string, bool) {
	u, ok := c.Get(CtxUsername).(string)
	return u, ok && u != ""
}

func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxKey{}).(string)
	return u, ok && u != ""
}
