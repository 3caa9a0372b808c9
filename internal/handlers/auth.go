package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usersvc/internal/logging"
	mwauth "github.com/Skotchmaster/usersvc/internal/middleware/auth"
	"github.com/Skotchmaster/usersvc/internal/service"
)

type AuthHandler struct {
	Svc     *service.AuthService
	Cookies mwauth.Cookies
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

func newTokenResponse(cr *service.Credentials) tokenResponse {
	return tokenResponse{
		AccessToken:      cr.AccessToken,
		RefreshToken:     cr.RefreshToken,
		AccessExpiresAt:  cr.AccessExpiresAt,
		RefreshExpiresAt: cr.RefreshExpiresAt,
		TokenType:        "bearer",
	}
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	c.SetCookie(h.Cookies.Delete(mwauth.AccessCookie))
	c.SetCookie(h.Cookies.Delete(mwauth.RefreshCookie))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	creds, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		l.Error("login_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(h.Cookies.Create(mwauth.AccessCookie, creds.AccessToken, creds.AccessExpiresAt))
	c.SetCookie(h.Cookies.Create(mwauth.RefreshCookie, creds.RefreshToken, creds.RefreshExpiresAt))
	return c.JSON(http.StatusOK, newTokenResponse(creds))
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	token := ""
	if ck, err := c.Cookie(mwauth.RefreshCookie); err == nil {
		token = ck.Value
	}
	if token == "" {
		var req struct {
			RefreshToken string `json:"refresh_token" form:"refresh_token"`
		}
		if err := c.Bind(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	creds, err := h.Svc.Refresh(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken),
			errors.Is(err, service.ErrExpired),
			errors.Is(err, service.ErrSessionNotFound):
			h.clearCookies(c)
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(h.Cookies.Create(mwauth.AccessCookie, creds.AccessToken, creds.AccessExpiresAt))
	return c.JSON(http.StatusOK, newTokenResponse(creds))
}

// Logout works with expired credentials too, so it is not behind RequireAuth.
// Cookies are cleared whatever the outcome.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	access := mwauth.AccessToken(c)
	refresh := ""
	if ck, err := c.Cookie(mwauth.RefreshCookie); err == nil {
		refresh = ck.Value
	}
	if refresh == "" {
		var req struct {
			RefreshToken string `json:"refresh_token" form:"refresh_token"`
		}
		if err := c.Bind(&req); err == nil {
			refresh = req.RefreshToken
		}
	}

	h.clearCookies(c)
	if access == "" && refresh == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	username, err := h.Svc.LogoutTokens(ctx, access, refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidToken.Error())
		}
		l.Error("logout_failed", "status", 500, "username", username, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
