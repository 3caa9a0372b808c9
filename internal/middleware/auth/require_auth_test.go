package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/usersvc/internal/service"
)

type stubVerifier struct {
	tokens map[string]string
	err    error
	seen   string
}

func (s *stubVerifier) Verify(_ context.Context, token string) (string, error) {
	s.seen = token
	if s.err != nil {
		return "", s.err
	}
	if u, ok := s.tokens[token]; ok {
		return u, nil
	}
	return "", service.ErrInvalidToken
}

func runGuard(t *testing.T, g *Guard, req *http.Request) (*httptest.ResponseRecorder, bool, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := g.RequireAuth(func(c echo.Context) error {
		called = true
		u, ok := UsernameFrom(c)
		require.True(t, ok)
		cu, ok := UsernameFromContext(c.Request().Context())
		require.True(t, ok)
		assert.Equal(t, u, cu)
		return c.String(http.StatusOK, u)
	})(c)
	return rec, called, err
}

func TestRequireAuth_CookieToken(t *testing.T) {
	t.Parallel()

	v := &stubVerifier{tokens: map[string]string{"good": "alice"}}
	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"})

	rec, called, err := runGuard(t, NewGuard(v, Cookies{}), req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequireAuth_BearerFallback(t *testing.T) {
	t.Parallel()

	v := &stubVerifier{tokens: map[string]string{"good": "bob"}}
	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")

	rec, called, err := runGuard(t, NewGuard(v, Cookies{}), req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "bob", rec.Body.String())
}

func TestRequireAuth_CookieWinsOverHeader(t *testing.T) {
	t.Parallel()

	v := &stubVerifier{tokens: map[string]string{"cookie": "alice", "header": "bob"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "cookie"})
	req.Header.Set(echo.HeaderAuthorization, "Bearer header")

	_, _, err := runGuard(t, NewGuard(v, Cookies{}), req)
	require.NoError(t, err)
	assert.Equal(t, "cookie", v.seen)
}

func TestRequireAuth_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		verifierErr error
		token       string
		wantCode    int
		wantMsg     string
		wantCleared bool
	}{
		{name: "missing token", token: "", wantCode: http.StatusUnauthorized, wantMsg: "missing access token"},
		{name: "invalid token", token: "bad", verifierErr: service.ErrInvalidToken, wantCode: http.StatusUnauthorized, wantMsg: "invalid token", wantCleared: true},
		{name: "expired token", token: "old", verifierErr: service.ErrExpired, wantCode: http.StatusUnauthorized, wantMsg: "token expired"},
		{name: "store failure", token: "any", verifierErr: errors.New("redis down"), wantCode: http.StatusInternalServerError, wantMsg: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := &stubVerifier{err: tt.verifierErr}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tt.token})
			}

			rec, called, err := runGuard(t, NewGuard(v, Cookies{}), req)
			assert.False(t, called)

			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.wantCode, he.Code)
			assert.Equal(t, tt.wantMsg, he.Message)

			cleared := map[string]bool{}
			for _, ck := range rec.Result().Cookies() {
				if ck.MaxAge < 0 {
					cleared[ck.Name] = true
				}
			}
			assert.Equal(t, tt.wantCleared, cleared[AccessCookie])
			assert.Equal(t, tt.wantCleared, cleared[RefreshCookie])
		})
	}
}

func TestCookies(t *testing.T) {
	t.Parallel()

	jar := Cookies{Secure: true}
	ck := jar.Create(AccessCookie, "tok", testTime)
	assert.Equal(t, "/", ck.Path)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.True(t, testTime.Equal(ck.Expires))

	del := Cookies{}.Delete(RefreshCookie)
	assert.Equal(t, RefreshCookie, del.Name)
	assert.Empty(t, del.Value)
	assert.Equal(t, -1, del.MaxAge)
	assert.False(t, del.Secure)
}

var testTime = time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
