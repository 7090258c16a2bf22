package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, exp, err := iss.Issue(domain.User{ID: 42, Admin: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	c, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: 42, Admin: true}, c)
}

func TestIssuer_RejectsBadTokens(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	good, _, err := iss.Issue(domain.User{ID: 1})
	require.NoError(t, err)

	other, _, err := NewIssuer("other", time.Hour).Issue(domain.User{ID: 1})
	require.NoError(t, err)

	expiredIss := NewIssuer("secret", time.Hour)
	expiredIss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIss.Issue(domain.User{ID: 1})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not.a.token",
		"truncated":    good[:len(good)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.Unauthorized))
		})
	}
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", h)
	assert.True(t, CheckPassword(h, "hunter22"))
	assert.False(t, CheckPassword(h, "hunter23"))
	assert.False(t, CheckPassword("not-a-hash", "hunter22"))
}

func recordFailure(w http.ResponseWriter, _ *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		w.WriteHeader(http.StatusForbidden)
	default:
		w.WriteHeader(http.StatusUnauthorized)
	}
	_, _ = w.Write([]byte(err.Error()))
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	userToken, _, err := iss.Issue(domain.User{ID: 5})
	require.NoError(t, err)
	adminToken, _, err := iss.Issue(domain.User{ID: 6, Admin: true})
	require.NoError(t, err)

	var seen domain.Caller
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	authOnly := Middleware(iss, recordFailure)(final)
	adminOnly := Middleware(iss, recordFailure)(RequireAdmin(recordFailure)(final))

	tests := []struct {
		name     string
		handler  http.Handler
		header   string
		wantCode int
		wantBody string
	}{
		{"missing header", authOnly, "", http.StatusUnauthorized, ErrMsgAuthRequired},
		{"wrong scheme", authOnly, "Basic abc", http.StatusUnauthorized, ErrMsgAuthRequired},
		{"bad token", authOnly, "Bearer nope", http.StatusUnauthorized, ErrMsgInvalidToken},
		{"user ok", authOnly, "Bearer " + userToken, http.StatusNoContent, ""},
		{"user on admin route", adminOnly, "Bearer " + userToken, http.StatusForbidden, ErrMsgAdminOnly},
		{"admin ok", adminOnly, "bearer " + adminToken, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
	assert.Equal(t, domain.Caller{ID: 6, Admin: true}, seen)
}
