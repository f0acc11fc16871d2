package mw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"laundryonline/internal/apperr"
	"laundryonline/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCache_InvalidatesOnVersionChange(t *testing.T) {
	version := "1"
	calls := 0
	r := gin.New()
	r.GET("/machines", Cache(cache.New(time.Minute, time.Minute), time.Minute, func() string { return version }), func(c *gin.Context) {
		calls++
		c.String(http.StatusOK, "v%s", version)
	})

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/machines", nil))
		return w
	}

	first := get()
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get()
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "v1", second.Body.String())
	assert.Equal(t, 1, calls)

	version = "2"
	third := get()
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, "v2", third.Body.String())
	assert.Equal(t, 2, calls)
}

func TestCache_SkipsErrors(t *testing.T) {
	calls := 0
	r := gin.New()
	r.GET("/x", Cache(cache.New(time.Minute, time.Minute), time.Minute, nil), func(c *gin.Context) {
		calls++
		c.Status(http.StatusServiceUnavailable)
	})
	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	}
	assert.Equal(t, 2, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per IP")
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1, time.Minute)
	a := l.GetLimiter("1.1.1.1")
	assert.Same(t, a, l.GetLimiter("1.1.1.1"))
	l.GetLimiter("2.2.2.2")
	assert.Equal(t, 2, l.Len())
}

type fakeVerifier map[string]error

func (f fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if err, ok := f[token]; ok {
		return auth.Identity{}, err
	}
	return auth.Identity{UID: "u-" + token, Email: token + "@example.com"}, nil
}

func TestRequireAuth(t *testing.T) {
	v := fakeVerifier{
		"revoked": apperr.AuthFailure("auth.verify", "session has been signed out"),
		"db-down": apperr.Network("auth.user", errors.New("connection refused")),
	}
	r := gin.New()
	r.GET("/me", RequireAuth(v), func(c *gin.Context) {
		ident, ok := IdentityFromContext(c)
		assert.True(t, ok)
		c.String(http.StatusOK, ident.UID)
	})

	testCases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"revoked", "Bearer revoked", http.StatusUnauthorized},
		{"store unavailable", "Bearer db-down", http.StatusServiceUnavailable},
		{"valid", "bearer alice", http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "u-alice", w.Body.String())
			}
		})
	}
}
