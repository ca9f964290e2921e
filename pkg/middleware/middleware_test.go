package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/redis"
)

const testSecret = "test-secret"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeUsers map[string]*models.User

func (f fakeUsers) GetByUUID(_ context.Context, userUUID string) (*models.User, error) {
	user, ok := f[userUUID]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "user does not exist")
	}
	return user, nil
}

var users = fakeUsers{
	"user-1":  {ID: 1, UUID: "user-1", PrivilegeID: models.PrivilegeUser},
	"admin-9": {ID: 9, UUID: "admin-9", PrivilegeID: models.PrivilegeAdmin},
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = Error(testLogger())
	e.Validator = Validator{}
	e.Use(Context())
	return e
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Msg
}

func TestErrorHandlerClientError(t *testing.T) {
	e := newEcho()
	e.GET("/x", func(echo.Context) error {
		return httperror.NewHTTPError(http.StatusForbidden, "no access")
	})

	rec := do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeMsg(t, rec), "no access")
}

func TestErrorHandlerInternalErrorHidesDetails(t *testing.T) {
	var logged []ectologger.EctoLogMessage
	e := echo.New()
	e.HTTPErrorHandler = Error(ectologger.NewEctoLogger(func(m ectologger.EctoLogMessage) { logged = append(logged, m) }))
	e.GET("/x", func(echo.Context) error {
		return errors.New("pq: connection refused")
	})

	rec := do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	msg := decodeMsg(t, rec)
	assert.True(t, strings.HasPrefix(msg, InternalErrorPrefix), msg)
	assert.NotContains(t, msg, "connection refused")
	assert.Len(t, strings.TrimPrefix(msg, InternalErrorPrefix), 36)
	assert.NotEmpty(t, logged)
}

func TestErrorHandlerEchoErrors(t *testing.T) {
	e := newEcho()
	rec := do(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeMsg(t, rec))
}

func TestContextSetsRequestID(t *testing.T) {
	e := newEcho()
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen = appctx.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := do(e, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))

	do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, seen, 36)
}

func callerEcho(mw echo.MiddlewareFunc) (*echo.Echo, *models.Caller) {
	e := newEcho()
	var seen models.Caller
	e.GET("/me", func(c echo.Context) error {
		caller, ok := appctx.GetCaller(c.Request().Context())
		if !ok {
			return errors.New("caller missing")
		}
		seen = caller
		return c.NoContent(http.StatusOK)
	}, mw)
	return e, &seen
}

func TestJWTAuthentication(t *testing.T) {
	auth := NewAuthenticator(NewJWTVerifier(testSecret, "bellflower"), users, testLogger())
	e, seen := callerEcho(Authentication(auth))

	token, err := GenerateJWT(testSecret, "bellflower", "admin-9", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := do(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Caller{ID: 9, UUID: "admin-9", Privilege: models.PrivilegeAdmin}, *seen)
}

func TestJWTAuthenticationRejects(t *testing.T) {
	auth := NewAuthenticator(NewJWTVerifier(testSecret, "bellflower"), users, testLogger())
	e, _ := callerEcho(Authentication(auth))

	wrongSecret, _ := GenerateJWT("other", "bellflower", "user-1", time.Minute)
	expired, _ := GenerateJWT(testSecret, "bellflower", "user-1", -time.Minute)
	wrongIssuer, _ := GenerateJWT(testSecret, "someone-else", "user-1", time.Minute)
	unknownUser, _ := GenerateJWT(testSecret, "bellflower", "ghost", time.Minute)

	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + wrongSecret,
		"expired":      "Bearer " + expired,
		"wrong issuer": "Bearer " + wrongIssuer,
		"unknown user": "Bearer " + unknownUser,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			rec := do(e, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestTestAuthUsesHeader(t *testing.T) {
	e, seen := callerEcho(TestAuth(users, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "user-1")
	rec := do(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), seen.ID)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeLimiter struct {
	result *redis.RateLimitResult
	err    error
	keys   []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ redis.Limit) (*redis.RateLimitResult, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func limitedEcho(limiter Limiter) *echo.Echo {
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		RateLimit(limiter, redis.Limit{Requests: 10, Window: time.Minute}, testLogger()))
	return e
}

func TestRateLimitAllows(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: true, Remaining: 9}}
	rec := do(limitedEcho(limiter), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	require.Len(t, limiter.keys, 1)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "ip:"))
}

func TestRateLimitRefuses(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: false, RetryIn: 1500 * time.Millisecond}}
	rec := do(limitedEcho(limiter), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	rec := do(limitedEcho(limiter), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type sendBody struct {
	Msg string `json:"msg" validate:"required,min=1,max=5"`
}

func TestBindRequest(t *testing.T) {
	e := newEcho()
	e.POST("/x", func(c echo.Context) error {
		var body sendBody
		if err := BindRequest(c, &body); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, MessageResponse{Msg: body.Msg})
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return do(e, req)
	}

	rec := post(`{"msg":"жжжжж"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(`{"msg":"жжжжжж"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMsg(t, rec), "msg")

	rec = post(`{"msg":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMsg(t, rec), "msg is required")

	rec = post(`{"msg":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
