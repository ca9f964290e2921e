package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bellflower/pkg/chat"
	appctx "github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/notify"
	"github.com/Ramsey-B/bellflower/pkg/query"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
)

var (
	user  = models.Caller{ID: 1, UUID: "user-1", Privilege: models.PrivilegeUser}
	admin = models.Caller{ID: 9, UUID: "admin-9", Privilege: models.PrivilegeAdmin}
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// asCaller stands in for the authentication middleware.
func asCaller(who *models.Caller) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if who != nil {
				c.SetRequest(c.Request().WithContext(appctx.SetCaller(c.Request().Context(), *who)))
			}
			return next(c)
		}
	}
}

func newEcho(who *models.Caller) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Validator = middleware.Validator{}
	return e, e.Group("", asCaller(who))
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type fakeNotifier struct {
	got *notify.Input
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, in notify.Input) (*notify.Result, error) {
	f.got = &in
	if f.err != nil {
		return nil, f.err
	}
	return &notify.Result{Notification: &models.Notification{UUID: "n-1", Data: in.Body}}, nil
}

type fakeNotificationStore struct {
	access     repositories.NotificationAccess
	req        query.Request
	unreadOnly bool
	subject    *models.NotificationSubject
	uuids      []string
	readAt     time.Time
	deleted    []string
}

func (f *fakeNotificationStore) List(_ context.Context, access repositories.NotificationAccess, req query.Request) (*query.Page[models.Notification], error) {
	f.access, f.req = access, req
	items := []models.Notification{{UUID: "n-1", Subject: models.NotificationSubjectOther, Data: "hello"}}
	return query.NewPage(items, len(items), req.Normalize()), nil
}

func (f *fakeNotificationStore) Count(_ context.Context, access repositories.NotificationAccess, unreadOnly bool, subject *models.NotificationSubject) (int, error) {
	f.access, f.unreadOnly, f.subject = access, unreadOnly, subject
	return 7, nil
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, access repositories.NotificationAccess, uuids []string, now time.Time) (int64, error) {
	f.access, f.uuids, f.readAt = access, uuids, now
	return int64(len(uuids)), nil
}

func (f *fakeNotificationStore) Delete(_ context.Context, uuids []string) (int64, error) {
	f.deleted = uuids
	return int64(len(uuids)), nil
}

type fakeChatService struct {
	key     chat.ChannelKey
	body    string
	source  string
	req     query.Request
	ids     []int64
	deleted bool
	err     error
}

func (f *fakeChatService) Send(_ context.Context, _ models.Caller, key chat.ChannelKey, body, source string) (*models.ChatMessage, error) {
	f.key, f.body, f.source = key, body, source
	if f.err != nil {
		return nil, f.err
	}
	return &models.ChatMessage{ID: 1, Data: body}, nil
}

func (f *fakeChatService) Messages(_ context.Context, _ models.Caller, key chat.ChannelKey, req query.Request) (*query.Page[models.ChatMessage], error) {
	f.key, f.req = key, req
	if f.err != nil {
		return nil, f.err
	}
	items := []models.ChatMessage{{ID: 2, Data: "b"}, {ID: 1, Data: "a"}}
	return query.NewPage(items, len(items), req.Normalize()), nil
}

func (f *fakeChatService) DeleteMessages(_ context.Context, who models.Caller, ids []int64) (int64, error) {
	if !who.IsAdmin() {
		return 0, httperror.NewHTTPError(http.StatusForbidden, "only administrators may delete messages")
	}
	f.ids = ids
	return int64(len(ids)), nil
}

func (f *fakeChatService) CreateChat(_ context.Context, _ models.Caller, key chat.ChannelKey) (*models.Chat, error) {
	f.key = key
	if f.err != nil {
		return nil, f.err
	}
	return &models.Chat{ID: 42, Subject: key.Subject, SubjectUUID: key.SubjectUUID}, nil
}

func (f *fakeChatService) DeleteChat(_ context.Context, _ models.Caller, key chat.ChannelKey) error {
	f.key, f.deleted = key, true
	return f.err
}

type fakeSockets struct {
	key   chat.ChannelKey
	token string
}

func (f *fakeSockets) Serve(w http.ResponseWriter, _ *http.Request, key chat.ChannelKey, token string) error {
	f.key, f.token = key, token
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}
