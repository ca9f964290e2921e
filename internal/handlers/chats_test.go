package handlers

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bellflower/pkg/chat"
	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
)

func newChatServer(who *models.Caller, service *fakeChatService, sockets *fakeSockets) *echo.Echo {
	e, g := newEcho(who)
	h := NewChatHandler(service, sockets, testLogger())
	h.Register(g)
	h.RegisterSocket(e)
	return e
}

var a7 = chat.ChannelKey{Subject: models.ChatSubjectApplication, SubjectUUID: "A7"}

func TestSendMessage(t *testing.T) {
	service := &fakeChatService{}
	e := newChatServer(&user, service, &fakeSockets{})

	rec := do(e, http.MethodPost, "/send_message?chat_subject=Application&subject_uuid=A7", `{"msg":"hi there"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "message sent", decode[middleware.MessageResponse](t, rec).Msg)
	assert.Equal(t, a7, service.key)
	assert.Equal(t, "hi there", service.body)
	assert.Equal(t, chat.SourceREST, service.source)
}

func TestSendMessageRejectsBadChannel(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "unknown subject", target: "/send_message?chat_subject=Invoice&subject_uuid=A7"},
		{name: "missing uuid", target: "/send_message?chat_subject=Application"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeChatService{}
			e := newChatServer(&user, service, &fakeSockets{})

			rec := do(e, http.MethodPost, tt.target, `{"msg":"hi"}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, service.body)
		})
	}
}

func TestSendMessageSurfacesServiceError(t *testing.T) {
	service := &fakeChatService{err: httperror.NewHTTPError(http.StatusForbidden, "not a participant of this chat")}
	e := newChatServer(&user, service, &fakeSockets{})

	rec := do(e, http.MethodPost, "/send_message?chat_subject=Application&subject_uuid=A7", `{"msg":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode[middleware.MessageResponse](t, rec).Msg, "not a participant")
}

func TestGetMessagesPassesPaging(t *testing.T) {
	service := &fakeChatService{}
	e := newChatServer(&user, service, &fakeSockets{})

	rec := do(e, http.MethodGet, "/get_messages?chat_subject=Application&subject_uuid=A7&page=3&page_size=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[query.Page[models.ChatMessage]](t, rec)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, service.req.Page)
	assert.Equal(t, 10, service.req.PageSize)

	rec = do(e, http.MethodGet, "/get_messages?chat_subject=Application&subject_uuid=A7&page=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessages(t *testing.T) {
	service := &fakeChatService{}

	rec := do(newChatServer(&user, service, &fakeSockets{}), http.MethodDelete, "/delete_messages", `{"ids":[1,2]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(newChatServer(&admin, service, &fakeSockets{}), http.MethodDelete, "/delete_messages", `{"ids":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, service.ids)

	rec = do(newChatServer(&admin, service, &fakeSockets{}), http.MethodDelete, "/delete_messages", `{"ids":"1,2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChat(t *testing.T) {
	service := &fakeChatService{}
	e := newChatServer(&admin, service, &fakeSockets{})

	rec := do(e, http.MethodPost, "/create_chat?chat_subject=CommercialProposal&subject_uuid=P1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), decode[CreateChatResponse](t, rec).ChatID)
	assert.Equal(t, chat.ChannelKey{Subject: models.ChatSubjectCommercialProposal, SubjectUUID: "P1"}, service.key)
}

func TestCreateChatConflict(t *testing.T) {
	service := &fakeChatService{err: httperror.NewHTTPError(http.StatusConflict, "chat already exists")}
	e := newChatServer(&admin, service, &fakeSockets{})

	rec := do(e, http.MethodPost, "/create_chat?chat_subject=Application&subject_uuid=A7", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteChat(t *testing.T) {
	service := &fakeChatService{}
	e := newChatServer(&admin, service, &fakeSockets{})

	rec := do(e, http.MethodDelete, "/delete_chat?chat_subject=Application&subject_uuid=A7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, service.deleted)
	assert.Equal(t, a7, service.key)
}

func TestSocketRouteHandsOffToServer(t *testing.T) {
	sockets := &fakeSockets{}
	e := newChatServer(nil, &fakeChatService{}, sockets)

	rec := do(e, http.MethodGet, "/ws/Application/A7?token=abc", "")
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)
	assert.Equal(t, a7, sockets.key)
	assert.Equal(t, "abc", sockets.token)

	do(e, http.MethodGet, "/ws/Invoice/A7?token=abc", "")
	assert.Equal(t, models.ChatSubject(0), sockets.key.Subject)
	assert.Equal(t, "A7", sockets.key.SubjectUUID)
}

func TestSocketRouteRejectsContractChats(t *testing.T) {
	sockets := &fakeSockets{}
	e := newChatServer(nil, &fakeChatService{}, sockets)

	do(e, http.MethodGet, "/ws/Contract/C1?token=abc", "")
	assert.False(t, sockets.key.Subject.IsValid())
	assert.Equal(t, "C1", sockets.key.SubjectUUID)
}
