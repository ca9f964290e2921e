package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
)

func TestSendPersistsThenBroadcasts(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	sub := f.registry.NewSubscriber(a7, adminCaller)
	require.NoError(t, f.registry.Attach(sub))

	m, err := f.service.Send(context.Background(), ownerCaller, a7, "hello", SourceREST)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)
	assert.Equal(t, int64(70), m.ChatID)
	assert.Equal(t, models.PrivilegeUser, m.UserPrivilege)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(<-sub.Out(), &frame))
	assert.Equal(t, map[string]any{
		"user_id":           float64(1),
		"user_uuid":         "user-1",
		"user_privilege_id": float64(2),
		"chat_subject":      "Application",
		"subject_uuid":      "A7",
		"data":              "hello",
		"created_at":        "05.03.2024 07:08:09 UTC",
		"chat_id":           float64(70),
	}, frame)
	assert.Equal(t, []int64{1}, f.events.emitted)
}

func TestSendRejections(t *testing.T) {
	cases := []struct {
		name   string
		caller models.Caller
		body   string
		status int
	}{
		{"stranger", strangerCaller, "hi", http.StatusForbidden},
		{"empty body", ownerCaller, "", http.StatusBadRequest},
		{"oversize body", ownerCaller, strings.Repeat("я", models.MaxMessageBodyLength+1), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(RegistryConfig{})
			sub := f.registry.NewSubscriber(a7, adminCaller)
			require.NoError(t, f.registry.Attach(sub))

			_, err := f.service.Send(context.Background(), tc.caller, a7, tc.body, SourceREST)
			require.Error(t, err)
			assert.Equal(t, tc.status, httperror.GetStatusCode(err))
			assert.Zero(t, f.messages.count())
			assert.Len(t, sub.Out(), 0)
		})
	}
}

func TestSendBodyAtLimit(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	_, err := f.service.Send(context.Background(), ownerCaller, a7, strings.Repeat("я", models.MaxMessageBodyLength), SourceREST)
	require.NoError(t, err)
}

func TestSendPersistFailureBroadcastsNothing(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	f.messages.err = httperror.NewHTTPError(http.StatusInternalServerError, "failed to save message")
	sub := f.registry.NewSubscriber(a7, adminCaller)
	require.NoError(t, f.registry.Attach(sub))

	_, err := f.service.Send(context.Background(), ownerCaller, a7, "hi", SourceREST)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	assert.Len(t, sub.Out(), 0)
	assert.Empty(t, f.events.emitted)
}

func TestMessagesRequiresGate(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	_, err := f.service.Send(context.Background(), ownerCaller, a7, "one", SourceREST)
	require.NoError(t, err)

	page, err := f.service.Messages(context.Background(), ownerCaller, a7, query.Request{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	_, err = f.service.Messages(context.Background(), strangerCaller, a7, query.Request{})
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestAdminOnlyOperations(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	ctx := context.Background()

	_, err := f.service.DeleteMessages(ctx, ownerCaller, []int64{1})
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
	n, err := f.service.DeleteMessages(ctx, adminCaller, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.service.CreateChat(ctx, ownerCaller, a7)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))

	chat, err := f.service.CreateChat(ctx, adminCaller, a7)
	require.NoError(t, err)
	assert.Equal(t, "A7", chat.SubjectUUID)

	_, err = f.service.CreateChat(ctx, adminCaller, a7)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestDeleteChatDisconnectsSubscribers(t *testing.T) {
	f := newServiceFixture(RegistryConfig{})
	sub := f.registry.NewSubscriber(a7, ownerCaller)
	require.NoError(t, f.registry.Attach(sub))

	err := f.service.DeleteChat(context.Background(), ownerCaller, a7)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
	assert.False(t, sub.Closed())

	require.NoError(t, f.service.DeleteChat(context.Background(), adminCaller, a7))
	assert.Equal(t, []ChannelKey{a7}, f.chats.deleted)
	assert.True(t, sub.Closed())
}
