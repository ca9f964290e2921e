package chat

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
)

var (
	ownerCaller    = models.Caller{ID: 1, UUID: "user-1", Privilege: models.PrivilegeUser}
	strangerCaller = models.Caller{ID: 2, UUID: "user-2", Privilege: models.PrivilegeUser}
	adminCaller    = models.Caller{ID: 9, UUID: "admin-9", Privilege: models.PrivilegeAdmin}

	a7 = ChannelKey{Subject: models.ChatSubjectApplication, SubjectUUID: "A7"}
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeOwnership maps subject uuids to chats owned by a user.
type fakeOwnership struct {
	chats map[ChannelKey]repositories.ChatOwnership
	err   error
	calls int
}

func newFakeOwnership() *fakeOwnership {
	return &fakeOwnership{chats: map[ChannelKey]repositories.ChatOwnership{
		a7: {ChatID: 70, OwnerUserID: sql.NullInt64{Int64: ownerCaller.ID, Valid: true}},
		{Subject: models.ChatSubjectContract, SubjectUUID: "C1"}: {ChatID: 80},
	}}
}

func (f *fakeOwnership) ChatOwner(_ context.Context, subject models.ChatSubject, subjectUUID string) (*repositories.ChatOwnership, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.chats[ChannelKey{Subject: subject, SubjectUUID: subjectUUID}]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "chat does not exist")
	}
	return &o, nil
}

type fakeMessages struct {
	mu      sync.Mutex
	saved   []models.ChatMessage
	deleted []int64
	err     error
}

func (f *fakeMessages) Append(_ context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	m.ID = int64(len(f.saved) + 1)
	m.CreatedAt = time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	f.saved = append(f.saved, *m)
	return nil
}

func (f *fakeMessages) List(_ context.Context, chatID int64, req query.Request) (*query.Page[models.ChatMessage], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.ChatMessage
	for _, m := range f.saved {
		if m.ChatID == chatID {
			items = append(items, m)
		}
	}
	req = req.Normalize()
	return query.NewPage(items, len(items), req), nil
}

func (f *fakeMessages) Delete(_ context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return int64(len(ids)), nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeChats struct {
	created []models.Chat
	deleted []ChannelKey
	exists  map[ChannelKey]bool
}

func (f *fakeChats) Create(_ context.Context, chat *models.Chat) error {
	key := ChannelKey{Subject: chat.Subject, SubjectUUID: chat.SubjectUUID}
	if f.exists == nil {
		f.exists = map[ChannelKey]bool{}
	}
	if f.exists[key] {
		return httperror.NewHTTPError(http.StatusConflict, "chat already exists for this subject")
	}
	f.exists[key] = true
	chat.ID = int64(len(f.created) + 1)
	f.created = append(f.created, *chat)
	return nil
}

func (f *fakeChats) DeleteBySubject(_ context.Context, subject models.ChatSubject, subjectUUID string) error {
	f.deleted = append(f.deleted, ChannelKey{Subject: subject, SubjectUUID: subjectUUID})
	return nil
}

type fakeEvents struct {
	mu      sync.Mutex
	emitted []int64
}

func (f *fakeEvents) EmitChatMessageCreated(_ context.Context, _ models.ChatSubject, _ string, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, m.ID)
	return nil
}

type fakeAuth map[string]models.Caller

func (f fakeAuth) Authenticate(_ context.Context, token string) (models.Caller, error) {
	caller, ok := f[token]
	if !ok {
		return models.Caller{}, errors.New("invalid token")
	}
	return caller, nil
}

type serviceFixture struct {
	ownership *fakeOwnership
	messages  *fakeMessages
	chats     *fakeChats
	events    *fakeEvents
	registry  *Registry
	service   *Service
}

func newServiceFixture(cfg RegistryConfig) *serviceFixture {
	f := &serviceFixture{
		ownership: newFakeOwnership(),
		messages:  &fakeMessages{},
		chats:     &fakeChats{},
		events:    &fakeEvents{},
		registry:  NewRegistry(cfg, testLogger()),
	}
	f.service = NewService(NewGate(f.ownership), f.messages, f.chats, f.registry, f.events, testLogger())
	return f
}
