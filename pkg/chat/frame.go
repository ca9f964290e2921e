package chat

import (
	"encoding/json"

	"github.com/Ramsey-B/bellflower/pkg/models"
)

// Frame is the JSON pushed to live subscribers for every new message.
type Frame struct {
	UserID          int64              `json:"user_id"`
	UserUUID        string             `json:"user_uuid"`
	UserPrivilegeID models.Privilege   `json:"user_privilege_id"`
	ChatSubject     models.ChatSubject `json:"chat_subject"`
	SubjectUUID     string             `json:"subject_uuid"`
	Data            string             `json:"data"`
	CreatedAt       string             `json:"created_at"`
	ChatID          int64              `json:"chat_id"`
}

// NewFrame builds the outbound frame for a persisted message
func NewFrame(key ChannelKey, m *models.ChatMessage) Frame {
	return Frame{
		UserID:          m.UserID,
		UserUUID:        m.UserUUID,
		UserPrivilegeID: m.UserPrivilege,
		ChatSubject:     key.Subject,
		SubjectUUID:     key.SubjectUUID,
		Data:            m.Data,
		CreatedAt:       models.FormatTimestamp(m.CreatedAt),
		ChatID:          m.ChatID,
	}
}

// EncodeFrame marshals the outbound frame for a persisted message
func EncodeFrame(key ChannelKey, m *models.ChatMessage) ([]byte, error) {
	return json.Marshal(NewFrame(key, m))
}

// inbound is what clients send over the socket.
type inbound struct {
	Msg string `json:"msg"`
}

// errorFrame is queued back to a single socket when one of its messages is refused.
type errorFrame struct {
	Error string `json:"error"`
}
