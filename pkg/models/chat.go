package models

import "time"

// MaxMessageBodyLength is the chat message limit in code points
const MaxMessageBodyLength = 1000

// Chat is the single conversation attached to a business subject.
type Chat struct {
	ID          int64       `db:"id" json:"id"`
	Subject     ChatSubject `db:"chat_subject_id" json:"chat_subject"`
	SubjectUUID string      `db:"subject_uuid" json:"subject_uuid"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

func (Chat) TableName() string {
	return "chat"
}

// ChatMessage is an append-only entry in a chat.
type ChatMessage struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	UserUUID      string    `db:"user_uuid" json:"user_uuid"`
	UserPrivilege Privilege `db:"user_privilege_id" json:"user_privilege_id"`
	ChatID        int64     `db:"chat_id" json:"chat_id"`
	Data          string    `db:"data" json:"data"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "message"
}
