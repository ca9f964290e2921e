package models

import (
	"time"
	"unicode/utf8"
)

// MaxNotificationBodyLength is the notification body limit in code points
const MaxNotificationBodyLength = 512

// Notification is a durable in-app notice attached to a business subject.
type Notification struct {
	ID                   int64               `db:"id" json:"id"`
	UUID                 string              `db:"uuid" json:"uuid"`
	ForAdmin             bool                `db:"for_admin" json:"for_admin"`
	Subject              NotificationSubject `db:"subject_id" json:"subject"`
	SubjectUUID          *string             `db:"subject_uuid" json:"subject_uuid"`
	InitiatorUserID      int64               `db:"initiator_user_id" json:"initiator_user_id"`
	InitiatorUserUUID    string              `db:"initiator_user_uuid" json:"initiator_user_uuid"`
	RecipientUserID      *int64              `db:"recipient_user_id" json:"recipient_user_id"`
	RecipientUserUUID    *string             `db:"recipient_user_uuid" json:"recipient_user_uuid"`
	Data                 string              `db:"data" json:"data"`
	IsRead               bool                `db:"is_read" json:"is_read"`
	ReadAt               *time.Time          `db:"read_at" json:"read_at"`
	IsImportant          bool                `db:"is_important" json:"is_important"`
	TimeImportanceChange *time.Time          `db:"time_importance_change" json:"time_importance_change"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
}

func (Notification) TableName() string {
	return "notification"
}

// ValidBody reports whether body is non-empty and within limit code points.
func ValidBody(body string, limit int) bool {
	n := utf8.RuneCountInString(body)
	return n > 0 && n <= limit
}
