package models

import (
	"fmt"
	"strings"
)

// NotificationSubject is the kind of business entity a notification is attached to.
// It is stored as subject_id and travels as a string token on the wire.
type NotificationSubject int16

const (
	NotificationSubjectApplication NotificationSubject = 1
	NotificationSubjectLegalEntity NotificationSubject = 2
	NotificationSubjectPreCalc     NotificationSubject = 3
	NotificationSubjectOther       NotificationSubject = 4
)

var notificationSubjectTokens = map[NotificationSubject]string{
	NotificationSubjectApplication: "Application",
	NotificationSubjectLegalEntity: "Legal_entity",
	NotificationSubjectPreCalc:     "Preliminary_calculation",
	NotificationSubjectOther:       "Other",
}

func (s NotificationSubject) String() string {
	if token, ok := notificationSubjectTokens[s]; ok {
		return token
	}
	return fmt.Sprintf("NotificationSubject(%d)", int16(s))
}

// IsValid reports whether s is a known subject
func (s NotificationSubject) IsValid() bool {
	_, ok := notificationSubjectTokens[s]
	return ok
}

// RequiresOwnership reports whether a non-admin caller must own the subject to notify about it.
func (s NotificationSubject) RequiresOwnership() bool {
	return s == NotificationSubjectApplication || s == NotificationSubjectLegalEntity
}

// MarshalText encodes s as its wire token
func (s NotificationSubject) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid notification subject %d", int16(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a wire token
func (s *NotificationSubject) UnmarshalText(text []byte) error {
	parsed, err := ParseNotificationSubject(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseNotificationSubject maps a wire token onto a NotificationSubject.
func ParseNotificationSubject(token string) (NotificationSubject, error) {
	token = strings.TrimSpace(token)
	for subject, t := range notificationSubjectTokens {
		if t == token {
			return subject, nil
		}
	}
	return 0, fmt.Errorf("unknown notification subject %q", token)
}

// ChatSubject is the kind of business entity a chat belongs to.
type ChatSubject int16

const (
	ChatSubjectApplication        ChatSubject = 1
	ChatSubjectCounterparty       ChatSubject = 2
	ChatSubjectCommercialProposal ChatSubject = 3
	ChatSubjectContract           ChatSubject = 4
)

var chatSubjectTokens = map[ChatSubject]string{
	ChatSubjectApplication:        "Application",
	ChatSubjectCounterparty:       "Counterparty",
	ChatSubjectCommercialProposal: "CommercialProposal",
	ChatSubjectContract:           "Contract",
}

func (s ChatSubject) String() string {
	if token, ok := chatSubjectTokens[s]; ok {
		return token
	}
	return fmt.Sprintf("ChatSubject(%d)", int16(s))
}

// IsValid reports whether s is a known subject
func (s ChatSubject) IsValid() bool {
	_, ok := chatSubjectTokens[s]
	return ok
}

// Live reports whether the subject offers a live socket chat. Contract chats are REST only.
func (s ChatSubject) Live() bool {
	switch s {
	case ChatSubjectApplication, ChatSubjectCounterparty, ChatSubjectCommercialProposal:
		return true
	}
	return false
}

// OwnerTable is the table holding the business entity and its owning user_id.
func (s ChatSubject) OwnerTable() string {
	switch s {
	case ChatSubjectApplication:
		return "application"
	case ChatSubjectCounterparty:
		return "counterparty"
	case ChatSubjectCommercialProposal:
		return "commercial_proposal"
	case ChatSubjectContract:
		return "contract"
	default:
		return ""
	}
}

// MarshalText encodes s as its wire token
func (s ChatSubject) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid chat subject %d", int16(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a wire token
func (s *ChatSubject) UnmarshalText(text []byte) error {
	parsed, err := ParseChatSubject(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseChatSubject maps a wire token onto a ChatSubject.
func ParseChatSubject(token string) (ChatSubject, error) {
	token = strings.TrimSpace(token)
	for subject, t := range chatSubjectTokens {
		if t == token {
			return subject, nil
		}
	}
	return 0, fmt.Errorf("unknown chat subject %q", token)
}
