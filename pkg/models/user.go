package models

// Privilege is the role recorded on a user and stamped onto each chat message.
type Privilege int16

const (
	PrivilegeAdmin Privilege = 1
	PrivilegeUser  Privilege = 2
)

func (p Privilege) IsAdmin() bool {
	return p == PrivilegeAdmin
}

// User is the subset of the users table the service reads.
type User struct {
	ID          int64     `db:"id" json:"id"`
	UUID        string    `db:"uuid" json:"uuid"`
	PrivilegeID Privilege `db:"privilege_id" json:"privilege_id"`
}

// Caller is the authenticated identity behind a request or socket.
type Caller struct {
	ID        int64
	UUID      string
	Privilege Privilege
}

// IsAdmin reports whether the caller has the admin privilege
func (c Caller) IsAdmin() bool {
	return c.Privilege.IsAdmin()
}

// UserContacts holds a user's delivery addresses and per-channel opt-ins.
type UserContacts struct {
	UserID          int64   `db:"id"`
	UserUUID        string  `db:"uuid"`
	Email           *string `db:"email"`
	EmailEnabled    bool    `db:"email_notification"`
	Telegram        *string `db:"telegram"`
	TelegramEnabled bool    `db:"telegram_notification"`
}

// EmailAddress returns the address to send to, or "" when email delivery is off.
func (c UserContacts) EmailAddress() string {
	if !c.EmailEnabled || c.Email == nil {
		return ""
	}
	return *c.Email
}

// TelegramHandle returns the messenger handle to send to, or "" when messenger delivery is off.
func (c UserContacts) TelegramHandle() string {
	if !c.TelegramEnabled || c.Telegram == nil {
		return ""
	}
	return *c.Telegram
}
