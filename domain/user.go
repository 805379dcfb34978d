package domain

import (
	"strconv"
	"time"
)

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusDisabled UserStatus = "DISABLED"
	UserStatusPending  UserStatus = "PENDING_ACTIVATION"
)

// User is the local account as seen by the session core. It is owned by the
// user-management side of the platform; the core reads it and, when the SSO
// linking policy allows it, provisions new ones.
type User struct {
	ID            int64      `bson:"_id" json:"id"`
	Email         string     `bson:"email" json:"email"`
	DisplayName   string     `bson:"display_name,omitempty" json:"display_name,omitempty"`
	PasswordHash  string     `bson:"password_hash,omitempty" json:"-"`
	Roles         []string   `bson:"roles" json:"roles"`
	EmailVerified bool       `bson:"email_verified" json:"email_verified"`
	Status        UserStatus `bson:"status" json:"status"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
	LastLoginAt   *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// IsActive reports whether the account may establish new sessions.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Subject returns the user id in the string form used as the JWT subject.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}
