package core

import (
	"time"

	"github.com/google/uuid"
)

// Authority is the role an account holds.
type Authority string

const (
	AuthoritySysAdmin Authority = "SYS_ADMIN"
)

// UserPasswordHistoryField holds previous password hashes inside AdditionalInfo.
const UserPasswordHistoryField = "userPasswordHistory"

// User is an administrator account.
type User struct {
	ID             uuid.UUID              `json:"id"`
	Email          string                 `json:"email"`
	FirstName      string                 `json:"firstName,omitempty"`
	LastName       string                 `json:"lastName,omitempty"`
	Authority      Authority              `json:"authority"`
	AdditionalInfo map[string]interface{} `json:"additionalInfo,omitempty"`
	CreatedTime    time.Time              `json:"createdTime"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.AdditionalInfo != nil {
		c.AdditionalInfo = SettingsPayload(u.AdditionalInfo).Clone()
	}
	return &c
}

// UserCredentials are the stored credentials of a user.
// Password holds a bcrypt hash and is never serialised.
type UserCredentials struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"userId"`
	Enabled             bool      `json:"enabled"`
	Password            string    `json:"-"`
	FailedLoginAttempts int       `json:"failedLoginAttempts"`
}

// AdminDraft is the request body for creating an administrator.
type AdminDraft struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"firstName" validate:"max=255"`
	LastName  string `json:"lastName" validate:"max=255"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

// UserPrincipal identifies the subject a token is issued for.
type UserPrincipal struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PrincipalTypeUsername is the only principal type issued by the control plane.
const PrincipalTypeUsername = "USER_NAME"

// NewUsernamePrincipal builds a principal keyed by email.
func NewUsernamePrincipal(email string) UserPrincipal {
	return UserPrincipal{Type: PrincipalTypeUsername, Value: email}
}

// SecurityUser is a user reconstructed from its stored credentials.
type SecurityUser struct {
	User      *User
	Enabled   bool
	Principal UserPrincipal
}

// TokenPair is an access token with its refresh token.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// WebSocketConnection describes one connection owned by a user.
// ID is the connection id, ClientID the MQTT client id of its live session.
type WebSocketConnection struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	UserID      uuid.UUID `json:"userId"`
	ClientID    string    `json:"clientId"`
	CreatedTime time.Time `json:"createdTime"`
}
