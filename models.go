package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	IsSuperuser   bool       `bun:"is_superuser,notnull" json:"is_superuser"`
	LastLogin     *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// NewUser returns an active, non superuser account
func NewUser(name, username, email string) *User {
	return &User{
		Name:     name,
		Username: username,
		Email:    email,
		IsActive: true,
	}
}

// MarkPersisted stamps the record timestamps. CreatedAt is set only
// the first time, UpdatedAt on every call.
func (u *User) MarkPersisted(now time.Time) *User {
	now = now.UTC()
	if u.CreatedAt == nil {
		c := now
		u.CreatedAt = &c
	}
	u.UpdatedAt = &now
	return u
}

// SetPassword replaces the password hash. It does not persist the user.
func (u *User) SetPassword(hasher PasswordHasher, password string) error {
	h, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	u.PasswordHash = h
	return nil
}

// CheckPassword verifies password against the stored hash
func (u *User) CheckPassword(hasher PasswordHasher, password string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return hasher.Verify(u.PasswordHash, password)
}

// IsAuthenticated is true for any resolved user. Templates use it.
func (u *User) IsAuthenticated() bool {
	return u != nil
}

// SessionID is the value stored as the session identity
func (u *User) SessionID() string {
	return u.ID.String()
}
