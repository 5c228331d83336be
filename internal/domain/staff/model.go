package staff

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/preop/intake/internal/platform/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicate          = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalid            = errors.New("invalid user")
)

// User maps to the preop_users table.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	IsSuperAdmin bool      `db:"is_superadmin" json:"is_superadmin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{
		UserID:   u.ID.String(),
		Username: u.Username,
		Name:     u.Name,
		Roles:    auth.RolesFor(u.IsAdmin, u.IsSuperAdmin),
	}
}

// NewUser is the input for creating an account. Password is plain text and
// never stored.
type NewUser struct {
	Username     string
	Password     string
	Name         string
	IsAdmin      bool
	IsSuperAdmin bool
}
