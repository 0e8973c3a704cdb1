package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes genuine ticket holders from synthetic fill-in users.
type Role string

const (
	RoleUser  Role = "user"
	RoleDummy Role = "dummy_user"
)

// User maps to the users table. Wallet is owned by the ledger.
type User struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Wallet    int64     `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}
