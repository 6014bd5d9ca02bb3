package directory

import (
	"time"

	"github.com/google/uuid"
)

// User is a patient record mirrored from the identity provider. Rows are
// written only by webhook events; the API surface is read-only.
type User struct {
	ID        uuid.UUID `json:"id"`
	ClerkID   string    `json:"clerk_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityProfile is the normalized payload of a user.created/user.updated
// webhook event.
type IdentityProfile struct {
	ClerkID   string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
