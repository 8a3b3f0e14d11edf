// Package secrets implements the secret lifecycle engine: encrypted versioned
// values under role- and ownership-scoped access control with soft deletion.
package secrets

import (
	"context"
	"errors"
	"time"

	"sekret.org/internal/identity"
)

// MaskedValue is returned in place of plaintext when the caller does not ask
// for the value. Fixed width so placeholder length never leaks value length.
const MaskedValue = "••••••••••••"

var (
	// ErrNotFound covers absent, soft-deleted and (for non-admin callers)
	// foreign-owned secrets. The three are deliberately indistinguishable so
	// existence never leaks across owners.
	ErrNotFound = errors.New("secrets: not found")
	// ErrForbidden indicates the caller's role cannot perform the mutation.
	ErrForbidden = errors.New("secrets: forbidden")
	// ErrInvalidInput indicates malformed input such as an empty name.
	ErrInvalidInput = errors.New("secrets: invalid input")
)

// Secret is a named, versioned, encrypted value owned by one identity.
type Secret struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Value       string     `json:"value,omitempty"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	OwnerID     string     `json:"owner_id"`
	OwnerEmail  string     `json:"owner_email"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Ciphertext  []byte     `json:"-"`
	DeletedAt   *time.Time `json:"-"`
}

// SecretVersion is an append-only snapshot of the value a secret held before
// a mutation, recorded at the pre-mutation version number.
type SecretVersion struct {
	ID             string    `json:"id"`
	SecretID       string    `json:"secret_id"`
	Version        int       `json:"version"`
	Ciphertext     []byte    `json:"-"`
	UpdatedBy      string    `json:"updated_by"`
	UpdatedByEmail string    `json:"updated_by_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateInput carries the fields for a new secret.
type CreateInput struct {
	Name        string
	Type        string
	Value       string
	Description string
	Tags        []string
}

// UpdateInput is a partial update. Nil fields are left unchanged; only a
// non-nil Value bumps the version.
type UpdateInput struct {
	Value       *string
	Description *string
	Tags        []string
}

// Service defines the secret lifecycle operations. Every call takes the
// verified caller as its authorization context.
type Service interface {
	Create(ctx context.Context, ident identity.Identity, in CreateInput) (Secret, error)
	List(ctx context.Context, ident identity.Identity) ([]Secret, error)
	Get(ctx context.Context, ident identity.Identity, secretID string, reveal bool) (Secret, error)
	Update(ctx context.Context, ident identity.Identity, secretID string, upd UpdateInput) (int, error)
	Delete(ctx context.Context, ident identity.Identity, secretID string) error
	ListVersions(ctx context.Context, ident identity.Identity, secretID string) ([]SecretVersion, error)
}
