package repository

import (
	"context"
	"time"

	"github.com/iliyamo/campus-events/internal/model"
)

// UserStore persists accounts. Username and email uniqueness is enforced by
// the store itself; a violating write returns ErrConflict.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByLogin looks a user up by username or email.
	GetByLogin(ctx context.Context, identifier string) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]model.User, error)
	UpdateProfile(ctx context.Context, id, fullname, email string) error
	UpdateInterests(ctx context.Context, id string, interests []string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id, role string) error
	LinkExternal(ctx context.Context, id, externalID string) error
}

// TokenStore manages the single refresh token hash held per user.
type TokenStore interface {
	// SetRefresh overwrites the stored hash unconditionally (login, register).
	SetRefresh(ctx context.Context, userID, hash string) error
	// RotateRefresh replaces oldHash with newHash only if oldHash is still the
	// stored value. It reports false when another rotation or a logout won.
	RotateRefresh(ctx context.Context, userID, oldHash, newHash string) (bool, error)
	ClearRefresh(ctx context.Context, userID string) error
}

// EventFilter narrows ListUpcoming. An empty Domains slice means no domain filter.
type EventFilter struct {
	From    time.Time
	Domains []string
}

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// ListUpcoming returns events with OccursAt >= f.From, ascending.
	ListUpcoming(ctx context.Context, f EventFilter, p model.Page) ([]model.Event, int64, error)
	// ListByOwner returns every event of ownerID, newest OccursAt first.
	ListByOwner(ctx context.Context, ownerID string, p model.Page) ([]model.Event, int64, error)
	// Update writes the mutable fields of e. It fails with ErrNotFound when
	// the event is gone and ErrForbidden when e.OwnerID does not own it.
	Update(ctx context.Context, e *model.Event) error
	// Delete removes the event if ownerID owns it.
	Delete(ctx context.Context, id, ownerID string) error
	// DeleteBefore removes every event with OccursAt < cutoff and returns them.
	DeleteBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error)
}
