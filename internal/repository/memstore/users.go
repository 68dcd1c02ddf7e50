// Package memstore keeps users and events in process memory. It backs
// STORE_DRIVER=memory for local runs and is the store used by service and
// end-to-end tests. It honors the same uniqueness and ownership rules as
// the MySQL and MongoDB stores.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/repository"
)

// Users implements repository.UserStore and repository.TokenStore.
type Users struct {
	mu    sync.RWMutex
	users map[string]model.User
}

var (
	_ repository.UserStore  = (*Users)(nil)
	_ repository.TokenStore = (*Users)(nil)
)

func NewUsers() *Users {
	return &Users{users: make(map[string]model.User)}
}

func (s *Users) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Username = model.NormalizeUsername(u.Username)
	u.Email = model.NormalizeEmail(u.Email)
	if _, ok := s.users[u.ID]; ok {
		return repository.ErrConflict
	}
	for _, other := range s.users {
		if other.Username == u.Username || other.Email == u.Email ||
			(u.ExternalID != "" && other.ExternalID == u.ExternalID) {
			return repository.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(*u)
	return nil
}

func (s *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.ID == id })
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return s.find(func(u model.User) bool { return u.Email == email })
}

func (s *Users) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	return s.find(func(u model.User) bool { return u.Username == id || u.Email == id })
}

func (s *Users) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == "" {
		return nil, repository.ErrNotFound
	}
	return s.find(func(u model.User) bool { return u.ExternalID == externalID })
}

func (s *Users) SearchByUsername(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	prefix = model.NormalizeUsername(prefix)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.User{}
	for _, u := range s.users {
		if strings.HasPrefix(u.Username, prefix) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Users) UpdateProfile(ctx context.Context, id, fullname, email string) error {
	email = model.NormalizeEmail(email)
	return s.mutate(id, func(u *model.User) error {
		for _, other := range s.users {
			if other.ID != id && other.Email == email {
				return repository.ErrConflict
			}
		}
		u.Fullname = fullname
		u.Email = email
		return nil
	})
}

func (s *Users) UpdateInterests(ctx context.Context, id string, interests []string) error {
	return s.mutate(id, func(u *model.User) error {
		u.Interests = append([]string{}, interests...)
		return nil
	})
}

func (s *Users) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.mutate(id, func(u *model.User) error { u.PasswordHash = hash; return nil })
}

func (s *Users) UpdateRole(ctx context.Context, id, role string) error {
	return s.mutate(id, func(u *model.User) error { u.Role = role; return nil })
}

func (s *Users) LinkExternal(ctx context.Context, id, externalID string) error {
	return s.mutate(id, func(u *model.User) error {
		for _, other := range s.users {
			if other.ID != id && other.ExternalID == externalID {
				return repository.ErrConflict
			}
		}
		u.ExternalID = externalID
		return nil
	})
}

func (s *Users) SetRefresh(ctx context.Context, userID, hash string) error {
	return s.mutate(userID, func(u *model.User) error { u.RefreshTokenHash = hash; return nil })
}

// RotateRefresh is a compare-and-swap under the store lock.
func (s *Users) RotateRefresh(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.RefreshTokenHash == "" || u.RefreshTokenHash != oldHash {
		return false, nil
	}
	u.RefreshTokenHash = newHash
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return true, nil
}

func (s *Users) ClearRefresh(ctx context.Context, userID string) error {
	err := s.mutate(userID, func(u *model.User) error { u.RefreshTokenHash = ""; return nil })
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Users) find(match func(model.User) bool) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := cloneUser(u)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Users) mutate(id string, fn func(u *model.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func cloneUser(u model.User) model.User {
	u.Interests = append([]string{}, u.Interests...)
	return u
}
