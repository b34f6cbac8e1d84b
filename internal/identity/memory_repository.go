package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User // keyed by email
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return ErrEmailTaken
	}
	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.users[user.Email] = user
	return nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *User) {
		u.Verified = true
		u.UpdatedAt = at.UTC()
	})
}

func (r *memoryRepository) UpdateCredentials(_ context.Context, id, name string, hash []byte, at time.Time) error {
	return r.mutate(id, func(u *User) {
		u.Name = name
		u.PasswordHash = append([]byte(nil), hash...)
		u.UpdatedAt = at.UTC()
	})
}

func (r *memoryRepository) mutate(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, user := range r.users {
		if user.ID == id {
			fn(&user)
			r.users[email] = user
			return nil
		}
	}
	return ErrNotFound
}
