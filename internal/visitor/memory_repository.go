package visitor

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	visitors map[string]Visitor
}

// NewMemoryRepository builds an in-memory visitor store.
func NewMemoryRepository() Repository {
	return &memoryRepository{visitors: make(map[string]Visitor)}
}

func (r *memoryRepository) Touch(_ context.Context, id string, at time.Time) (Visitor, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at = at.UTC()
	v, ok := r.visitors[id]
	if !ok {
		v = Visitor{ID: id, CreatedAt: at}
	}
	v.LastAccessed = at
	r.visitors[id] = v
	return v, !ok, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok {
		return Visitor{}, ErrNotFound
	}
	return v, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.visitors[id]
	delete(r.visitors, id)
	return ok, nil
}
