package visitor

import (
	"context"
	"errors"
	"time"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/progress"
	"github.com/gate-tracker/gate_tracker/internal/validation"
)

// Eraser removes the progress rows of an actor.
type Eraser interface {
	DeleteAll(ctx context.Context, a progress.Actor) (progress.Deleted, error)
}

// Erased reports what a visitor delete removed.
type Erased struct {
	progress.Deleted
	Visitor bool `json:"visitor"`
}

// Service manages visitor registration and data removal.
type Service struct {
	repo   Repository
	eraser Eraser
	audit  audit.Sink
	now    func() time.Time
}

// NewService creates a visitor service. sink may be nil.
func NewService(repo Repository, eraser Eraser, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.Discard()
	}
	return &Service{repo: repo, eraser: eraser, audit: sink, now: time.Now}
}

// Register creates the visitor or refreshes its last access time.
func (s *Service) Register(ctx context.Context, rawID string) (Visitor, bool, error) {
	id, err := validation.VisitorID(rawID)
	if err != nil {
		return Visitor{}, false, err
	}
	v, created, err := s.repo.Touch(ctx, id, s.now())
	if err != nil {
		return Visitor{}, false, apperr.Internal("touch visitor", err)
	}
	return v, created, nil
}

// Touch refreshes an already validated visitor id.
func (s *Service) Touch(ctx context.Context, id string) error {
	if _, _, err := s.repo.Touch(ctx, id, s.now()); err != nil {
		return apperr.Internal("touch visitor", err)
	}
	return nil
}

// Get returns a known visitor.
func (s *Service) Get(ctx context.Context, rawID string) (Visitor, error) {
	id, err := validation.VisitorID(rawID)
	if err != nil {
		return Visitor{}, err
	}
	v, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Visitor{}, apperr.New(apperr.KindNotFound, "Visitor not found")
	}
	if err != nil {
		return Visitor{}, apperr.Internal("get visitor", err)
	}
	return v, nil
}

// Delete removes all progress rows and the visitor record. Deleting an
// unknown visitor succeeds with zero counts.
func (s *Service) Delete(ctx context.Context, rawID string) (Erased, error) {
	id, err := validation.VisitorID(rawID)
	if err != nil {
		return Erased{}, err
	}

	deleted, err := s.eraser.DeleteAll(ctx, progress.Visitor(id))
	if err != nil {
		s.record(ctx, id, false, "delete progress failed")
		return Erased{}, err
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.record(ctx, id, false, "delete visitor failed")
		return Erased{}, apperr.Internal("delete visitor", err)
	}

	s.record(ctx, id, true, "visitor data deleted")
	return Erased{Deleted: deleted, Visitor: removed}, nil
}

func (s *Service) record(ctx context.Context, id string, success bool, detail string) {
	audit.Record(ctx, s.audit, audit.Event{
		Action:  audit.ActionVisitorDelete,
		Success: success,
		Details: map[string]any{"visitorId": id, "detail": detail},
	})
}
