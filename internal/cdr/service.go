package cdr

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for pickup records. Records are
// append-only; there are no update or delete operations.
type Repository interface {
	Append(ctx context.Context, rec Record) error
}

var ErrInvalidRecord = errors.New("cdr: invalid record")

// Service records pickup outcomes.
//
// Callers should treat recording as best-effort: log the error and move
// on, never fail the call flow.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, rec Record) error {
	if s.repo == nil {
		return errors.New("cdr: repository not configured")
	}
	if rec.RequesterID == "" {
		return ErrInvalidRecord
	}
	if rec.Outcome == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, rec)
}
