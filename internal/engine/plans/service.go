package plans

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	apperrors "praxis/internal/pkg/errors"
)

type Service struct {
	repo     *Repository
	currency string
	now      func() time.Time
}

func NewService(repo *Repository, defaultCurrency string) *Service {
	return &Service{repo: repo, currency: defaultCurrency, now: time.Now}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Plan, error) {
	return s.repo.List(ctx, includeInactive)
}

// Get returns the plan or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}
	if p == nil {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, p *Plan) error {
	if p.Currency == "" {
		p.Currency = s.currency
	}
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("plan %s already exists: %w", p.ID, apperrors.ErrConflict)
	}

	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	log.Info().Str("plan_id", p.ID).Msg("plan created")
	return nil
}

// Update is the administrative edit. Existing subscriptions keep their
// amount snapshot; only limits and features apply to them immediately.
func (s *Service) Update(ctx context.Context, p *Plan) error {
	if p.Currency == "" {
		p.Currency = s.currency
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()
	ok, err := s.repo.Update(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotFound
	}
	log.Info().Str("plan_id", p.ID).Msg("plan updated")
	return nil
}

// Delete refuses while any subscription still references the plan.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		log.Info().Str("plan_id", id).Msg("plan deleted")
		return nil
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("plan %s is referenced by subscriptions: %w", id, apperrors.ErrConflict)
}
