// Package catalog serves the performance listings campaigns are built on.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/museyou/gongu-go/internal/domain"
	redisx "github.com/museyou/gongu-go/internal/redis"
	"github.com/museyou/gongu-go/internal/repository"
	redisrepo "github.com/museyou/gongu-go/internal/repository/redis"
)

type Config struct {
	PerformanceTTL time.Duration
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.PerformanceTTL <= 0 {
		cfg.PerformanceTTL = 60 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// List returns catalog entries matching the filter, ordered by start date.
// Listings are not cached: the filter space is wide and the table small.
func (s *Service) List(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	const op = "service.catalog.List"

	out, err := s.store.Performances().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	const op = "service.catalog.Get"

	load := func(ctx context.Context) (domain.Performance, error) {
		p, err := s.store.Performances().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Performance{}, ErrPerformanceNotFound
			}
			return domain.Performance{}, err
		}
		return *p, nil
	}

	if s.cache == nil {
		p, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return &p, nil
	}

	p, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyPerformance(id),
		s.cfg.PerformanceTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &p, nil
}

// Create registers a catalog entry. Admin surface; the original app shipped
// these as fixture data.
func (s *Service) Create(ctx context.Context, in domain.Performance) (*domain.Performance, error) {
	const op = "service.catalog.Create"

	if in.Title == "" {
		return nil, fmt.Errorf("%s:%w: title is required", op, ErrInvalidInput)
	}
	if in.Venue == "" {
		return nil, fmt.Errorf("%s:%w: venue is required", op, ErrInvalidInput)
	}
	if in.EndsAt.Before(in.StartsAt) {
		return nil, fmt.Errorf("%s:%w: ends before it starts", op, ErrInvalidInput)
	}

	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}

	if err := s.store.Performances().Create(ctx, &in); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrPerformanceConflict)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidatePerformance(ctx, in.ID)
	}

	return &in, nil
}
