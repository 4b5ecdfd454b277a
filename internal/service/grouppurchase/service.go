// Package grouppurchase implements the campaign lifecycle: creation against
// a catalog performance, joins and cancellations with count settlement, the
// recruiting ↔ completed flip, creator edits, and the deletion guard.
//
// Every successful mutation follows a write-then-reload contract: the
// repository settles state atomically, the detail cache is invalidated, a
// change notification is published, and the returned entity is the re-read
// result. Callers never patch local copies.
package grouppurchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/notify"
	redisx "github.com/museyou/gongu-go/internal/redis"
	"github.com/museyou/gongu-go/internal/repository"
	redisrepo "github.com/museyou/gongu-go/internal/repository/redis"
)

type Config struct {
	MinTargetParticipants int
	MinDiscountRate       int
	MaxDiscountRate       int
	DetailTTL             time.Duration
	StatsTTL              time.Duration
}

type Service struct {
	store     repository.Store
	cache     *redisrepo.Cache
	publisher notify.Publisher
	limiter   *redisrepo.SlidingWindowLimiter
	cfg       Config
}

// New wires the service. cache and limiter may be nil (memory driver,
// tests); publisher must not be.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	publisher notify.Publisher,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.MinTargetParticipants < 2 {
		cfg.MinTargetParticipants = 2
	}
	if cfg.MinDiscountRate <= 0 {
		cfg.MinDiscountRate = 1
	}
	if cfg.MaxDiscountRate <= 0 || cfg.MaxDiscountRate < cfg.MinDiscountRate {
		cfg.MaxDiscountRate = 50
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = 15 * time.Second
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 30 * time.Second
	}

	if publisher == nil {
		publisher = notify.Nop{}
	}

	return &Service{
		store:     store,
		cache:     cache,
		publisher: publisher,
		limiter:   limiter,
		cfg:       cfg,
	}
}

// CreateInput carries the creator's form.
type CreateInput struct {
	PerformanceID uuid.UUID
	Title         string
	Description   string
	Target        int
	DiscountRate  int
	Deadline      time.Time
}

// List returns campaigns matching the filter in the requested order.
func (s *Service) List(
	ctx context.Context,
	filter domain.Filter,
	sort domain.SortKey,
) ([]domain.GroupPurchase, error) {
	const op = "service.grouppurchase.List"

	out, err := s.store.GroupPurchases().List(ctx, filter, sort)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Get retrieves a campaign detail with participants, through the cache
// when one is wired.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.GroupPurchase, error) {
	const op = "service.grouppurchase.Get"

	load := func(ctx context.Context) (domain.GroupPurchase, error) {
		g, err := s.store.GroupPurchases().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.GroupPurchase{}, ErrNotFound
			}
			return domain.GroupPurchase{}, err
		}
		return *g, nil
	}

	if s.cache == nil {
		g, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return &g, nil
	}

	g, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyGroupPurchase(id),
		s.cfg.DetailTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &g, nil
}

// Create opens a campaign for a catalog performance. The performance is
// snapshotted and its price parsed once, here; later catalog edits do not
// reach the campaign.
func (s *Service) Create(
	ctx context.Context,
	actor domain.UserRef,
	in CreateInput,
	rlKey string,
) (*domain.GroupPurchase, error) {
	const op = "service.grouppurchase.Create"

	if in.Title == "" {
		return nil, fmt.Errorf("%s:%w: title is required", op, ErrInvalidInput)
	}
	if in.Target < s.cfg.MinTargetParticipants {
		return nil, fmt.Errorf("%s:%w: target must be at least %d", op, ErrInvalidInput, s.cfg.MinTargetParticipants)
	}
	if in.DiscountRate < s.cfg.MinDiscountRate || in.DiscountRate > s.cfg.MaxDiscountRate {
		return nil, fmt.Errorf("%s:%w: discount rate must be between %d and %d",
			op, ErrInvalidInput, s.cfg.MinDiscountRate, s.cfg.MaxDiscountRate)
	}
	if !in.Deadline.After(time.Now()) {
		return nil, fmt.Errorf("%s:%w: deadline must be in the future", op, ErrInvalidInput)
	}

	if err := s.allow(ctx, rlKey); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	perf, err := s.store.Performances().GetByID(ctx, in.PerformanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPerformanceNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now()
	original := domain.ParsePrice(perf.Price)

	g := &domain.GroupPurchase{
		ID:                  uuid.New(),
		PerformanceID:       perf.ID,
		Performance:         perf.Snapshot(),
		Title:               in.Title,
		Description:         in.Description,
		TargetParticipants:  in.Target,
		CurrentParticipants: 0,
		DiscountRate:        in.DiscountRate,
		OriginalPrice:       original,
		DiscountedPrice:     domain.DiscountedPrice(original, in.DiscountRate),
		Status:              domain.StatusRecruiting,
		Deadline:            in.Deadline,
		CreatorID:           actor.ID,
		Creator:             actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.GroupPurchases().Create(ctx, g); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPerformanceNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.changed(ctx, g.ID)

	return s.reload(ctx, op, g.ID)
}

// Join adds the actor to a recruiting campaign. count seats may be claimed
// in one action; a second join without an intervening cancel fails.
func (s *Service) Join(
	ctx context.Context,
	actor domain.UserRef,
	id uuid.UUID,
	count int,
	message string,
	rlKey string,
) (*domain.GroupPurchase, error) {
	const op = "service.grouppurchase.Join"

	if count < 1 {
		return nil, fmt.Errorf("%s:%w: participant count must be at least 1", op, ErrInvalidInput)
	}

	if err := s.allow(ctx, rlKey); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	p := domain.Participant{
		ID:               uuid.New(),
		GroupPurchaseID:  id,
		UserID:           actor.ID,
		User:             actor,
		ParticipantCount: count,
		Message:          message,
		JoinedAt:         time.Now(),
	}

	g, err := s.store.GroupPurchases().Join(ctx, id, p)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrNotRecruiting):
			return nil, fmt.Errorf("%s:%w", op, ErrNotRecruiting)
		case errors.Is(err, repository.ErrDeadlinePassed):
			return nil, fmt.Errorf("%s:%w", op, ErrDeadlinePassed)
		case errors.Is(err, repository.ErrAlreadyJoined):
			return nil, fmt.Errorf("%s:%w", op, ErrAlreadyJoined)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.changed(ctx, id)

	return g, nil
}

// CancelJoin removes the actor's active participation.
func (s *Service) CancelJoin(ctx context.Context, actor domain.UserRef, id uuid.UUID) (*domain.GroupPurchase, error) {
	const op = "service.grouppurchase.CancelJoin"

	g, err := s.store.GroupPurchases().CancelJoin(ctx, id, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrNotParticipant):
			return nil, fmt.Errorf("%s:%w", op, ErrNotParticipant)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.changed(ctx, id)

	return g, nil
}

// Update applies a creator edit.
func (s *Service) Update(
	ctx context.Context,
	actor domain.UserRef,
	id uuid.UUID,
	patch domain.Patch,
) (*domain.GroupPurchase, error) {
	const op = "service.grouppurchase.Update"

	current, err := s.store.GroupPurchases().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if current.CreatorID != actor.ID {
		return nil, fmt.Errorf("%s:%w", op, ErrNotCreator)
	}

	if patch.TargetParticipants != nil && *patch.TargetParticipants < s.cfg.MinTargetParticipants {
		return nil, fmt.Errorf("%s:%w: target must be at least %d", op, ErrInvalidInput, s.cfg.MinTargetParticipants)
	}
	if patch.DiscountRate != nil &&
		(*patch.DiscountRate < s.cfg.MinDiscountRate || *patch.DiscountRate > s.cfg.MaxDiscountRate) {
		return nil, fmt.Errorf("%s:%w: discount rate must be between %d and %d",
			op, ErrInvalidInput, s.cfg.MinDiscountRate, s.cfg.MaxDiscountRate)
	}
	if patch.Deadline != nil && !patch.Deadline.After(time.Now()) {
		return nil, fmt.Errorf("%s:%w: deadline must be in the future", op, ErrInvalidInput)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%s:%w: unknown status %q", op, ErrInvalidInput, *patch.Status)
	}

	g, err := s.store.GroupPurchases().Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrTargetBelowCurrent):
			return nil, fmt.Errorf("%s:%w", op, ErrTargetBelowCurrent)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.changed(ctx, id)

	return g, nil
}

// Delete removes a campaign nobody has joined. Creator only.
func (s *Service) Delete(ctx context.Context, actor domain.UserRef, id uuid.UUID) error {
	const op = "service.grouppurchase.Delete"

	current, err := s.store.GroupPurchases().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	if current.CreatorID != actor.ID {
		return fmt.Errorf("%s:%w", op, ErrNotCreator)
	}

	if err := s.store.GroupPurchases().Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrHasParticipants):
			return fmt.Errorf("%s:%w", op, ErrHasParticipants)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.changed(ctx, id)

	return nil
}

// ListJoined returns campaigns the actor participates in.
func (s *Service) ListJoined(ctx context.Context, actor domain.UserRef) ([]domain.GroupPurchase, error) {
	const op = "service.grouppurchase.ListJoined"

	out, err := s.store.GroupPurchases().ListByParticipant(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListCreated returns campaigns the actor opened.
func (s *Service) ListCreated(ctx context.Context, actor domain.UserRef) ([]domain.GroupPurchase, error) {
	const op = "service.grouppurchase.ListCreated"

	out, err := s.store.GroupPurchases().ListByCreator(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Stats aggregates campaigns per lifecycle state, through the cache.
func (s *Service) Stats(ctx context.Context) (*domain.StatusCounts, error) {
	const op = "service.grouppurchase.Stats"

	load := func(ctx context.Context) (domain.StatusCounts, error) {
		sc, err := s.store.GroupPurchases().CountsByStatus(ctx)
		if err != nil {
			return domain.StatusCounts{}, err
		}
		return *sc, nil
	}

	if s.cache == nil {
		sc, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return &sc, nil
	}

	sc, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyGroupPurchaseStats(),
		s.cfg.StatsTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &sc, nil
}

func (s *Service) allow(ctx context.Context, rlKey string) error {
	if s.limiter == nil || rlKey == "" {
		return nil
	}

	res, err := s.limiter.Allow(ctx, rlKey)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("%w, retry in %s", ErrRateLimited, res.RetryAfter)
	}

	return nil
}

// changed invalidates the cached detail and announces the mutation.
// Best-effort: readers fall back to the store on a miss either way.
func (s *Service) changed(ctx context.Context, id uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateGroupPurchase(ctx, id)
	}
	_ = s.publisher.PublishGroupPurchaseChanged(ctx, id)
}

func (s *Service) reload(ctx context.Context, op string, id uuid.UUID) (*domain.GroupPurchase, error) {
	g, err := s.store.GroupPurchases().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return g, nil
}
