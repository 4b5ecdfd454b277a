// Package memory is the local mock backend. It mirrors the hosted
// backend's observable behavior over plain in-memory collections, with an
// optional JSON snapshot for persistence across restarts and an optional
// artificial latency to simulate network round-trips in development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/repository"
)

type Config struct {
	SnapshotPath string
	Latency      time.Duration
}

type Store struct {
	cfg Config

	mu           sync.RWMutex
	performances map[uuid.UUID]domain.Performance
	campaigns    map[uuid.UUID]domain.GroupPurchase
	participants map[uuid.UUID][]domain.Participant // keyed by campaign
}

var _ repository.Store = (*Store)(nil)

func NewStore(cfg Config) *Store {
	s := &Store{
		cfg:          cfg,
		performances: make(map[uuid.UUID]domain.Performance),
		campaigns:    make(map[uuid.UUID]domain.GroupPurchase),
		participants: make(map[uuid.UUID][]domain.Participant),
	}

	if cfg.SnapshotPath != "" {
		s.load()
	}

	return s
}

func (s *Store) GroupPurchases() repository.GroupPurchaseRepository {
	return &groupPurchaseRepo{s: s}
}

func (s *Store) Performances() repository.PerformanceRepository {
	return &performanceRepo{s: s}
}

// wait simulates one network round-trip when latency is configured.
func (s *Store) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// --- group purchases ---

type groupPurchaseRepo struct {
	s *Store
}

func (r *groupPurchaseRepo) List(
	ctx context.Context,
	filter domain.Filter,
	sortKey domain.SortKey,
) ([]domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.GroupPurchase
	for _, g := range r.s.campaigns {
		if matches(g, filter) {
			g.Derive()
			out = append(out, g)
		}
	}

	sortCampaigns(out, sortKey)

	return out, nil
}

func matches(g domain.GroupPurchase, f domain.Filter) bool {
	if f.Category != "" && g.Performance.Category != f.Category {
		return false
	}
	if f.District != "" && g.Performance.District != f.District {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.MinDiscountRate > 0 && g.DiscountRate < f.MinDiscountRate {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(g.Performance.Title), q) &&
			!strings.Contains(strings.ToLower(g.Performance.Venue), q) {
			return false
		}
	}
	return true
}

func sortCampaigns(gs []domain.GroupPurchase, key domain.SortKey) {
	switch key {
	case domain.SortPopular:
		sort.SliceStable(gs, func(i, j int) bool {
			if gs[i].CurrentParticipants != gs[j].CurrentParticipants {
				return gs[i].CurrentParticipants > gs[j].CurrentParticipants
			}
			return gs[i].CreatedAt.After(gs[j].CreatedAt)
		})
	case domain.SortDeadline:
		sort.SliceStable(gs, func(i, j int) bool {
			return gs[i].Deadline.Before(gs[j].Deadline)
		})
	case domain.SortDiscount:
		sort.SliceStable(gs, func(i, j int) bool {
			if gs[i].DiscountRate != gs[j].DiscountRate {
				return gs[i].DiscountRate > gs[j].DiscountRate
			}
			return gs[i].CreatedAt.After(gs[j].CreatedAt)
		})
	default:
		sort.SliceStable(gs, func(i, j int) bool {
			return gs[i].CreatedAt.After(gs[j].CreatedAt)
		})
	}
}

func (r *groupPurchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	g.Participants = append([]domain.Participant(nil), r.s.participants[id]...)
	g.Derive()

	return &g, nil
}

func (r *groupPurchaseRepo) Create(ctx context.Context, g *domain.GroupPurchase) error {
	if err := r.s.wait(ctx); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.performances[g.PerformanceID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.campaigns[g.ID]; ok {
		return repository.ErrConflict
	}

	cp := *g
	cp.Participants = nil
	r.s.campaigns[g.ID] = cp
	r.s.flush()

	return nil
}

func (r *groupPurchaseRepo) Join(
	ctx context.Context,
	id uuid.UUID,
	p domain.Participant,
) (*domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	if g.Status != domain.StatusRecruiting {
		return nil, repository.ErrNotRecruiting
	}
	if !g.Deadline.After(time.Now()) {
		return nil, repository.ErrDeadlinePassed
	}

	for _, existing := range r.s.participants[id] {
		if existing.UserID == p.UserID {
			return nil, repository.ErrAlreadyJoined
		}
	}

	r.s.participants[id] = append(r.s.participants[id], p)

	out := r.settleLocked(id)
	r.s.flush()

	return out, nil
}

func (r *groupPurchaseRepo) CancelJoin(ctx context.Context, id, userID uuid.UUID) (*domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.campaigns[id]; !ok {
		return nil, repository.ErrNotFound
	}

	parts := r.s.participants[id]
	idx := -1
	for i, p := range parts {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, repository.ErrNotParticipant
	}

	r.s.participants[id] = append(parts[:idx:idx], parts[idx+1:]...)

	out := r.settleLocked(id)
	r.s.flush()

	return out, nil
}

func (r *groupPurchaseRepo) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.Patch,
) (*domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	sum := 0
	for _, p := range r.s.participants[id] {
		sum += p.ParticipantCount
	}

	if patch.Title != nil {
		g.Title = *patch.Title
	}
	if patch.Description != nil {
		g.Description = *patch.Description
	}
	if patch.TargetParticipants != nil {
		if *patch.TargetParticipants < sum {
			return nil, repository.ErrTargetBelowCurrent
		}
		g.TargetParticipants = *patch.TargetParticipants
	}
	if patch.DiscountRate != nil {
		g.DiscountRate = *patch.DiscountRate
	}
	if patch.Deadline != nil {
		g.Deadline = *patch.Deadline
	}
	if patch.Status != nil {
		g.Status = *patch.Status
	}

	g.DiscountedPrice = domain.DiscountedPrice(g.OriginalPrice, g.DiscountRate)
	g.UpdatedAt = time.Now()
	r.s.campaigns[id] = g

	out := r.settleLocked(id)
	r.s.flush()

	return out, nil
}

func (r *groupPurchaseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.s.wait(ctx); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.campaigns[id]; !ok {
		return repository.ErrNotFound
	}

	if len(r.s.participants[id]) > 0 {
		return repository.ErrHasParticipants
	}

	delete(r.s.campaigns, id)
	delete(r.s.participants, id)
	r.s.flush()

	return nil
}

func (r *groupPurchaseRepo) ListByCreator(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.GroupPurchase
	for _, g := range r.s.campaigns {
		if g.CreatorID == userID {
			g.Derive()
			out = append(out, g)
		}
	}

	sortCampaigns(out, domain.SortNewest)

	return out, nil
}

func (r *groupPurchaseRepo) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	type joined struct {
		g  domain.GroupPurchase
		at time.Time
	}

	var hits []joined
	for id, parts := range r.s.participants {
		for _, p := range parts {
			if p.UserID == userID {
				g := r.s.campaigns[id]
				g.Derive()
				hits = append(hits, joined{g: g, at: p.JoinedAt})
				break
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].at.After(hits[j].at)
	})

	out := make([]domain.GroupPurchase, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.g)
	}

	return out, nil
}

func (r *groupPurchaseRepo) CountsByStatus(ctx context.Context) (*domain.StatusCounts, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var sc domain.StatusCounts
	for _, g := range r.s.campaigns {
		switch g.Status {
		case domain.StatusRecruiting:
			sc.Recruiting++
		case domain.StatusInProgress:
			sc.InProgress++
		case domain.StatusCompleted:
			sc.Completed++
		case domain.StatusClosed:
			sc.Closed++
		case domain.StatusCancelled:
			sc.Cancelled++
		}
		sc.Total++
	}

	return &sc, nil
}

// settleLocked reconciles the stored counter and status with the
// participant sum. Caller holds the write lock.
func (r *groupPurchaseRepo) settleLocked(id uuid.UUID) *domain.GroupPurchase {
	g := r.s.campaigns[id]

	sum := 0
	for _, p := range r.s.participants[id] {
		sum += p.ParticipantCount
	}

	g.CurrentParticipants = sum
	if !g.Status.Terminal() {
		switch {
		case sum >= g.TargetParticipants && g.Status == domain.StatusRecruiting:
			g.Status = domain.StatusCompleted
		case sum < g.TargetParticipants && g.Status == domain.StatusCompleted:
			g.Status = domain.StatusRecruiting
		}
	}
	g.UpdatedAt = time.Now()

	r.s.campaigns[id] = g

	out := g
	out.Participants = append([]domain.Participant(nil), r.s.participants[id]...)
	out.Derive()

	return &out
}

// --- performances ---

type performanceRepo struct {
	s *Store
}

func (r *performanceRepo) List(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Performance
	for _, p := range r.s.performances {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.District != "" && p.District != filter.District {
			continue
		}
		if filter.Search != "" {
			q := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.Title), q) &&
				!strings.Contains(strings.ToLower(p.Venue), q) {
				continue
			}
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartsAt.Before(out[j].StartsAt)
	})

	return out, nil
}

func (r *performanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	if err := r.s.wait(ctx); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.performances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &p, nil
}

func (r *performanceRepo) Create(ctx context.Context, p *domain.Performance) error {
	if err := r.s.wait(ctx); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.performances[p.ID]; ok {
		return repository.ErrConflict
	}

	r.s.performances[p.ID] = *p
	r.s.flush()

	return nil
}
