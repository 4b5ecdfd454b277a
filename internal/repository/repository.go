// Package repository defines the storage boundary shared by the postgres
// backend and the in-memory mock. Services depend on these interfaces only,
// so the two implementations are interchangeable.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/museyou/gongu-go/internal/domain"
)

// Store is the root of the storage layer.
type Store interface {
	GroupPurchases() GroupPurchaseRepository
	Performances() PerformanceRepository
}

// GroupPurchaseRepository persists campaigns and their participant records.
//
// Mutations are atomic read-modify-write operations: the current participant
// count is always recomputed as the sum of active participants' counts
// inside the same boundary that changes the rows, and the recruiting ↔
// completed flip happens there too. Callers never patch counters.
type GroupPurchaseRepository interface {
	// List returns campaigns matching filter, ordered by sort. The full
	// result set is returned; pagination is a presentation-layer slice.
	List(ctx context.Context, filter domain.Filter, sort domain.SortKey) ([]domain.GroupPurchase, error)

	// GetByID hydrates the participant list and the derived fields.
	// Returns ErrNotFound when the id is absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupPurchase, error)

	// Create persists a fully built campaign. Returns ErrNotFound when the
	// referenced performance does not exist.
	Create(ctx context.Context, gp *domain.GroupPurchase) error

	// Join adds a participant record and recomputes the count. Returns
	// ErrNotRecruiting, ErrDeadlinePassed or ErrAlreadyJoined on guard
	// violations; the returned campaign reflects the post-join state.
	Join(ctx context.Context, id uuid.UUID, p domain.Participant) (*domain.GroupPurchase, error)

	// CancelJoin removes the caller's active record. Returns
	// ErrNotParticipant when no active record exists. A completed campaign
	// dropping under target reverts to recruiting unless terminal.
	CancelJoin(ctx context.Context, id, userID uuid.UUID) (*domain.GroupPurchase, error)

	// Update applies a partial edit. Returns ErrTargetBelowCurrent when the
	// patch would set the target under the recomputed participant sum.
	Update(ctx context.Context, id uuid.UUID, patch domain.Patch) (*domain.GroupPurchase, error)

	// Delete removes a campaign. Returns ErrHasParticipants while any
	// active participant record remains.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByCreator returns campaigns created by the user, newest first.
	ListByCreator(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error)

	// ListByParticipant returns campaigns the user has an active join
	// record for, newest join first.
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error)

	// CountsByStatus aggregates campaigns per lifecycle state.
	CountsByStatus(ctx context.Context) (*domain.StatusCounts, error)
}

// PerformanceRepository is the read-mostly catalog behind campaign creation.
type PerformanceRepository interface {
	List(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Performance, error)
	Create(ctx context.Context, p *domain.Performance) error
}
