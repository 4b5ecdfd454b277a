package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRecruiting Status = "recruiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status was set independently of the
// participant count. A terminal campaign never flips back to recruiting
// or completed, no matter how joins and cancellations move the sum.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusRecruiting, StatusInProgress, StatusCompleted, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

type SortKey string

const (
	SortPopular  SortKey = "popular"  // descending current participants
	SortDeadline SortKey = "deadline" // ascending deadline
	SortNewest   SortKey = "newest"   // descending created_at
	SortDiscount SortKey = "discount" // descending discount rate
)

// Performance is a catalog entry for a single show. Its Price is kept as
// the raw display string ("50,000원", "전석 무료", ...); the numeric value
// is extracted only when a group purchase snapshots it.
type Performance struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Venue    string    `json:"venue"`
	District string    `json:"district"`
	Price    string    `json:"price"`
	ImageURL string    `json:"image_url,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// PerformanceSnapshot is the subset of Performance embedded into a group
// purchase at creation time. It is immutable and deliberately stale: later
// edits to the catalog entry do not propagate into existing campaigns.
type PerformanceSnapshot struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Venue    string    `json:"venue"`
	District string    `json:"district"`
	Price    string    `json:"price"`
}

func (p Performance) Snapshot() PerformanceSnapshot {
	return PerformanceSnapshot{
		ID:       p.ID,
		Title:    p.Title,
		Category: p.Category,
		Venue:    p.Venue,
		District: p.District,
		Price:    p.Price,
	}
}

// UserRef is the denormalized slice of a user carried on campaigns and
// participant records.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type GroupPurchase struct {
	ID                  uuid.UUID           `json:"id"`
	PerformanceID       uuid.UUID           `json:"performance_id"`
	Performance         PerformanceSnapshot `json:"performance"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	TargetParticipants  int                 `json:"target_participants"`
	CurrentParticipants int                 `json:"current_participants"`
	DiscountRate        int                 `json:"discount_rate"`
	OriginalPrice       int64               `json:"original_price"`
	DiscountedPrice     int64               `json:"discounted_price"`
	Status              Status              `json:"status"`
	Deadline            time.Time           `json:"deadline"`
	CreatorID           uuid.UUID           `json:"creator_id"`
	Creator             UserRef             `json:"creator"`
	Progress            int                 `json:"progress"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	// Hydrated on detail reads only.
	Participants []Participant `json:"participants,omitempty"`
}

type Participant struct {
	ID               uuid.UUID `json:"id"`
	GroupPurchaseID  uuid.UUID `json:"group_purchase_id"`
	UserID           uuid.UUID `json:"user_id"`
	User             UserRef   `json:"user"`
	ParticipantCount int       `json:"participant_count"`
	Message          string    `json:"message,omitempty"`
	JoinedAt         time.Time `json:"joined_at"`
}

// StatusCounts aggregates campaigns per lifecycle state.
type StatusCounts struct {
	Recruiting int64 `json:"recruiting"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Closed     int64 `json:"closed"`
	Cancelled  int64 `json:"cancelled"`
	Total      int64 `json:"total"`
}

// Filter narrows a campaign listing. Zero values mean "no constraint".
// Search matches case-insensitively against the snapshot title OR venue.
type Filter struct {
	Category        string
	District        string
	Status          Status
	MinDiscountRate int
	Search          string
}

// PerformanceFilter narrows the catalog listing. Search matches
// case-insensitively against title OR venue.
type PerformanceFilter struct {
	Category string
	District string
	Search   string
}

// Patch carries a partial update from the creator. Nil fields are left as-is.
type Patch struct {
	Title              *string
	Description        *string
	TargetParticipants *int
	DiscountRate       *int
	Deadline           *time.Time
	Status             *Status
}
