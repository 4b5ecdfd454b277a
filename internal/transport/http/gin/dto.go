package httpgin

import (
	"time"

	"github.com/museyou/gongu-go/internal/domain"
)

type CreateGroupPurchaseRequest struct {
	PerformanceID string `json:"performance_id" binding:"required,uuid"`
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	Target        int    `json:"target_participants" binding:"required,min=2"`
	DiscountRate  int    `json:"discount_rate" binding:"required,min=1,max=50"`
	Deadline      string `json:"deadline" binding:"required"`
}

type JoinRequest struct {
	ParticipantCount int    `json:"participant_count" binding:"required,min=1"`
	Message          string `json:"message"`
}

type UpdateGroupPurchaseRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Target       *int    `json:"target_participants"`
	DiscountRate *int    `json:"discount_rate"`
	Deadline     *string `json:"deadline"`
	Status       *string `json:"status"`
}

type CreatePerformanceRequest struct {
	Title    string `json:"title" binding:"required"`
	Category string `json:"category" binding:"required"`
	Venue    string `json:"venue" binding:"required"`
	District string `json:"district"`
	Price    string `json:"price" binding:"required"`
	ImageURL string `json:"image_url"`
	StartsAt string `json:"starts_at" binding:"required"`
	EndsAt   string `json:"ends_at" binding:"required"`
}

type ListGroupPurchasesResponse struct {
	Items  []domain.GroupPurchase `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
