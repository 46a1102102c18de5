package api

import (
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

type propertyResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	City        string    `json:"city"`
	MonthlyRent int64     `json:"monthly_rent"`
	Bedrooms    int       `json:"bedrooms"`
	Status      string    `json:"status"`
	CaretakerID string    `json:"caretaker_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type feedResponse struct {
	Units      []propertyResponse `json:"units"`
	NextCursor *string            `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

type markSeenRequest struct {
	IDs []string `json:"ids"`
}

type markSeenResponse struct {
	Marked int `json:"marked"`
}

type createPropertyRequest struct {
	Title       string `json:"title"`
	City        string `json:"city"`
	MonthlyRent int64  `json:"monthly_rent"`
	Bedrooms    int    `json:"bedrooms"`
	Status      string `json:"status"`
}

func toPropertyResponse(p listing.Property) propertyResponse {
	return propertyResponse{
		ID:          p.ID,
		Title:       p.Title,
		City:        p.City,
		MonthlyRent: p.MonthlyRent,
		Bedrooms:    p.Bedrooms,
		Status:      string(p.Status),
		CaretakerID: p.CaretakerID,
		CreatedAt:   p.CreatedAt,
	}
}
