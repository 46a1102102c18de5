// Package listing holds rental properties and serves them to the feed as a
// sorted, cursor-paginated source, backed by PostgreSQL or memory.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// TableName is the only table a listing Store serves.
const TableName = "properties"

var (
	// ErrNotFound is returned when a property does not exist.
	ErrNotFound = errors.New("property not found")

	// ErrInvalidInput is returned for malformed create input or queries.
	ErrInvalidInput = errors.New("invalid input")
)

// Status is a property's publication state. Only published properties reach feeds.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Property is a rental unit listed on the marketplace.
type Property struct {
	ID          string
	Title       string
	City        string
	MonthlyRent int64 // minor currency units
	Bedrooms    int
	Status      Status
	CaretakerID string
	CreatedAt   time.Time
}

// FeedID implements feed.Item.
func (p Property) FeedID() string { return p.ID }

// CreateInput describes a new property.
type CreateInput struct {
	Title       string
	City        string
	MonthlyRent int64
	Bedrooms    int
	Status      Status
	CaretakerID string
	Now         time.Time
}

const (
	maxTitleChars = 200
	maxCityChars  = 100
)

func (in CreateInput) normalize() (CreateInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.City = strings.TrimSpace(in.City)
	in.CaretakerID = strings.TrimSpace(in.CaretakerID)

	switch {
	case in.Title == "":
		return in, fmt.Errorf("%w: missing title", ErrInvalidInput)
	case len([]rune(in.Title)) > maxTitleChars:
		return in, fmt.Errorf("%w: title too long: max=%d chars", ErrInvalidInput, maxTitleChars)
	case in.City == "":
		return in, fmt.Errorf("%w: missing city", ErrInvalidInput)
	case len([]rune(in.City)) > maxCityChars:
		return in, fmt.Errorf("%w: city too long: max=%d chars", ErrInvalidInput, maxCityChars)
	case in.MonthlyRent < 0:
		return in, fmt.Errorf("%w: negative rent", ErrInvalidInput)
	case in.Bedrooms < 0:
		return in, fmt.Errorf("%w: negative bedrooms", ErrInvalidInput)
	}

	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !in.Status.Valid() {
		return in, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}

	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	// Postgres keeps microseconds; truncating here keeps cursors identical across stores.
	in.Now = in.Now.UTC().Truncate(time.Microsecond)
	return in, nil
}

// Store persists properties and serves published ones as a feed source.
type Store interface {
	feed.Source[Property]
	feed.Positioner[Property]

	Create(ctx context.Context, in CreateInput) (Property, error)
	Get(ctx context.Context, id string) (Property, error)
	Close() error
}
