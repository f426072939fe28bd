// Package calendar defines the external calendar collaborator interface.
// OAuth and provider sync live outside the core; job bodies only consume
// this interface.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by Unconfigured for mutating calls.
var ErrNotConfigured = errors.New("calendar integration is not configured")

// Event is a single calendar entry as returned by the collaborator.
type Event struct {
	ExternalID string
	Title      string
	StartTime  time.Time
	EndTime    time.Time
}

// EventFields describes an event to create.
type EventFields struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

// Service is implemented by the external calendar integration.
type Service interface {
	// FetchEvents returns events starting in [start, end).
	FetchEvents(ctx context.Context, start, end time.Time) ([]Event, error)
	// CreateEvent creates an event and returns its external reference.
	CreateEvent(ctx context.Context, fields EventFields) (string, error)
}

// Unconfigured is the no-op Service used when no calendar integration is
// set up; agenda jobs then simply see no events.
type Unconfigured struct{}

func (Unconfigured) FetchEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	return nil, nil
}

func (Unconfigured) CreateEvent(ctx context.Context, fields EventFields) (string, error) {
	return "", ErrNotConfigured
}
