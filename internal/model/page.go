package model

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps (Number-1)*Limit inside int for any accepted limit.
	MaxPage = math.MaxInt / MaxLimit
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Limit  int
}

// NewPage clamps raw query values into a usable page request.
func NewPage(number, limit int) Page {
	if number < 1 {
		number = DefaultPage
	}
	if number > MaxPage {
		number = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Number: number, Limit: limit}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Limit }

// EventPage is one page of events plus the navigation totals.
type EventPage struct {
	Events      []Event `json:"events"`
	TotalEvents int64   `json:"totalEvents"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
	Limit       int     `json:"limit"`
	HasNextPage bool    `json:"hasNextPage"`
	HasPrevPage bool    `json:"hasPrevPage"`
}

// NewEventPage derives the navigation fields from the total count.
func NewEventPage(events []Event, total int64, p Page) EventPage {
	if events == nil {
		events = []Event{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return EventPage{
		Events:      events,
		TotalEvents: total,
		TotalPages:  pages,
		CurrentPage: p.Number,
		Limit:       p.Limit,
		HasNextPage: p.Number < pages,
		HasPrevPage: p.Number > 1,
	}
}
