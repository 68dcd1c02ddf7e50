package model

import (
	"errors"
	"strings"
	"time"
)

// Domains is the closed set of categories an event can be tagged with.
var Domains = []string{"technical", "cultural", "sports", "literary", "workshop", "seminar", "others"}

var domainSet = func() map[string]bool {
	m := make(map[string]bool, len(Domains))
	for _, d := range Domains {
		m[d] = true
	}
	return m
}()

// ValidDomain reports whether d belongs to Domains.
func ValidDomain(d string) bool { return domainSet[d] }

// Event is a club event. Date and Time keep what the organizer typed;
// OccursAt is derived from both and drives filtering, sorting and retention.
type Event struct {
	ID               string    `json:"id" bson:"_id"`
	OwnerID          string    `json:"ownerId" bson:"owner_id"`
	OrganizerName    string    `json:"organizerName" bson:"organizer_name"`
	Name             string    `json:"name" bson:"name"`
	Title            string    `json:"title" bson:"title"`
	Description      string    `json:"description" bson:"description,omitempty"`
	Date             string    `json:"date" bson:"date"`
	Time             string    `json:"time" bson:"time"`
	OccursAt         time.Time `json:"occursAt" bson:"occurs_at"`
	Venue            string    `json:"venue" bson:"venue"`
	Domains          []string  `json:"domains" bson:"domains"`
	RegistrationLink string    `json:"registrationLink" bson:"registration_link,omitempty"`
	ThumbnailURL     string    `json:"thumbnailUrl" bson:"thumbnail_url,omitempty"`
	IsApproved       bool      `json:"isApproved" bson:"is_approved"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updated_at"`
}

// ErrInvalidSchedule is returned when a date/time pair does not describe an instant.
var ErrInvalidSchedule = errors.New("invalid event date/time")

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3 PM",
	"3PM",
}

// ParseOccursAt combines a calendar date and a display time into one
// instant in loc. The date is "2006-01-02" or an RFC3339 timestamp whose
// date part is used. The time accepts 24h and 12h clock forms.
func ParseOccursAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date = strings.TrimSpace(date)
	clock = strings.ToUpper(strings.TrimSpace(clock))
	if date == "" || clock == "" {
		return time.Time{}, ErrInvalidSchedule
	}
	if len(date) > 10 {
		ts, err := time.Parse(time.RFC3339, date)
		if err != nil {
			return time.Time{}, ErrInvalidSchedule
		}
		date = ts.Format("2006-01-02")
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, ErrInvalidSchedule
	}
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, ErrInvalidSchedule
}

// NormalizeDate returns the "2006-01-02" form of a date accepted by ParseOccursAt.
func NormalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if len(date) > 10 {
		if ts, err := time.Parse(time.RFC3339, date); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return date
}
