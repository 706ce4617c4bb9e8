package model

import "time"

// ActivityStatus is the recorded outcome of a real-world activity.
type ActivityStatus string

const (
	ActivityAttended  ActivityStatus = "attended"
	ActivityMissed    ActivityStatus = "missed"
	ActivityCancelled ActivityStatus = "cancelled"
)

func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityAttended, ActivityMissed, ActivityCancelled:
		return true
	}
	return false
}

// LoggedActivity is an activity a parent recorded after the fact. It is
// matched back to a scheduled occurrence by name and calendar date.
type LoggedActivity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Category      Category       `json:"category"`
	Timestamp     time.Time      `json:"timestamp"`
	DurationHours float64        `json:"durationHours"`
	Status        ActivityStatus `json:"status"`
}

// Occurrence represents a single concrete instance of a series on one
// calendar date. It is derived and never persisted.
type Occurrence struct {
	SeriesID      string   `json:"seriesId"`
	Name          string   `json:"name"`
	Category      Category `json:"category"`
	Date          Date     `json:"date"`
	Time          string   `json:"time"`
	DurationHours float64  `json:"durationHours"`
	Icon          string   `json:"icon,omitempty"`

	// Completion is filled in by the reconciler when a logged activity
	// matches this occurrence.
	Completion ActivityStatus `json:"completion,omitempty"`
}

// IconSource says where an icon reference came from.
type IconSource string

const (
	IconFallback  IconSource = "fallback"
	IconGenerated IconSource = "generated"
)

// IconState tags whether an icon may still be replaced by a pending
// generation (provisional) or is final (confirmed).
type IconState string

const (
	IconProvisional IconState = "provisional"
	IconConfirmed   IconState = "confirmed"
)

// Icon is the display icon registered for an activity name.
type Icon struct {
	Name      string     `json:"name"`
	Category  Category   `json:"category"`
	Ref       string     `json:"ref"`
	Source    IconSource `json:"source"`
	State     IconState  `json:"state"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
