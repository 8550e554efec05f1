package events

import "time"

// Event is a scheduled activity supervised by at most one volunteer.
// IsCompleted implies IsStarted; the lifecycle engine owns both flags.
type Event struct {
	ID          int64     `json:"event_id"`
	Name        string    `json:"event_name"`
	Description *string   `json:"event_description,omitempty"`
	Date        time.Time `json:"event_date"`
	Time        *string   `json:"event_time,omitempty"`
	VolunteerID *int64    `json:"volunteer_id,omitempty"`
	IsStarted   bool      `json:"is_started"`
	IsCompleted bool      `json:"is_completed"`
}

// UpsertRequest is the admin create/update payload.
type UpsertRequest struct {
	Name        string  `json:"event_name" binding:"required"`
	Description *string `json:"event_description"`
	Date        string  `json:"event_date" binding:"required,datetime=2006-01-02"`
	Time        *string `json:"event_time"`
	VolunteerID *int64  `json:"volunteer_id"`
}
