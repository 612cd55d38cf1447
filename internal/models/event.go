package models

import "time"

// Lifecycle event types pushed to connected users.
const (
	EventQuoteSubmitted   = "quote.submitted"
	EventQuoteAccepted    = "quote.accepted"
	EventQuoteRejected    = "quote.rejected"
	EventProjectStarted   = "project.started"
	EventProjectCompleted = "project.completed"
	EventProjectCancelled = "project.cancelled"
	EventRatingCreated    = "rating.created"
)

// LifecycleEvent announces a status change to an interested user.
type LifecycleEvent struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
