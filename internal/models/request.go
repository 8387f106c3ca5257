package models

import "time"

type RequestStatus string

const (
	RequestDraft     RequestStatus = "draft"
	RequestPending   RequestStatus = "pending"
	RequestScheduled RequestStatus = "scheduled"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestDraft, RequestPending, RequestScheduled, RequestCompleted, RequestCancelled:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// Request is a learning request owned by the learner.
type Request struct {
	ID            int64         `db:"id" json:"id"`
	OwnerID       int64         `db:"owner_id" json:"owner_id"`
	Title         string        `db:"title" json:"title"`
	Body          string        `db:"body" json:"body"`
	Duration      int64         `db:"duration_minutes" json:"duration"`
	PreferredTime time.Time     `db:"preferred_time" json:"preferred_time"`
	Status        RequestStatus `db:"status" json:"status"`
	Tags          []string      `db:"-" json:"tags"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestPatch carries optional edits; nil fields are left unchanged.
type RequestPatch struct {
	Title         *string    `json:"title,omitempty"`
	Body          *string    `json:"body,omitempty"`
	Duration      *int64     `json:"duration,omitempty"`
	PreferredTime *time.Time `json:"preferred_time,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

type NewRequest struct {
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Duration      int64     `json:"duration"`
	PreferredTime time.Time `json:"preferred_time"`
	Tags          []string  `json:"tags"`
	AutoPublish   bool      `json:"auto_publish"`
}
