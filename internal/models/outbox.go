package models

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxFailed     OutboxStatus = "failed"
)

const EventRequestPublished = "request.published"

// OutboxEvent is written in the same transaction as the state change it announces.
type OutboxEvent struct {
	ID           string          `db:"id" json:"id"`
	Topic        string          `db:"topic" json:"topic"`
	Key          string          `db:"key" json:"key"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	Attempts     int             `db:"attempts" json:"attempts"`
	LastError    *string         `db:"last_error" json:"last_error,omitempty"`
	ClaimedAt    *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	DispatchedAt *time.Time      `db:"dispatched_at" json:"dispatched_at,omitempty"`
}

type RequestPublishedEvent struct {
	EventType   string    `json:"event_type"`
	RequestID   int64     `json:"request_id"`
	OwnerID     int64     `json:"owner_id"`
	PublishedAt time.Time `json:"published_at"`
}

// Notification tells a member about a published request matching one of their skills.
type Notification struct {
	MemberID  int64    `json:"member_id"`
	Username  string   `json:"username"`
	RequestID int64    `json:"request_id"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
}
