package models

import "time"

type ProposalStatus string

const (
	ProposalProposed  ProposalStatus = "proposed"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalCompleted ProposalStatus = "completed"
	ProposalCancelled ProposalStatus = "cancelled"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalProposed, ProposalAccepted, ProposalRejected, ProposalCompleted, ProposalCancelled:
		return true
	}
	return false
}

func (s ProposalStatus) Terminal() bool {
	return s == ProposalRejected || s == ProposalCompleted || s == ProposalCancelled
}

// Proposal is a teaching offer against a Request.
type Proposal struct {
	ID            int64          `db:"id" json:"id"`
	RequestID     int64          `db:"request_id" json:"request_id"`
	TeacherID     int64          `db:"teacher_id" json:"teacher_id"`
	ScheduledTime time.Time      `db:"scheduled_time" json:"scheduled_time"`
	Note          string         `db:"note" json:"note"`
	Status        ProposalStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

type NewProposal struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	Note          string    `json:"note"`
}

// Settlement is the outcome of finishing a session.
type Settlement struct {
	Request  *Request          `json:"request"`
	Proposal *Proposal         `json:"proposal"`
	Entry    *TransactionEntry `json:"entry"`
	// Released is the unused part of the hold returned to the request owner.
	Released int64 `json:"released"`
}
