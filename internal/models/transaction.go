package models

import "time"

type TransactionKind string

const (
	KindSettlement TransactionKind = "settlement"
	KindTopUp      TransactionKind = "top_up"
)

// TransactionEntry is an immutable movement of minutes between two members.
type TransactionEntry struct {
	ID           int64           `db:"id" json:"id"`
	FromMemberID int64           `db:"from_member_id" json:"from_member_id"`
	ToMemberID   int64           `db:"to_member_id" json:"to_member_id"`
	Amount       int64           `db:"amount" json:"amount"`
	Kind         TransactionKind `db:"kind" json:"kind"`
	RequestID    *int64          `db:"request_id" json:"request_id,omitempty"`
	ProposalID   *int64          `db:"proposal_id" json:"proposal_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Reference links an entry to the session that produced it.
type Reference struct {
	RequestID  *int64
	ProposalID *int64
}

// Reconciliation compares the stored balance with the transaction log.
type Reconciliation struct {
	MemberID   int64 `json:"member_id"`
	Total      int64 `json:"total"`
	Received   int64 `json:"received"`
	Sent       int64 `json:"sent"`
	NetFromLog int64 `json:"net_from_log"`
	Consistent bool  `json:"consistent"`
	// Exempt is set for the system account; it only ever sends minutes.
	Exempt bool `json:"exempt,omitempty"`
}
