package model

import "time"

type EventKind string

const (
	EventApproval   EventKind = "approval"
	EventSpend      EventKind = "spend"
	EventRevocation EventKind = "revocation"
)

// PermissionEvent is one append-only audit row: a successful on-chain action
// against a ledgered subscription. Value is only set for spend events and
// records the amount actually collected in that transaction.
type PermissionEvent struct {
	ID              string    `db:"id" json:"id"`
	PermissionID    string    `db:"permission_id" json:"permissionId"`
	TransactionHash string    `db:"transaction_hash" json:"transactionHash"`
	Value           *BigInt   `db:"value" json:"value,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

type InsertEventParams struct {
	Kind            EventKind
	PermissionID    string
	TransactionHash string
	Value           *BigInt
}
