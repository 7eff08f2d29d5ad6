package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/subwire/agentpay/internal/database"
	"github.com/subwire/agentpay/internal/model"
)

// eventTables maps an event kind to its append-only audit table.
var eventTables = map[model.EventKind]string{
	model.EventApproval:   "approval_events",
	model.EventSpend:      "spend_events",
	model.EventRevocation: "revocation_events",
}

// EventRepository is the audit half of the ledger: one row per successful
// on-chain action, never updated or deleted.
type EventRepository interface {
	Insert(ctx context.Context, params model.InsertEventParams) (*model.PermissionEvent, error)
	ListByPermissionID(ctx context.Context, kind model.EventKind, permissionID string) ([]model.PermissionEvent, error)
	CountByKind(ctx context.Context, kind model.EventKind) (int, error)
}

type eventRepo struct {
	db database.DBTX
}

func NewEventRepository(db database.DBTX) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Insert(ctx context.Context, params model.InsertEventParams) (*model.PermissionEvent, error) {
	table, ok := eventTables[params.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind: %q", params.Kind)
	}

	var event model.PermissionEvent
	var err error
	if params.Kind == model.EventSpend {
		err = r.db.GetContext(ctx, &event, `
			INSERT INTO spend_events (id, permission_id, transaction_hash, value)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, uuid.NewString(), params.PermissionID, params.TransactionHash, params.Value)
	} else {
		err = r.db.GetContext(ctx, &event, fmt.Sprintf(`
			INSERT INTO %s (id, permission_id, transaction_hash)
			VALUES ($1, $2, $3)
			RETURNING id, permission_id, transaction_hash, created_at, updated_at
		`, table), uuid.NewString(), params.PermissionID, params.TransactionHash)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) ListByPermissionID(ctx context.Context, kind model.EventKind, permissionID string) ([]model.PermissionEvent, error) {
	table, ok := eventTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind: %q", kind)
	}

	cols := "id, permission_id, transaction_hash, created_at, updated_at"
	if kind == model.EventSpend {
		cols = "id, permission_id, transaction_hash, value, created_at, updated_at"
	}

	var events []model.PermissionEvent
	err := r.db.SelectContext(ctx, &events, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE permission_id = $1
		ORDER BY created_at ASC
	`, cols, table), permissionID)
	return events, err
}

func (r *eventRepo) CountByKind(ctx context.Context, kind model.EventKind) (int, error) {
	table, ok := eventTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown event kind: %q", kind)
	}

	var count int
	err := r.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
	return count, err
}
