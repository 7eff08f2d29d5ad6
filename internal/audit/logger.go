package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventApprovalRelayed   EventType = "approval_relayed"
	EventApprovalFailed    EventType = "approval_failed"
	EventSpendCollected    EventType = "spend_collected"
	EventSpendFailed       EventType = "spend_failed"
	EventRevocationRelayed EventType = "revocation_relayed"
	EventRevocationNoop    EventType = "revocation_noop"
	EventSettlementDecline EventType = "settlement_decline"
)

// Event is one audited on-chain operation or settlement decision. These logs
// complement the ledger tables: the ledger records successes, the audit log
// also records the attempts that never produced a row.
type Event struct {
	Type            EventType
	PermissionID    string
	Account         string
	Spender         string
	TransactionHash string
	Amount          string
	Reason          string
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "settlement").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.PermissionID != "" {
		logger = logger.With().Str("permission_id", event.PermissionID).Logger()
	}
	if event.Account != "" {
		logger = logger.With().Str("account", event.Account).Logger()
	}
	if event.Spender != "" {
		logger = logger.With().Str("spender", event.Spender).Logger()
	}
	if event.TransactionHash != "" {
		logger = logger.With().Str("tx_hash", event.TransactionHash).Logger()
	}
	if event.Amount != "" {
		logger = logger.With().Str("amount", event.Amount).Logger()
	}
	if event.Reason != "" {
		logger = logger.With().Str("reason", event.Reason).Logger()
	}

	logger.Info().Msg("settlement audit event")
}
