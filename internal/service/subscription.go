package service

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"

	"github.com/subwire/agentpay/internal/audit"
	"github.com/subwire/agentpay/internal/chain"
	"github.com/subwire/agentpay/internal/config"
	apperrors "github.com/subwire/agentpay/internal/errors"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/repository"
	"github.com/subwire/agentpay/internal/sse"
	"github.com/subwire/agentpay/internal/util"
)

// EventSink receives settlement and ledger notifications for streaming.
type EventSink interface {
	PublishJSON(ctx context.Context, spender, eventType string, payload any) error
}

// SpendQuery identifies the subscription a collection runs against. The
// (account, spender) pair is the permission's identity; allowance
// disambiguates when one pair granted several permissions.
type SpendQuery struct {
	Account   string
	Spender   string
	Allowance *model.BigInt
}

// On-chain reverts the revoke path tolerates: the permission is already gone,
// which is the state revoke wants. Substring matching is what the relay gives
// us; see DESIGN.md.
var toleratedRevokeErrors = []string{
	"not found",
	"already revoked",
}

// SubscriptionService owns the subscription lifecycle: creating (relay the
// approval, mirror it in the ledger), listing merged with live on-chain
// validity, collecting against it, and revoking it.
type SubscriptionService struct {
	subs     repository.SubscriptionRepository
	events   repository.EventRepository
	gateway  chain.Gateway
	network  chain.NetworkConfig
	receipts *receiptCache
	sink     EventSink
}

func NewSubscriptionService(
	subs repository.SubscriptionRepository,
	events repository.EventRepository,
	gateway chain.Gateway,
	network chain.NetworkConfig,
	sink EventSink,
) *SubscriptionService {
	return &SubscriptionService{
		subs:     subs,
		events:   events,
		gateway:  gateway,
		network:  network,
		receipts: newReceiptCache(config.CreateReceiptTTL),
		sink:     sink,
	}
}

// Create relays the signed approval and mirrors the permission in the
// ledger. The ledger row is written even when the relay reports failure: the
// ledger records the attempt's logical permission, and only the
// ApprovalEvent is gated on on-chain success. Retries with the same
// signature replay the original receipt instead of re-relaying.
func (s *SubscriptionService) Create(ctx context.Context, perm model.SpendPermission, signatureHex string) (*model.TxReceipt, error) {
	if err := perm.Validate(); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	if !util.IsValidHex(signatureHex) || signatureHex == "0x" {
		return nil, apperrors.InvalidInput("signature", "must be 0x-prefixed hex")
	}
	signature, err := hexutil.Decode(signatureHex)
	if err != nil {
		return nil, apperrors.InvalidInput("signature", err.Error())
	}

	key := util.HashKey([]byte(strings.ToLower(signatureHex)))
	status, cached, done := s.receipts.checkAndMark(key)
	switch status {
	case cacheHit:
		log.Debug().Str("account", perm.Account).Msg("create replayed from receipt cache")
		return cached, nil
	case cacheInFlight:
		replayed, err := s.receipts.wait(ctx, key, done)
		if err != nil {
			return nil, apperrors.Internal("create interrupted").WithCause(err)
		}
		if replayed != nil {
			return replayed, nil
		}
		// The concurrent holder failed before caching; run fresh.
		return s.Create(ctx, perm, signatureHex)
	}

	result, execErr := s.gateway.Approve(ctx, perm, signature)

	sub, dbErr := s.subs.Create(ctx, model.CreateSubscriptionParams{Permission: perm})
	if dbErr != nil {
		s.receipts.release(key, done)
		return nil, apperrors.Database(dbErr)
	}

	receipt := &model.TxReceipt{
		Status:          model.TxStatusFailure,
		TransactionHash: result.TransactionHash,
		TransactionURL:  s.network.ExplorerTxURL(result.TransactionHash),
	}

	if execErr == nil && result.Success {
		receipt.Status = model.TxStatusSuccess

		if _, err := s.events.Insert(ctx, model.InsertEventParams{
			Kind:            model.EventApproval,
			PermissionID:    sub.ID,
			TransactionHash: result.TransactionHash,
		}); err != nil {
			log.Error().Err(err).Str("permissionId", sub.ID).Msg("failed to ledger approval event")
		}

		audit.Log(ctx, audit.Event{
			Type:            audit.EventApprovalRelayed,
			PermissionID:    sub.ID,
			Account:         perm.Account,
			Spender:         perm.Spender,
			TransactionHash: result.TransactionHash,
		})
		s.publish(ctx, perm.Spender, sse.EventTypeApproval, map[string]any{
			"permissionId":    sub.ID,
			"account":         perm.Account,
			"transactionHash": result.TransactionHash,
		})
	} else {
		reason := "relay reported failure"
		if execErr != nil {
			reason = execErr.Error()
		}
		audit.Log(ctx, audit.Event{
			Type:         audit.EventApprovalFailed,
			PermissionID: sub.ID,
			Account:      perm.Account,
			Spender:      perm.Spender,
			Reason:       reason,
		})
		log.Warn().
			Str("permissionId", sub.ID).
			Str("account", perm.Account).
			Str("reason", reason).
			Msg("approval not confirmed; subscription ledgered without approval event")
	}

	s.receipts.complete(key, receipt, done)
	return receipt, nil
}

// List merges ledger rows with their live on-chain validity. onlyValid is
// tri-state: nil returns everything with flags attached, true keeps only
// valid rows, false keeps only invalid ones.
func (s *SubscriptionService) List(ctx context.Context, filter model.SubscriptionFilter, onlyValid *bool) ([]model.SubscriptionView, error) {
	rows, err := s.subs.Find(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	perms := make([]model.SpendPermission, len(rows))
	for i := range rows {
		perms[i] = rows[i].Permission()
	}
	statuses := s.gateway.Statuses(ctx, perms)

	views := make([]model.SubscriptionView, 0, len(rows))
	for i := range rows {
		st := statuses[i]
		view := model.SubscriptionView{
			SpendPermission: perms[i],
			SubscriptionID:  rows[i].ID,
			IsValid:         st.Usable(),
			CurrentPeriod:   st.Period,
		}
		if st.Err != nil {
			view.Error = st.Err.Error()
		}
		if onlyValid != nil && *onlyValid != view.IsValid {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// FindActive returns the first ledgered subscription between account and
// spender that the contract still reports as valid, or nil when none is.
func (s *SubscriptionService) FindActive(ctx context.Context, account, spender string) (*model.Subscription, error) {
	rows, err := s.subs.Find(ctx, model.SubscriptionFilter{Account: account, Spender: spender})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	perms := make([]model.SpendPermission, len(rows))
	for i := range rows {
		perms[i] = rows[i].Permission()
	}
	statuses := s.gateway.Statuses(ctx, perms)
	for i := range rows {
		if statuses[i].Usable() {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// Spend collects amount against the ledgered subscription matching the
// query. A failed collection ledgers nothing: spend events exist only for
// transactions that actually moved funds.
func (s *SubscriptionService) Spend(ctx context.Context, query SpendQuery, amount *model.BigInt) (*model.TxReceipt, error) {
	if amount.Sign() <= 0 {
		return nil, apperrors.InvalidInput("amount", "must be positive")
	}

	rows, err := s.subs.Find(ctx, model.SubscriptionFilter{
		Account:   query.Account,
		Spender:   query.Spender,
		Allowance: query.Allowance,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if len(rows) == 0 {
		return nil, apperrors.SubscriptionNotFound()
	}
	sub := rows[0]

	result, execErr := s.gateway.Spend(ctx, sub.Permission(), &amount.Int)
	if execErr != nil {
		audit.Log(ctx, audit.Event{
			Type:         audit.EventSpendFailed,
			PermissionID: sub.ID,
			Account:      sub.Account,
			Spender:      sub.Spender,
			Amount:       amount.String(),
			Reason:       execErr.Error(),
		})
		return nil, apperrors.Chain("spend", execErr)
	}

	receipt := &model.TxReceipt{
		Status:          model.TxStatusFailure,
		TransactionHash: result.TransactionHash,
		TransactionURL:  s.network.ExplorerTxURL(result.TransactionHash),
	}

	if !result.Success {
		audit.Log(ctx, audit.Event{
			Type:         audit.EventSpendFailed,
			PermissionID: sub.ID,
			Account:      sub.Account,
			Spender:      sub.Spender,
			Amount:       amount.String(),
			Reason:       "relay reported failure",
		})
		return receipt, nil
	}

	receipt.Status = model.TxStatusSuccess

	if _, err := s.events.Insert(ctx, model.InsertEventParams{
		Kind:            model.EventSpend,
		PermissionID:    sub.ID,
		TransactionHash: result.TransactionHash,
		Value:           amount,
	}); err != nil {
		// The collection happened; losing the ledger row is an ops problem,
		// not grounds to report the spend as failed.
		log.Error().Err(err).Str("permissionId", sub.ID).Msg("failed to ledger spend event")
	}

	audit.Log(ctx, audit.Event{
		Type:            audit.EventSpendCollected,
		PermissionID:    sub.ID,
		Account:         sub.Account,
		Spender:         sub.Spender,
		TransactionHash: result.TransactionHash,
		Amount:          amount.String(),
	})
	s.publish(ctx, sub.Spender, sse.EventTypeSpend, map[string]any{
		"permissionId":    sub.ID,
		"account":         sub.Account,
		"value":           amount.String(),
		"transactionHash": result.TransactionHash,
	})

	return receipt, nil
}

// Revoke relays a revocation. A revert saying the permission is not there is
// treated as already-revoked and reported as success with no transaction.
func (s *SubscriptionService) Revoke(ctx context.Context, perm model.SpendPermission) (*model.TxReceipt, error) {
	if err := perm.Validate(); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	result, execErr := s.gateway.Revoke(ctx, perm)
	if execErr != nil {
		if isToleratedRevokeError(execErr) {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventRevocationNoop,
				Account: perm.Account,
				Spender: perm.Spender,
				Reason:  execErr.Error(),
			})
			return &model.TxReceipt{Status: model.TxStatusSuccess}, nil
		}
		return nil, apperrors.Chain("revoke", execErr)
	}

	receipt := &model.TxReceipt{
		Status:          model.TxStatusFailure,
		TransactionHash: result.TransactionHash,
		TransactionURL:  s.network.ExplorerTxURL(result.TransactionHash),
	}
	if !result.Success {
		return receipt, nil
	}
	receipt.Status = model.TxStatusSuccess

	rows, err := s.subs.Find(ctx, model.SubscriptionFilter{
		Account:   perm.Account,
		Spender:   perm.Spender,
		Allowance: perm.Allowance,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to look up subscription for revocation event")
	} else if len(rows) > 0 {
		if _, err := s.events.Insert(ctx, model.InsertEventParams{
			Kind:            model.EventRevocation,
			PermissionID:    rows[0].ID,
			TransactionHash: result.TransactionHash,
		}); err != nil {
			log.Error().Err(err).Str("permissionId", rows[0].ID).Msg("failed to ledger revocation event")
		}
		audit.Log(ctx, audit.Event{
			Type:            audit.EventRevocationRelayed,
			PermissionID:    rows[0].ID,
			Account:         perm.Account,
			Spender:         perm.Spender,
			TransactionHash: result.TransactionHash,
		})
		s.publish(ctx, perm.Spender, sse.EventTypeRevocation, map[string]any{
			"permissionId":    rows[0].ID,
			"account":         perm.Account,
			"transactionHash": result.TransactionHash,
		})
	}

	return receipt, nil
}

func (s *SubscriptionService) publish(ctx context.Context, spender, eventType string, payload any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.PublishJSON(ctx, strings.ToLower(spender), eventType, payload); err != nil {
		log.Warn().Err(err).Str("eventType", eventType).Msg("failed to publish ledger event")
	}
}

func isToleratedRevokeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, tolerated := range toleratedRevokeErrors {
		if strings.Contains(msg, tolerated) {
			return true
		}
	}
	return false
}
