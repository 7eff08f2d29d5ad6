package service

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/subwire/agentpay/internal/audit"
	"github.com/subwire/agentpay/internal/chain"
	"github.com/subwire/agentpay/internal/messaging"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/sse"
)

// Counterpart-facing decline texts, one per closed reason.
var declineMessages = map[string]string{
	model.ReasonNotSubscribed:  "You are not subscribed. Grant a spend permission to this agent to keep receiving messages.",
	model.ReasonNotEnoughFunds: "Your balance does not cover the message fee. Top up your wallet and the next message will go through.",
	model.ReasonPaymentFailed:  "The message fee could not be collected. Please try again later.",
}

// SubscriptionLifecycle is the slice of the subscription service the engine
// needs: resolving an active subscription and collecting against it.
type SubscriptionLifecycle interface {
	FindActive(ctx context.Context, account, spender string) (*model.Subscription, error)
	Spend(ctx context.Context, query SpendQuery, amount *model.BigInt) (*model.TxReceipt, error)
}

// BalanceReader reads an ERC-20 balance. chain.Gateway satisfies it.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, account string) (*big.Int, error)
}

var _ BalanceReader = (chain.Gateway)(nil)

// SettlementConfig pins the commercial terms of one engine instance: the fee
// in token base units, the fee token, and the agent address permissions must
// name as spender.
type SettlementConfig struct {
	Fee     *model.BigInt
	Token   string
	Agent   string
	Network chain.NetworkConfig
}

// SettlementEngine runs the fee-gated send: check subscription, check
// balance, settle, deliver, post receipt. The sequence is strictly linear
// with no retries; each step either advances or declines, and nothing ever
// runs more than one collection per send.
type SettlementEngine struct {
	subs      SubscriptionLifecycle
	balances  BalanceReader
	transport messaging.Transport
	sink      EventSink
	cfg       SettlementConfig
}

func NewSettlementEngine(
	subs SubscriptionLifecycle,
	balances BalanceReader,
	transport messaging.Transport,
	sink EventSink,
	cfg SettlementConfig,
) *SettlementEngine {
	return &SettlementEngine{
		subs:      subs,
		balances:  balances,
		transport: transport,
		sink:      sink,
		cfg:       cfg,
	}
}

// SendWithFee attempts to collect the fee from recipient and, on success,
// delivers content followed by a receipt message. On any decline the
// recipient gets a plain-text notice instead of the content. Errors never
// escape: every unexpected failure collapses into a Payment Failed decline,
// except after the fee moved, when the outcome reports collected no matter
// what delivery did.
func (e *SettlementEngine) SendWithFee(ctx context.Context, recipient, content, contentType string) model.SettlementOutcome {
	if contentType == "" {
		contentType = messaging.ContentTypeText
	}

	sub, err := e.subs.FindActive(ctx, recipient, e.cfg.Agent)
	if err != nil {
		return e.decline(ctx, recipient, model.ReasonPaymentFailed, err)
	}
	if sub == nil {
		return e.decline(ctx, recipient, model.ReasonNotSubscribed, nil)
	}

	balance, err := e.balances.BalanceOf(ctx, e.cfg.Token, recipient)
	if err != nil {
		return e.decline(ctx, recipient, model.ReasonPaymentFailed, err)
	}
	if balance.Cmp(&e.cfg.Fee.Int) < 0 {
		return e.decline(ctx, recipient, model.ReasonNotEnoughFunds, nil)
	}

	receipt, err := e.subs.Spend(ctx, SpendQuery{
		Account:   sub.Account,
		Spender:   sub.Spender,
		Allowance: sub.Allowance,
	}, e.cfg.Fee)
	if err != nil {
		return e.decline(ctx, recipient, model.ReasonPaymentFailed, err)
	}
	if receipt == nil || receipt.Status != model.TxStatusSuccess || receipt.TransactionHash == "" {
		return e.decline(ctx, recipient, model.ReasonPaymentFailed, nil)
	}

	outcome := model.SettlementOutcome{
		Collected:       true,
		TransactionHash: receipt.TransactionHash,
	}

	messageID, err := e.transport.Send(ctx, recipient, content, contentType)
	if err != nil {
		// The fee moved; the outcome stays collected and no decline is sent.
		// A Payment Failed notice here would claim money the recipient paid
		// was not taken.
		log.Error().Err(err).
			Str("recipient", recipient).
			Str("transactionHash", receipt.TransactionHash).
			Msg("delivery failed after fee collection")
		e.publishOutcome(ctx, recipient, outcome)
		return outcome
	}
	outcome.MessageID = messageID

	e.postReceipt(ctx, recipient, receipt.TransactionHash)
	e.publishOutcome(ctx, recipient, outcome)
	return outcome
}

// postReceipt sends the structured transaction reference as a follow-up
// message. The content is already delivered; a receipt that fails to send is
// logged and dropped.
func (e *SettlementEngine) postReceipt(ctx context.Context, recipient, txHash string) {
	ref := messaging.TransactionReference{
		Namespace: "eip155",
		NetworkID: e.cfg.Network.ChainID.String(),
		Reference: txHash,
	}
	body, err := json.Marshal(ref)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode transaction reference")
		return
	}
	if _, err := e.transport.Send(ctx, recipient, string(body), messaging.ContentTypeTransactionReference); err != nil {
		log.Warn().Err(err).
			Str("recipient", recipient).
			Str("transactionHash", txHash).
			Msg("failed to deliver settlement receipt")
	}
}

func (e *SettlementEngine) decline(ctx context.Context, recipient, reason string, cause error) model.SettlementOutcome {
	event := audit.Event{
		Type:    audit.EventSettlementDecline,
		Account: recipient,
		Spender: e.cfg.Agent,
		Reason:  reason,
	}
	if cause != nil {
		log.Error().Err(cause).
			Str("recipient", recipient).
			Str("reason", reason).
			Msg("settlement declined")
	}
	audit.Log(ctx, event)

	if _, err := e.transport.Send(ctx, recipient, declineMessages[reason], messaging.ContentTypeText); err != nil {
		log.Warn().Err(err).
			Str("recipient", recipient).
			Msg("failed to deliver decline notice")
	}

	outcome := model.SettlementOutcome{Collected: false, Reason: reason}
	e.publishOutcome(ctx, recipient, outcome)
	return outcome
}

func (e *SettlementEngine) publishOutcome(ctx context.Context, recipient string, outcome model.SettlementOutcome) {
	if e.sink == nil {
		return
	}
	payload := map[string]any{
		"recipient": recipient,
		"outcome":   outcome,
	}
	if err := e.sink.PublishJSON(ctx, strings.ToLower(e.cfg.Agent), sse.EventTypeSettlement, payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish settlement event")
	}
}
