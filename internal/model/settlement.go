package model

// Decline reasons surfaced to the counterpart as chat messages, never as
// errors. The set is closed: anything unexpected during settlement collapses
// into ReasonPaymentFailed.
const (
	ReasonNotSubscribed  = "Not Subscribed"
	ReasonNotEnoughFunds = "Not Enough Funds"
	ReasonPaymentFailed  = "Payment Failed"
)

// SettlementOutcome is the single result of one fee-gated send. Exactly one
// of the two shapes is ever produced: collected with a message id and tx
// hash, or not collected with a reason.
type SettlementOutcome struct {
	Collected       bool   `json:"collected"`
	Reason          string `json:"reason,omitempty"`
	MessageID       string `json:"messageId,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// TxStatus is the outcome of a relayed transaction, success or failure.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailure TxStatus = "failure"
)

// TxReceipt is the API-facing result of a relayed on-chain operation.
type TxReceipt struct {
	Status          TxStatus `json:"status"`
	TransactionHash string   `json:"transactionHash"`
	TransactionURL  string   `json:"transactionUrl"`
}
