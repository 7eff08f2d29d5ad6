package model

import (
	"time"
)

// Subscription is the ledger row mirroring a granted SpendPermission. Rows are
// never updated after insert; a revocation is recorded as an event, not a
// deletion, so the audit trail survives.
type Subscription struct {
	ID        string    `db:"id" json:"id"`
	Account   string    `db:"account" json:"account"`
	Spender   string    `db:"spender" json:"spender"`
	Token     string    `db:"token" json:"token"`
	Allowance *BigInt   `db:"allowance" json:"allowance"`
	Period    int64     `db:"period" json:"period"`
	Start     time.Time `db:"start_at" json:"start"`
	End       time.Time `db:"end_at" json:"end"`
	Salt      *BigInt   `db:"salt" json:"salt"`
	ExtraData string    `db:"extra_data" json:"extraData"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Permission reconstructs the on-chain value object from the ledger row.
func (s *Subscription) Permission() SpendPermission {
	return SpendPermission{
		Account:   s.Account,
		Spender:   s.Spender,
		Token:     s.Token,
		Allowance: s.Allowance,
		Period:    s.Period,
		Start:     s.Start.Unix(),
		End:       s.End.Unix(),
		Salt:      s.Salt,
		ExtraData: s.ExtraData,
	}
}

type CreateSubscriptionParams struct {
	Permission SpendPermission
}

// SubscriptionFilter narrows ledger queries. All set fields are AND-ed;
// zero-valued fields are unconstrained.
type SubscriptionFilter struct {
	Account   string
	Spender   string
	Allowance *BigInt
}

// SubscriptionView pairs a ledger row with its live on-chain validity.
// Validity is a function of current time and on-chain spend-to-date, so it is
// recomputed on every query and never stored.
type SubscriptionView struct {
	SpendPermission SpendPermission `json:"spendPermission"`
	SubscriptionID  string          `json:"subscriptionId"`
	IsValid         bool            `json:"isValid"`
	CurrentPeriod   *PeriodInfo     `json:"currentPeriod,omitempty"`
	Error           string          `json:"error,omitempty"`
}
