package model

import (
	"fmt"
	"regexp"
	"strings"
)

var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// SpendPermission is the signed authorization a subscriber grants the agent:
// the spender may pull up to Allowance of Token from Account once per Period,
// inside the [Start, End] window. Immutable once signed; a changed permission
// is a new permission.
type SpendPermission struct {
	Account   string  `json:"account"`
	Spender   string  `json:"spender"`
	Token     string  `json:"token"`
	Allowance *BigInt `json:"allowance"`
	Period    int64   `json:"period"`
	Start     int64   `json:"start"`
	End       int64   `json:"end"`
	Salt      *BigInt `json:"salt"`
	ExtraData string  `json:"extraData"`
}

func (p SpendPermission) Validate() error {
	if !IsValidAddress(p.Account) {
		return fmt.Errorf("invalid account address: %q", p.Account)
	}
	if !IsValidAddress(p.Spender) {
		return fmt.Errorf("invalid spender address: %q", p.Spender)
	}
	if !IsValidAddress(p.Token) {
		return fmt.Errorf("invalid token address: %q", p.Token)
	}
	if p.Allowance.Sign() <= 0 {
		return fmt.Errorf("allowance must be positive")
	}
	if p.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if p.Start > p.End {
		return fmt.Errorf("start %d is after end %d", p.Start, p.End)
	}
	return nil
}

func IsValidAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// SameParties reports whether two permissions bind the same payer/payee pair.
// Addresses compare case-insensitively (EIP-55 checksums vary by source).
func (p SpendPermission) SameParties(account, spender string) bool {
	return strings.EqualFold(p.Account, account) && strings.EqualFold(p.Spender, spender)
}

// PeriodInfo is the contract's view of the current allowance period.
type PeriodInfo struct {
	Start int64   `json:"start"`
	End   int64   `json:"end"`
	Spend *BigInt `json:"spend"`
}
