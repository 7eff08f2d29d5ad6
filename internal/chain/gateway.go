package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/subwire/agentpay/internal/config"
	"github.com/subwire/agentpay/internal/model"
)

// TxResult is the tagged outcome of a relayed mutation. Callers must treat
// Success=false and an error identically: in both cases nothing was
// collected.
type TxResult struct {
	Success         bool
	TransactionHash string
}

// PermissionStatus is the live validity of one permission. A permission is
// usable only when Err is nil, Valid is true and Period is present.
type PermissionStatus struct {
	Valid  bool
	Period *model.PeriodInfo
	Err    error
}

func (s PermissionStatus) Usable() bool {
	return s.Err == nil && s.Valid && s.Period != nil
}

// Gateway is the single point of contact with the spend-permission contract
// and the token ledger. Reads go straight to a node; mutations go through the
// sponsored relay and block until inclusion.
type Gateway interface {
	Statuses(ctx context.Context, perms []model.SpendPermission) []PermissionStatus
	BalanceOf(ctx context.Context, token, account string) (*big.Int, error)
	Approve(ctx context.Context, perm model.SpendPermission, signature []byte) (TxResult, error)
	Spend(ctx context.Context, perm model.SpendPermission, amount *big.Int) (TxResult, error)
	Revoke(ctx context.Context, perm model.SpendPermission) (TxResult, error)
}

type gateway struct {
	node  *rpc.Client
	relay *RelayClient
	cfg   NetworkConfig
}

func NewGateway(ctx context.Context, rpcURL string, relay *RelayClient, cfg NetworkConfig) (Gateway, error) {
	node, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}
	return &gateway{node: node, relay: relay, cfg: cfg}, nil
}

type ethCallArg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Statuses batch-checks isValid and getCurrentPeriod for every permission in
// a single JSON-RPC round trip. Results are positional: one status per input
// permission, failures reported per entry rather than failing the batch.
func (g *gateway) Statuses(ctx context.Context, perms []model.SpendPermission) []PermissionStatus {
	statuses := make([]PermissionStatus, len(perms))
	if len(perms) == 0 {
		return statuses
	}

	ctx, cancel := context.WithTimeout(ctx, config.ChainReadTimeout)
	defer cancel()

	batch := make([]rpc.BatchElem, 0, len(perms)*2)
	results := make([]hexutil.Bytes, len(perms)*2)
	for i, perm := range perms {
		validData, err := packIsValid(perm)
		if err != nil {
			statuses[i].Err = err
			continue
		}
		periodData, err := packGetCurrentPeriod(perm)
		if err != nil {
			statuses[i].Err = err
			continue
		}
		batch = append(batch,
			rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{ethCallArg{To: g.cfg.PermissionManager, Data: validData}, "latest"},
				Result: &results[i*2],
			},
			rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{ethCallArg{To: g.cfg.PermissionManager, Data: periodData}, "latest"},
				Result: &results[i*2+1],
			},
		)
	}

	if len(batch) > 0 {
		if err := g.node.BatchCallContext(ctx, batch); err != nil {
			for i := range statuses {
				if statuses[i].Err == nil {
					statuses[i].Err = fmt.Errorf("batch call: %w", err)
				}
			}
			return statuses
		}
	}

	// Walk the batch back to its permissions. Entries skipped above kept
	// their pack error and consumed no batch slots.
	cursor := 0
	for i := range perms {
		if statuses[i].Err != nil {
			continue
		}
		validElem, periodElem := batch[cursor], batch[cursor+1]
		cursor += 2

		if validElem.Error != nil {
			statuses[i].Err = validElem.Error
			continue
		}
		if periodElem.Error != nil {
			statuses[i].Err = periodElem.Error
			continue
		}

		valid, err := unpackIsValid(*validElem.Result.(*hexutil.Bytes))
		if err != nil {
			statuses[i].Err = err
			continue
		}
		period, err := unpackCurrentPeriod(*periodElem.Result.(*hexutil.Bytes))
		if err != nil {
			statuses[i].Err = err
			continue
		}

		statuses[i].Valid = valid
		statuses[i].Period = period
	}

	return statuses
}

func (g *gateway) BalanceOf(ctx context.Context, token, account string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ChainReadTimeout)
	defer cancel()

	data, err := packBalanceOf(common.HexToAddress(account))
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	var result hexutil.Bytes
	arg := ethCallArg{To: common.HexToAddress(token), Data: data}
	if err := g.node.CallContext(ctx, &result, "eth_call", arg, "latest"); err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	return unpackBalanceOf(result)
}

func (g *gateway) Approve(ctx context.Context, perm model.SpendPermission, signature []byte) (TxResult, error) {
	data, err := packApproveWithSignature(perm, signature)
	if err != nil {
		return TxResult{}, fmt.Errorf("pack approve: %w", err)
	}
	return g.execute(ctx, data)
}

func (g *gateway) Spend(ctx context.Context, perm model.SpendPermission, amount *big.Int) (TxResult, error) {
	data, err := packSpend(perm, amount)
	if err != nil {
		return TxResult{}, fmt.Errorf("pack spend: %w", err)
	}
	return g.execute(ctx, data)
}

func (g *gateway) Revoke(ctx context.Context, perm model.SpendPermission) (TxResult, error) {
	data, err := packRevoke(perm)
	if err != nil {
		return TxResult{}, fmt.Errorf("pack revoke: %w", err)
	}
	return g.execute(ctx, data)
}

func (g *gateway) execute(ctx context.Context, calldata []byte) (TxResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ChainSubmitTimeout)
	defer cancel()

	receipt, err := g.relay.Execute(ctx, g.cfg.ChainID, []Call{{
		To:   g.cfg.PermissionManager,
		Data: calldata,
	}})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{Success: receipt.Success, TransactionHash: receipt.TransactionHash}, nil
}
