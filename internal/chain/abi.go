package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/subwire/agentpay/internal/model"
)

// SpendPermissionManager surface we call. The permission tuple layout must
// match the deployed contract exactly; it is part of the signed EIP-712
// struct, so any drift invalidates signatures.
const managerABIJSON = `[
  {"type":"function","name":"isValid","stateMutability":"view",
   "inputs":[{"name":"spendPermission","type":"tuple","components":[
     {"name":"account","type":"address"},{"name":"spender","type":"address"},
     {"name":"token","type":"address"},{"name":"allowance","type":"uint160"},
     {"name":"period","type":"uint48"},{"name":"start","type":"uint48"},
     {"name":"end","type":"uint48"},{"name":"salt","type":"uint256"},
     {"name":"extraData","type":"bytes"}]}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getCurrentPeriod","stateMutability":"view",
   "inputs":[{"name":"spendPermission","type":"tuple","components":[
     {"name":"account","type":"address"},{"name":"spender","type":"address"},
     {"name":"token","type":"address"},{"name":"allowance","type":"uint160"},
     {"name":"period","type":"uint48"},{"name":"start","type":"uint48"},
     {"name":"end","type":"uint48"},{"name":"salt","type":"uint256"},
     {"name":"extraData","type":"bytes"}]}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"start","type":"uint48"},{"name":"end","type":"uint48"},
     {"name":"spend","type":"uint160"}]}]},
  {"type":"function","name":"approveWithSignature","stateMutability":"nonpayable",
   "inputs":[{"name":"spendPermission","type":"tuple","components":[
     {"name":"account","type":"address"},{"name":"spender","type":"address"},
     {"name":"token","type":"address"},{"name":"allowance","type":"uint160"},
     {"name":"period","type":"uint48"},{"name":"start","type":"uint48"},
     {"name":"end","type":"uint48"},{"name":"salt","type":"uint256"},
     {"name":"extraData","type":"bytes"}]},
     {"name":"signature","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"spend","stateMutability":"nonpayable",
   "inputs":[{"name":"spendPermission","type":"tuple","components":[
     {"name":"account","type":"address"},{"name":"spender","type":"address"},
     {"name":"token","type":"address"},{"name":"allowance","type":"uint160"},
     {"name":"period","type":"uint48"},{"name":"start","type":"uint48"},
     {"name":"end","type":"uint48"},{"name":"salt","type":"uint256"},
     {"name":"extraData","type":"bytes"}]},
     {"name":"value","type":"uint160"}],
   "outputs":[]},
  {"type":"function","name":"revokeAsSpender","stateMutability":"nonpayable",
   "inputs":[{"name":"spendPermission","type":"tuple","components":[
     {"name":"account","type":"address"},{"name":"spender","type":"address"},
     {"name":"token","type":"address"},{"name":"allowance","type":"uint160"},
     {"name":"period","type":"uint48"},{"name":"start","type":"uint48"},
     {"name":"end","type":"uint48"},{"name":"salt","type":"uint256"},
     {"name":"extraData","type":"bytes"}]}],
   "outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	managerABI abi.ABI
	erc20ABI   abi.ABI
)

func init() {
	var err error
	managerABI, err = abi.JSON(strings.NewReader(managerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad manager ABI: %v", err))
	}
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: bad erc20 ABI: %v", err))
	}
}

// permissionArg mirrors the contract's SpendPermission tuple for ABI packing.
type permissionArg struct {
	Account   common.Address
	Spender   common.Address
	Token     common.Address
	Allowance *big.Int
	Period    *big.Int
	Start     *big.Int
	End       *big.Int
	Salt      *big.Int
	ExtraData []byte
}

// periodResult mirrors the contract's PeriodSpend tuple for unpacking.
type periodResult struct {
	Start *big.Int
	End   *big.Int
	Spend *big.Int
}

func toPermissionArg(p model.SpendPermission) (permissionArg, error) {
	if p.Allowance == nil || p.Salt == nil {
		return permissionArg{}, fmt.Errorf("permission allowance and salt must be set")
	}

	extra := []byte{}
	if p.ExtraData != "" && p.ExtraData != "0x" {
		decoded, err := hexutil.Decode(p.ExtraData)
		if err != nil {
			return permissionArg{}, fmt.Errorf("invalid extraData: %w", err)
		}
		extra = decoded
	}

	return permissionArg{
		Account:   common.HexToAddress(p.Account),
		Spender:   common.HexToAddress(p.Spender),
		Token:     common.HexToAddress(p.Token),
		Allowance: new(big.Int).Set(&p.Allowance.Int),
		Period:    big.NewInt(p.Period),
		Start:     big.NewInt(p.Start),
		End:       big.NewInt(p.End),
		Salt:      new(big.Int).Set(&p.Salt.Int),
		ExtraData: extra,
	}, nil
}

func packIsValid(p model.SpendPermission) ([]byte, error) {
	arg, err := toPermissionArg(p)
	if err != nil {
		return nil, err
	}
	return managerABI.Pack("isValid", arg)
}

func packGetCurrentPeriod(p model.SpendPermission) ([]byte, error) {
	arg, err := toPermissionArg(p)
	if err != nil {
		return nil, err
	}
	return managerABI.Pack("getCurrentPeriod", arg)
}

func packApproveWithSignature(p model.SpendPermission, signature []byte) ([]byte, error) {
	arg, err := toPermissionArg(p)
	if err != nil {
		return nil, err
	}
	return managerABI.Pack("approveWithSignature", arg, signature)
}

func packSpend(p model.SpendPermission, value *big.Int) ([]byte, error) {
	arg, err := toPermissionArg(p)
	if err != nil {
		return nil, err
	}
	return managerABI.Pack("spend", arg, value)
}

func packRevoke(p model.SpendPermission) ([]byte, error) {
	arg, err := toPermissionArg(p)
	if err != nil {
		return nil, err
	}
	return managerABI.Pack("revokeAsSpender", arg)
}

func packBalanceOf(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

func unpackIsValid(data []byte) (bool, error) {
	out, err := managerABI.Unpack("isValid", data)
	if err != nil {
		return false, err
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isValid result type %T", out[0])
	}
	return valid, nil
}

func unpackCurrentPeriod(data []byte) (*model.PeriodInfo, error) {
	out, err := managerABI.Unpack("getCurrentPeriod", data)
	if err != nil {
		return nil, err
	}
	period := *abi.ConvertType(out[0], new(periodResult)).(*periodResult)

	spend := &model.BigInt{}
	spend.Set(period.Spend)
	return &model.PeriodInfo{
		Start: period.Start.Int64(),
		End:   period.End.Int64(),
		Spend: spend,
	}, nil
}

func unpackBalanceOf(data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}
	return balance, nil
}
