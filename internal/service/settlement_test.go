package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/subwire/agentpay/internal/chain"
	"github.com/subwire/agentpay/internal/messaging"
	"github.com/subwire/agentpay/internal/model"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) FindActive(ctx context.Context, account, spender string) (*model.Subscription, error) {
	args := m.Called(ctx, account, spender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *mockLifecycle) Spend(ctx context.Context, query SpendQuery, amount *model.BigInt) (*model.TxReceipt, error) {
	args := m.Called(ctx, query, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TxReceipt), args.Error(1)
}

type mockBalances struct {
	mock.Mock
}

func (m *mockBalances) BalanceOf(ctx context.Context, token, account string) (*big.Int, error) {
	args := m.Called(ctx, token, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, recipient, content, contentType string) (string, error) {
	args := m.Called(ctx, recipient, content, contentType)
	return args.String(0), args.Error(1)
}

const (
	testAgent     = "0x00000000000000000000000000000000000000aa"
	testToken     = "0x036cbd53842c5426634e7929541ec2318f3dcf7e"
	testRecipient = "0x00000000000000000000000000000000000000bb"
)

func newTestEngine(subs *mockLifecycle, balances *mockBalances, transport *mockTransport) *SettlementEngine {
	fee, _ := model.ParseBigInt("50000")
	network, _ := chain.LookupNetwork("base-sepolia")
	return NewSettlementEngine(subs, balances, transport, nil, SettlementConfig{
		Fee:     fee,
		Token:   testToken,
		Agent:   testAgent,
		Network: network,
	})
}

func activeSubscription() *model.Subscription {
	allowance, _ := model.ParseBigInt("100000")
	return &model.Subscription{
		ID:        "sub-1",
		Account:   testRecipient,
		Spender:   testAgent,
		Token:     testToken,
		Allowance: allowance,
	}
}

func TestSendWithFeeCollectsAndDelivers(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.TxReceipt{Status: model.TxStatusSuccess, TransactionHash: "0xabc"}, nil)
	transport.On("Send", mock.Anything, testRecipient, "hello", messaging.ContentTypeText).
		Return("msg-1", nil).Once()
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeTransactionReference).
		Return("msg-2", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.True(t, outcome.Collected)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, "msg-1", outcome.MessageID)
	assert.Equal(t, "0xabc", outcome.TransactionHash)

	subs.AssertNumberOfCalls(t, "Spend", 1)
	transport.AssertExpectations(t)
}

func TestSendWithFeeReceiptIsTransactionReference(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.TxReceipt{Status: model.TxStatusSuccess, TransactionHash: "0xabc"}, nil)
	transport.On("Send", mock.Anything, testRecipient, "hello", messaging.ContentTypeText).
		Return("msg-1", nil)

	var receiptBody string
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeTransactionReference).
		Run(func(args mock.Arguments) { receiptBody = args.String(2) }).
		Return("msg-2", nil)

	engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	var ref messaging.TransactionReference
	require.NoError(t, json.Unmarshal([]byte(receiptBody), &ref))
	assert.Equal(t, "eip155", ref.Namespace)
	assert.Equal(t, "84532", ref.NetworkID)
	assert.Equal(t, "0xabc", ref.Reference)
}

func TestSendWithFeeNotSubscribed(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(nil, nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonNotSubscribed, outcome.Reason)
	assert.Empty(t, outcome.MessageID)
	assert.Empty(t, outcome.TransactionHash)

	// The decline notice is the only delivery; no balance check, no spend.
	balances.AssertNotCalled(t, "BalanceOf", mock.Anything, mock.Anything, mock.Anything)
	subs.AssertNotCalled(t, "Spend", mock.Anything, mock.Anything, mock.Anything)
	transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendWithFeeNotEnoughFunds(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(49_999), nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonNotEnoughFunds, outcome.Reason)
	subs.AssertNotCalled(t, "Spend", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendWithFeeBalanceExactlyFeePasses(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(50_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.TxReceipt{Status: model.TxStatusSuccess, TransactionHash: "0xabc"}, nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, mock.Anything).Return("msg", nil)

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.True(t, outcome.Collected)
}

func TestSendWithFeeSpendErrorIsPaymentFailed(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("bundler timeout"))
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonPaymentFailed, outcome.Reason)
	transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendWithFeeFailedReceiptIsPaymentFailed(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.TxReceipt{Status: model.TxStatusFailure, TransactionHash: "0xdead"}, nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonPaymentFailed, outcome.Reason)
}

func TestSendWithFeeFindActiveErrorIsPaymentFailed(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(nil, errors.New("db down"))
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonPaymentFailed, outcome.Reason)
}

func TestSendWithFeeBalanceErrorIsPaymentFailed(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(nil, errors.New("rpc timeout"))
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("msg-decline", nil).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonPaymentFailed, outcome.Reason)
	subs.AssertNotCalled(t, "Spend", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendWithFeeDeliveryFailureAfterCollection(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(activeSubscription(), nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)
	subs.On("Spend", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.TxReceipt{Status: model.TxStatusSuccess, TransactionHash: "0xabc"}, nil)
	transport.On("Send", mock.Anything, testRecipient, "hello", messaging.ContentTypeText).
		Return("", errors.New("transport down")).Once()

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	// The fee moved, so the outcome is collected with no decline notice and
	// no receipt message.
	assert.True(t, outcome.Collected)
	assert.Empty(t, outcome.MessageID)
	assert.Equal(t, "0xabc", outcome.TransactionHash)
	transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestSendWithFeeDeclineDeliveryFailureStillDeclines(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(nil, nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, messaging.ContentTypeText).
		Return("", errors.New("transport down"))

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.False(t, outcome.Collected)
	assert.Equal(t, model.ReasonNotSubscribed, outcome.Reason)
}

func TestSendWithFeeSpendsQueriedSubscription(t *testing.T) {
	subs := new(mockLifecycle)
	balances := new(mockBalances)
	transport := new(mockTransport)
	engine := newTestEngine(subs, balances, transport)

	sub := activeSubscription()
	subs.On("FindActive", mock.Anything, testRecipient, testAgent).Return(sub, nil)
	balances.On("BalanceOf", mock.Anything, testToken, testRecipient).Return(big.NewInt(1_000_000), nil)

	fee, _ := model.ParseBigInt("50000")
	subs.On("Spend", mock.Anything, SpendQuery{
		Account:   sub.Account,
		Spender:   sub.Spender,
		Allowance: sub.Allowance,
	}, fee).Return(&model.TxReceipt{Status: model.TxStatusSuccess, TransactionHash: "0xabc"}, nil)
	transport.On("Send", mock.Anything, testRecipient, mock.Anything, mock.Anything).Return("msg", nil)

	outcome := engine.SendWithFee(context.Background(), testRecipient, "hello", "")

	assert.True(t, outcome.Collected)
	subs.AssertExpectations(t)
}
