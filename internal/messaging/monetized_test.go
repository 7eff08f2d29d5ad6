package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/subwire/agentpay/internal/model"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, recipient, content, contentType string) (string, error) {
	args := m.Called(ctx, recipient, content, contentType)
	return args.String(0), args.Error(1)
}

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) SendWithFee(ctx context.Context, recipient, content, contentType string) model.SettlementOutcome {
	args := m.Called(ctx, recipient, content, contentType)
	return args.Get(0).(model.SettlementOutcome)
}

func TestMonetizedSenderPlainSendSkipsCollector(t *testing.T) {
	transport := new(mockTransport)
	collector := new(mockCollector)
	sender := NewMonetizedSender(transport, collector)

	transport.On("Send", mock.Anything, "0xabc", "hi", ContentTypeText).Return("msg-1", nil)

	messageID, err := sender.Send(context.Background(), "0xabc", "hi", ContentTypeText)

	require.NoError(t, err)
	assert.Equal(t, "msg-1", messageID)
	collector.AssertNotCalled(t, "SendWithFee", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMonetizedSenderPlainSendPropagatesError(t *testing.T) {
	transport := new(mockTransport)
	sender := NewMonetizedSender(transport, new(mockCollector))

	transport.On("Send", mock.Anything, "0xabc", "hi", ContentTypeText).
		Return("", errors.New("down"))

	_, err := sender.Send(context.Background(), "0xabc", "hi", ContentTypeText)
	assert.Error(t, err)
}

func TestMonetizedSenderPaidSendDelegates(t *testing.T) {
	transport := new(mockTransport)
	collector := new(mockCollector)
	sender := NewMonetizedSender(transport, collector)

	want := model.SettlementOutcome{Collected: true, MessageID: "msg-1", TransactionHash: "0xabc"}
	collector.On("SendWithFee", mock.Anything, "0xabc", "hi", ContentTypeText).Return(want)

	got := sender.SendWithFee(context.Background(), "0xabc", "hi", ContentTypeText)

	assert.Equal(t, want, got)
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMonetizedSenderPaidSendReturnsDeclineVerbatim(t *testing.T) {
	collector := new(mockCollector)
	sender := NewMonetizedSender(new(mockTransport), collector)

	want := model.SettlementOutcome{Collected: false, Reason: model.ReasonNotSubscribed}
	collector.On("SendWithFee", mock.Anything, "0xabc", "hi", ContentTypeText).Return(want)

	got := sender.SendWithFee(context.Background(), "0xabc", "hi", ContentTypeText)

	assert.Equal(t, want, got)
}
