package messaging

import (
	"context"

	"github.com/subwire/agentpay/internal/model"
)

// FeeCollector is the settlement decision procedure: it decides whether to
// collect, executes the collection and delivers either the content plus a
// receipt or a decline notice.
type FeeCollector interface {
	SendWithFee(ctx context.Context, recipient, content, contentType string) model.SettlementOutcome
}

// MonetizedSender exposes a fee-gated send alongside the plain one without
// touching the plain path. The plain path must stay unmetered: decline and
// receipt messages go through it, and routing them through SendWithFee would
// charge for the charge.
type MonetizedSender struct {
	transport Transport
	collector FeeCollector
}

func NewMonetizedSender(transport Transport, collector FeeCollector) *MonetizedSender {
	return &MonetizedSender{
		transport: transport,
		collector: collector,
	}
}

// Send delivers without collecting a fee.
func (m *MonetizedSender) Send(ctx context.Context, recipient, content, contentType string) (string, error) {
	return m.transport.Send(ctx, recipient, content, contentType)
}

// SendWithFee runs the settlement procedure and returns its outcome verbatim.
func (m *MonetizedSender) SendWithFee(ctx context.Context, recipient, content, contentType string) model.SettlementOutcome {
	return m.collector.SendWithFee(ctx, recipient, content, contentType)
}
