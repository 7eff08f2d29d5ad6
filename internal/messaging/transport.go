package messaging

import "context"

// Content types carried over the transport. The receipt type is a structured
// payload the recipient's client renders as proof of payment.
const (
	ContentTypeText                 = "text"
	ContentTypeTransactionReference = "transactionReference"
)

// Transport is the outbound half of the messaging layer this service sits on
// top of. Conversation management, encoding and delivery live behind it; the
// settlement core only needs send(content) -> messageId.
type Transport interface {
	Send(ctx context.Context, recipient, content, contentType string) (string, error)
}

// TransactionReference is the body of a receipt message: enough for the
// recipient's client to link and render the settlement transaction.
type TransactionReference struct {
	Namespace string `json:"namespace"`
	NetworkID string `json:"networkId"`
	Reference string `json:"reference"`
}
