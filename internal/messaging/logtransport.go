package messaging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LogTransport is the transport of last resort: it logs the outbound message
// and fabricates a message id. Used when no delivery webhook is configured,
// which keeps local runs and the settlement path exercisable without a
// messaging backend.
type LogTransport struct{}

func NewLogTransport() *LogTransport {
	return &LogTransport{}
}

func (t *LogTransport) Send(ctx context.Context, recipient, content, contentType string) (string, error) {
	messageID := uuid.NewString()
	log.Info().
		Str("recipient", recipient).
		Str("contentType", contentType).
		Str("messageId", messageID).
		Str("content", content).
		Msg("outbound message (log transport)")
	return messageID, nil
}
