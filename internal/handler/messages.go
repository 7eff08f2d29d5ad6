package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/subwire/agentpay/internal/errors"
	"github.com/subwire/agentpay/internal/messaging"
	"github.com/subwire/agentpay/internal/model"
)

type MessagesHandler struct {
	sender *messaging.MonetizedSender
}

func NewMessagesHandler(sender *messaging.MonetizedSender) *MessagesHandler {
	return &MessagesHandler{sender: sender}
}

func (h *MessagesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Send)
	r.Post("/paid", h.SendPaid)

	return r
}

type sendRequest struct {
	Recipient   string `json:"recipient"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

func (req *sendRequest) validate() error {
	if !model.IsValidAddress(req.Recipient) {
		return apperrors.InvalidInput("recipient", "must be a 0x address")
	}
	if req.Content == "" {
		return apperrors.MissingRequired("content")
	}
	return nil
}

// POST /v1/messages
// Plain send, no fee. Stays unmetered so operator notices and manual
// messages never trigger a collection.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	messageID, err := h.sender.Send(r.Context(), req.Recipient, req.Content, req.ContentType)
	if err != nil {
		log.Error().Err(err).Str("recipient", req.Recipient).Msg("failed to send message")
		writeError(w, apperrors.Internal("Failed to send message").WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
}

// POST /v1/messages/paid
// Fee-gated send. The settlement outcome is the response body either way;
// declines are 402 so callers can branch without parsing the reason.
func (h *MessagesHandler) SendPaid(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	outcome := h.sender.SendWithFee(r.Context(), req.Recipient, req.Content, req.ContentType)

	status := http.StatusOK
	if !outcome.Collected {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, outcome)
}
