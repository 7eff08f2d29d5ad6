package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/subwire/agentpay/internal/errors"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/service"
)

type SubscriptionsHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionsHandler(subscriptionService *service.SubscriptionService) *SubscriptionsHandler {
	return &SubscriptionsHandler{subscriptionService: subscriptionService}
}

func (h *SubscriptionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/spend", h.Spend)
	r.Post("/revoke", h.Revoke)

	return r
}

// POST /v1/subscriptions
// Relays a signed approval and mirrors the permission in the ledger.
func (h *SubscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpendPermission model.SpendPermission `json:"spendPermission"`
		Signature       string                `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Signature == "" {
		writeError(w, apperrors.MissingRequired("signature"))
		return
	}

	receipt, err := h.subscriptionService.Create(r.Context(), req.SpendPermission, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// GET /v1/subscriptions?account=&spender=&fees=&isValid=
// Lists ledgered subscriptions merged with live on-chain validity. fees
// filters on the permission allowance; isValid=true|false keeps one side of
// the validity split.
func (h *SubscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.SubscriptionFilter{
		Account: r.URL.Query().Get("account"),
		Spender: r.URL.Query().Get("spender"),
	}

	if fees := r.URL.Query().Get("fees"); fees != "" {
		allowance, err := model.ParseBigInt(fees)
		if err != nil {
			writeError(w, apperrors.InvalidInput("fees", "must be a decimal string"))
			return
		}
		filter.Allowance = allowance
	}

	var onlyValid *bool
	switch r.URL.Query().Get("isValid") {
	case "":
	case "true":
		v := true
		onlyValid = &v
	case "false":
		v := false
		onlyValid = &v
	default:
		writeError(w, apperrors.InvalidInput("isValid", "must be true or false"))
		return
	}

	views, err := h.subscriptionService.List(r.Context(), filter, onlyValid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": views})
}

// POST /v1/subscriptions/spend
// Collects an amount against a ledgered subscription. Naming a permission
// the ledger never saw is a 400, not a settlement decline.
func (h *SubscriptionsHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpendRequest struct {
			Account   string        `json:"account"`
			Spender   string        `json:"spender"`
			Allowance *model.BigInt `json:"allowance"`
		} `json:"spendRequest"`
		Amount    *model.BigInt `json:"amount"`
		Signature string        `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.SpendRequest.Account == "" {
		writeError(w, apperrors.MissingRequired("spendRequest.account"))
		return
	}
	if req.SpendRequest.Spender == "" {
		writeError(w, apperrors.MissingRequired("spendRequest.spender"))
		return
	}
	// amount defaults to the permission allowance when omitted
	amount := req.Amount
	if amount == nil {
		amount = req.SpendRequest.Allowance
	}
	if amount == nil {
		writeError(w, apperrors.MissingRequired("amount"))
		return
	}

	receipt, err := h.subscriptionService.Spend(r.Context(), service.SpendQuery{
		Account:   req.SpendRequest.Account,
		Spender:   req.SpendRequest.Spender,
		Allowance: req.SpendRequest.Allowance,
	}, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// POST /v1/subscriptions/revoke
// Idempotent: revoking a permission that is already gone succeeds without a
// transaction.
func (h *SubscriptionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpendPermission model.SpendPermission `json:"spendPermission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	receipt, err := h.subscriptionService.Revoke(r.Context(), req.SpendPermission)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}
