package middleware

import (
	"net/http"

	"github.com/subwire/agentpay/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
