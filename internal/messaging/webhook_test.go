package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookTransportSend(t *testing.T) {
	var got webhookRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]string{"messageId": "msg-42"})
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL)
	messageID, err := transport.Send(context.Background(), "0xabc", "hello", ContentTypeText)

	require.NoError(t, err)
	assert.Equal(t, "msg-42", messageID)
	assert.Equal(t, "0xabc", got.Recipient)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, ContentTypeText, got.ContentType)
}

func TestWebhookTransportNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL)
	_, err := transport.Send(context.Background(), "0xabc", "hello", ContentTypeText)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookTransportEmptyMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	transport := NewWebhookTransport(server.URL)
	_, err := transport.Send(context.Background(), "0xabc", "hello", ContentTypeText)

	assert.Error(t, err)
}

func TestWebhookTransportUnreachable(t *testing.T) {
	transport := NewWebhookTransport("http://127.0.0.1:1")
	_, err := transport.Send(context.Background(), "0xabc", "hello", ContentTypeText)
	assert.Error(t, err)
}
