package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/subwire/agentpay/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Event is one settlement or ledger notification fanned out to stream
// consumers: approvals, spends, revocations and per-message settlement
// outcomes.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	EventTypeApproval   = "approval"
	EventTypeSpend      = "spend"
	EventTypeRevocation = "revocation"
	EventTypeSettlement = "settlement"
	EventTypeExpired    = "expired"
)

type Client struct {
	Spender string
	Events  chan Event
	Done    chan struct{}
}

// Broker fans settlement events out to SSE clients, bridged across processes
// through redis pub/sub keyed by agent (spender) address.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // spender -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(spender string) *Client {
	client := &Client{
		Spender: spender,
		Events:  make(chan Event, 100),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[spender] == nil {
		b.clients[spender] = make(map[*Client]bool)
		go b.subscribeToRedis(spender)
	}
	b.clients[spender][client] = true
	clientCount := len(b.clients[spender])
	b.mu.Unlock()

	log.Info().
		Str("spender", spender).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Spender]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.Spender)
		}

		log.Info().
			Str("spender", client.Spender).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish pushes an event onto the spender's channel. Marshal payloads with
// PublishJSON unless the data is already raw JSON.
func (b *Broker) Publish(ctx context.Context, spender string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SettlementChannel(spender)
	return b.redis.Publish(ctx, channel, data).Err()
}

// PublishJSON marshals payload and publishes it under the given event type.
func (b *Broker) PublishJSON(ctx context.Context, spender, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(ctx, spender, Event{Type: eventType, Data: data})
}

func (b *Broker) subscribeToRedis(spender string) {
	channel := redisclient.SettlementChannel(spender)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("spender", spender).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(spender, event)
		}
	}
}

func (b *Broker) broadcast(spender string, event Event) {
	b.mu.RLock()
	clients := b.clients[spender]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("spender", spender).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(spender string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[spender])
}
