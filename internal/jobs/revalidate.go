package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subwire/agentpay/internal/chain"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/repository"
	"github.com/subwire/agentpay/internal/sse"
)

// EventSink matches the broker's publish surface.
type EventSink interface {
	PublishJSON(ctx context.Context, spender, eventType string, payload any) error
}

// RevalidateJob periodically re-checks the on-chain validity of every
// ledgered subscription naming this agent as spender and announces the ones
// that flipped from valid to invalid. Validity itself is never cached; this
// sweep only exists so expiry is noticed without waiting for the next send.
type RevalidateJob struct {
	subs     repository.SubscriptionRepository
	gateway  chain.Gateway
	sink     EventSink
	spender  string
	interval time.Duration
	done     chan struct{}

	mu        sync.Mutex
	lastValid map[string]bool
}

func NewRevalidateJob(
	subs repository.SubscriptionRepository,
	gateway chain.Gateway,
	sink EventSink,
	spender string,
	interval time.Duration,
) *RevalidateJob {
	return &RevalidateJob{
		subs:      subs,
		gateway:   gateway,
		sink:      sink,
		spender:   strings.ToLower(spender),
		interval:  interval,
		done:      make(chan struct{}),
		lastValid: make(map[string]bool),
	}
}

func (j *RevalidateJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("revalidate job started")
}

func (j *RevalidateJob) Stop() {
	close(j.done)
	log.Info().Msg("revalidate job stopped")
}

func (j *RevalidateJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *RevalidateJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rows, err := j.subs.Find(ctx, model.SubscriptionFilter{Spender: j.spender})
	if err != nil {
		log.Error().Err(err).Msg("revalidate sweep failed to list subscriptions")
		return
	}
	if len(rows) == 0 {
		return
	}

	perms := make([]model.SpendPermission, len(rows))
	for i := range rows {
		perms[i] = rows[i].Permission()
	}
	statuses := j.gateway.Statuses(ctx, perms)

	valid, expired := 0, 0

	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range rows {
		st := statuses[i]
		if st.Err != nil {
			// A read failure is not an expiry; skip without updating state.
			continue
		}
		if st.Usable() {
			valid++
			j.lastValid[rows[i].ID] = true
			continue
		}

		wasValid, seen := j.lastValid[rows[i].ID]
		j.lastValid[rows[i].ID] = false
		if seen && !wasValid {
			continue
		}

		expired++
		log.Info().
			Str("permissionId", rows[i].ID).
			Str("account", rows[i].Account).
			Msg("subscription no longer valid on chain")

		if j.sink != nil {
			payload := map[string]any{
				"permissionId": rows[i].ID,
				"account":      rows[i].Account,
			}
			if err := j.sink.PublishJSON(ctx, j.spender, sse.EventTypeExpired, payload); err != nil {
				log.Warn().Err(err).Msg("failed to publish expiry event")
			}
		}
	}

	log.Debug().
		Int("total", len(rows)).
		Int("valid", valid).
		Int("newlyExpired", expired).
		Msg("revalidate sweep complete")
}
