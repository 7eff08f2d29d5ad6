package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subwire/agentpay/internal/database"
	"github.com/subwire/agentpay/internal/model"
)

// SubscriptionRepository is the subscriptions half of the ledger. Rows are
// insert-only: there is no update operation, and revocation lives in the
// event tables so rows stay for audit.
type SubscriptionRepository interface {
	Create(ctx context.Context, params model.CreateSubscriptionParams) (*model.Subscription, error)
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	Find(ctx context.Context, filter model.SubscriptionFilter) ([]model.Subscription, error)
}

type subscriptionRepo struct {
	db database.DBTX
}

func NewSubscriptionRepository(db database.DBTX) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) Create(ctx context.Context, params model.CreateSubscriptionParams) (*model.Subscription, error) {
	p := params.Permission
	var sub model.Subscription
	err := r.db.GetContext(ctx, &sub, `
		INSERT INTO subscriptions
			(id, account, spender, token, allowance, period, start_at, end_at, salt, extra_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *
	`, uuid.NewString(),
		strings.ToLower(p.Account), strings.ToLower(p.Spender), strings.ToLower(p.Token),
		p.Allowance, p.Period, time.Unix(p.Start, 0).UTC(), time.Unix(p.End, 0).UTC(),
		p.Salt, p.ExtraData)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.GetContext(ctx, &sub, `SELECT * FROM subscriptions WHERE id = $1`, id)
	return HandleNotFound(&sub, err)
}

// Find returns subscriptions matching every set filter field; unset fields
// are unconstrained.
func (r *subscriptionRepo) Find(ctx context.Context, filter model.SubscriptionFilter) ([]model.Subscription, error) {
	where := []string{}
	args := []interface{}{}

	if filter.Account != "" {
		args = append(args, strings.ToLower(filter.Account))
		where = append(where, fmt.Sprintf("account = $%d", len(args)))
	}
	if filter.Spender != "" {
		args = append(args, strings.ToLower(filter.Spender))
		where = append(where, fmt.Sprintf("spender = $%d", len(args)))
	}
	if filter.Allowance != nil {
		args = append(args, filter.Allowance)
		where = append(where, fmt.Sprintf("allowance = $%d", len(args)))
	}

	query := `SELECT * FROM subscriptions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	var subs []model.Subscription
	err := r.db.SelectContext(ctx, &subs, query, args...)
	return subs, err
}
