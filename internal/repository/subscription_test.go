package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwire/agentpay/internal/database"
	"github.com/subwire/agentpay/internal/model"
)

// Integration tests against a real Postgres with scripts/schema.sql applied.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	return db
}

func testParams(account, spender string) model.CreateSubscriptionParams {
	allowance, _ := model.ParseBigInt("100000")
	salt, _ := model.ParseBigInt("7")
	return model.CreateSubscriptionParams{
		Permission: model.SpendPermission{
			Account:   account,
			Spender:   spender,
			Token:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Allowance: allowance,
			Period:    86400,
			Start:     1700000000,
			End:       1800000000,
			Salt:      salt,
			ExtraData: "0x",
		},
	}
}

func cleanupSubscription(t *testing.T, db *database.DB, id string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{"approval_events", "spend_events", "revocation_events"} {
		db.ExecContext(ctx, "DELETE FROM "+table+" WHERE permission_id = $1", id)
	}
	_, err := db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = $1", id)
	assert.NoError(t, err)
}

func TestSubscriptionRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSubscriptionRepository(db.DB)
	ctx := context.Background()

	sub, err := repo.Create(ctx, testParams(
		"0xAAAA000000000000000000000000000000000001",
		"0xBBBB000000000000000000000000000000000001",
	))
	require.NoError(t, err)
	defer cleanupSubscription(t, db, sub.ID)

	// Addresses are normalized to lowercase at insert.
	assert.Equal(t, "0xaaaa000000000000000000000000000000000001", sub.Account)
	assert.Equal(t, "0xbbbb000000000000000000000000000000000001", sub.Spender)
	assert.Equal(t, "100000", sub.Allowance.String())
	assert.Equal(t, int64(86400), sub.Period)
	assert.Equal(t, int64(1700000000), sub.Start.Unix())
	assert.Equal(t, int64(1800000000), sub.End.Unix())
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.CreatedAt.IsZero())
}

func TestSubscriptionRepository_Find(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSubscriptionRepository(db.DB)
	ctx := context.Background()

	account := "0xAAAA000000000000000000000000000000000002"
	spender := "0xBBBB000000000000000000000000000000000002"

	first, err := repo.Create(ctx, testParams(account, spender))
	require.NoError(t, err)
	defer cleanupSubscription(t, db, first.ID)

	second, err := repo.Create(ctx, testParams(account, spender))
	require.NoError(t, err)
	defer cleanupSubscription(t, db, second.ID)

	t.Run("by account and spender", func(t *testing.T) {
		rows, err := repo.Find(ctx, model.SubscriptionFilter{Account: account, Spender: spender})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		// Oldest first.
		assert.Equal(t, first.ID, rows[0].ID)
		assert.Equal(t, second.ID, rows[1].ID)
	})

	t.Run("by allowance", func(t *testing.T) {
		allowance, _ := model.ParseBigInt("100000")
		rows, err := repo.Find(ctx, model.SubscriptionFilter{Account: account, Allowance: allowance})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		other, _ := model.ParseBigInt("999")
		rows, err = repo.Find(ctx, model.SubscriptionFilter{Account: account, Allowance: other})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("case-insensitive filter", func(t *testing.T) {
		rows, err := repo.Find(ctx, model.SubscriptionFilter{Account: account})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("no match", func(t *testing.T) {
		rows, err := repo.Find(ctx, model.SubscriptionFilter{Account: "0xCCCC000000000000000000000000000000000099"})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestSubscriptionRepository_FindByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewSubscriptionRepository(db.DB)
	ctx := context.Background()

	sub, err := repo.Create(ctx, testParams(
		"0xAAAA000000000000000000000000000000000003",
		"0xBBBB000000000000000000000000000000000003",
	))
	require.NoError(t, err)
	defer cleanupSubscription(t, db, sub.ID)

	found, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sub.ID, found.ID)

	missing, err := repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	subRepo := NewSubscriptionRepository(db.DB)
	eventRepo := NewEventRepository(db.DB)
	ctx := context.Background()

	sub, err := subRepo.Create(ctx, testParams(
		"0xAAAA000000000000000000000000000000000004",
		"0xBBBB000000000000000000000000000000000004",
	))
	require.NoError(t, err)
	defer cleanupSubscription(t, db, sub.ID)

	t.Run("approval event", func(t *testing.T) {
		event, err := eventRepo.Insert(ctx, model.InsertEventParams{
			Kind:            model.EventApproval,
			PermissionID:    sub.ID,
			TransactionHash: "0xaaa111",
		})
		require.NoError(t, err)
		assert.Equal(t, sub.ID, event.PermissionID)
		assert.Equal(t, "0xaaa111", event.TransactionHash)
	})

	t.Run("spend event carries value", func(t *testing.T) {
		amount, _ := model.ParseBigInt("50000")
		event, err := eventRepo.Insert(ctx, model.InsertEventParams{
			Kind:            model.EventSpend,
			PermissionID:    sub.ID,
			TransactionHash: "0xbbb222",
			Value:           amount,
		})
		require.NoError(t, err)
		require.NotNil(t, event.Value)
		assert.Equal(t, "50000", event.Value.String())
	})

	t.Run("list by permission", func(t *testing.T) {
		events, err := eventRepo.ListByPermissionID(ctx, model.EventSpend, sub.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "0xbbb222", events[0].TransactionHash)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := eventRepo.Insert(ctx, model.InsertEventParams{
			Kind:         model.EventKind("bogus"),
			PermissionID: sub.ID,
		})
		assert.Error(t, err)
	})
}
