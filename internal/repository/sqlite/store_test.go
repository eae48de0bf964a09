package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usdqs-ledger/internal/domain"
)

var testTime = time.Date(2026, 5, 1, 12, 30, 0, 123456789, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func sampleAccounts() []domain.Account {
	return []domain.Account{
		{
			Username:  "alice",
			Balance:   decimal.RequireFromString("70.25"),
			CreatedAt: testTime,
			Transactions: []domain.Transaction{
				{ID: "t3", Type: domain.TransactionTransferSent, Amount: decimal.RequireFromString("30"), From: "alice", To: "bob", Timestamp: testTime.Add(2 * time.Minute)},
				{ID: "t2", Type: domain.TransactionSale, Amount: decimal.RequireFromString("0.75"), From: "alice", To: domain.SystemCounterparty, Timestamp: testTime.Add(time.Minute)},
				{ID: "t1", Type: domain.TransactionPurchase, Amount: decimal.RequireFromString("101"), From: domain.SystemCounterparty, To: "alice", Timestamp: testTime},
			},
		},
		{
			Username:  "bob",
			Balance:   decimal.RequireFromString("30"),
			CreatedAt: testTime,
			Transactions: []domain.Transaction{
				{ID: "t4", Type: domain.TransactionTransferReceived, Amount: decimal.RequireFromString("30"), From: "alice", To: "bob", Timestamp: testTime.Add(2 * time.Minute)},
			},
		},
		{
			Username:     "carol",
			Balance:      decimal.Zero,
			CreatedAt:    testTime,
			Transactions: []domain.Transaction{},
		},
	}
}

func assertAccountsEqual(t *testing.T, want, got []domain.Account) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Username, got[i].Username)
		assert.True(t, want[i].Balance.Equal(got[i].Balance), "balance of %s: want %s got %s", want[i].Username, want[i].Balance, got[i].Balance)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		require.Len(t, got[i].Transactions, len(want[i].Transactions))
		for j := range want[i].Transactions {
			w, g := want[i].Transactions[j], got[i].Transactions[j]
			assert.Equal(t, w.ID, g.ID)
			assert.Equal(t, w.Type, g.Type)
			assert.True(t, w.Amount.Equal(g.Amount), "amount of %s", w.ID)
			assert.Equal(t, w.From, g.From)
			assert.Equal(t, w.To, g.To)
			assert.True(t, w.Timestamp.Equal(g.Timestamp), "timestamp of %s", w.ID)
		}
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	loaded, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	want := sampleAccounts()
	require.NoError(t, store.SaveAccounts(ctx, want))

	got, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	assertAccountsEqual(t, want, got)
	for _, acct := range got {
		assert.NoError(t, acct.Reconcile())
	}
}

func TestSaveAccountsReplacesCollection(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.SaveAccounts(ctx, sampleAccounts()))

	next := sampleAccounts()[1:2]
	require.NoError(t, store.SaveAccounts(ctx, next))

	got, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	assertAccountsEqual(t, next, got)
}

func TestSaveAccountsRejectsDuplicateTransactionIDs(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SaveAccounts(ctx, sampleAccounts()))

	broken := sampleAccounts()
	broken[0].Transactions[1].ID = broken[0].Transactions[0].ID
	require.Error(t, store.SaveAccounts(ctx, broken))

	// the failed save leaves the previous collection in place
	got, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	assertAccountsEqual(t, sampleAccounts(), got)
}

func TestUsersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	users := []domain.User{
		{Username: "zed", PasswordHash: "h1", CreatedAt: testTime},
		{Username: "alice", PasswordHash: "h2", CreatedAt: testTime.Add(time.Second)},
	}
	require.NoError(t, store.SaveUsers(ctx, users))

	got, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zed", got[0].Username)
	assert.Equal(t, "h1", got[0].PasswordHash)
	assert.Equal(t, "alice", got[1].Username)
	assert.True(t, users[1].CreatedAt.Equal(got[1].CreatedAt))

	require.NoError(t, store.SaveUsers(ctx, users[:1]))
	got, err = store.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInitRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.UserRepository.db.ExecContext(ctx, `UPDATE schema_meta SET version = ?`, SchemaVersion+1)
	require.NoError(t, err)

	assert.Error(t, store.Init(ctx))
}
