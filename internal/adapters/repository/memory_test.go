package repository

import (
	"context"
	"testing"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryRepository_LedgerStore(t *testing.T) {
	suite.Run(t, &ledgerStoreSuite{
		newRepo: func() ports.LedgerRepository { return NewMemoryRepository() },
	})
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Error(t, repo.Ping(ctx))
}

func TestMemoryRepository_ReturnedRecordsAreCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := testTime()
	require.NoError(t, repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
		return tx.PutRegistration(ctx, &domain.Registration{Name: "alice", Owner: "acct-1", RegisteredAt: now, ExpiresAt: now})
	}))

	got, err := repo.GetRegistration(ctx, "alice")
	require.NoError(t, err)
	got.Owner = "mallory"

	again, err := repo.GetRegistration(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Account("acct-1"), again.Owner)
}

func TestMemoryRepository_APIKeys(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	k1 := &domain.APIKey{ID: "k1", Account: "acct-1", KeyHash: "h1", Role: domain.RoleUser, Active: true, CreatedAt: now}
	k2 := &domain.APIKey{ID: "k2", Account: "acct-1", KeyHash: "h2", Role: domain.RoleAdmin, Active: true, CreatedAt: now.Add(time.Second)}
	require.NoError(t, repo.CreateAPIKey(ctx, k1))
	require.NoError(t, repo.CreateAPIKey(ctx, k2))

	got, err := repo.GetAPIKeyByHash(ctx, "h2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k2", got.ID)

	missing, err := repo.GetAPIKeyByHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	keys, err := repo.ListAPIKeys(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "k1", keys[0].ID)

	require.NoError(t, repo.DeleteAPIKey(ctx, "someone-else", "k1"))
	got, _ = repo.GetAPIKeyByHash(ctx, "h1")
	assert.True(t, got.Active, "other accounts cannot revoke")

	require.NoError(t, repo.DeleteAPIKey(ctx, "acct-1", "k1"))
	got, _ = repo.GetAPIKeyByHash(ctx, "h1")
	assert.False(t, got.Active)
}
