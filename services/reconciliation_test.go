package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/db"
)

func TestReconcileWritesFreshBalances(t *testing.T) {
	database := db.NewMemDB()
	ctx := context.Background()
	addr := common.HexToAddress("0x2000000000000000000000000000000000000002")

	agent := testAgent(7)
	agent.Wallet = addr.Hex()
	require.NoError(t, database.CreateAgent(ctx, agent))

	chain := &fakeBalanceReader{balances: map[common.Address]*big.Int{
		addr: big.NewInt(5000),
	}}
	service := NewReconciliationService(chain, database, nil, ReconciliationOptions{}, testLogger())

	require.NoError(t, service.Reconcile(ctx))

	balance, err := database.GetCachedBalance(ctx, addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "5000", balance)
	assert.Equal(t, 1, chain.calls)
}

// Drift at or below epsilon leaves the cache untouched; drift above it
// rewrites the entry.
func TestReconcileEpsilonGate(t *testing.T) {
	database := db.NewMemDB()
	ctx := context.Background()
	addr := common.HexToAddress("0x2000000000000000000000000000000000000002")

	agent := testAgent(7)
	agent.Wallet = addr.Hex()
	require.NoError(t, database.CreateAgent(ctx, agent))
	require.NoError(t, database.UpsertCachedBalance(ctx, addr.Hex(), "5000"))

	chain := &fakeBalanceReader{balances: map[common.Address]*big.Int{
		addr: big.NewInt(5003),
	}}
	service := NewReconciliationService(chain, database, nil, ReconciliationOptions{
		Epsilon: big.NewInt(10),
	}, testLogger())

	require.NoError(t, service.Reconcile(ctx))

	balance, err := database.GetCachedBalance(ctx, addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "5000", balance, "drift inside epsilon is noise, not a write")

	chain.balances[addr] = big.NewInt(5100)
	service2 := NewReconciliationService(chain, database, nil, ReconciliationOptions{
		Epsilon: big.NewInt(10),
	}, testLogger())
	require.NoError(t, service2.Reconcile(ctx))

	balance, err = database.GetCachedBalance(ctx, addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "5100", balance)
}

func TestReconcileThrottled(t *testing.T) {
	database := db.NewMemDB()
	ctx := context.Background()
	addr := common.HexToAddress("0x2000000000000000000000000000000000000002")

	agent := testAgent(7)
	agent.Wallet = addr.Hex()
	require.NoError(t, database.CreateAgent(ctx, agent))

	chain := &fakeBalanceReader{balances: map[common.Address]*big.Int{
		addr: big.NewInt(5000),
	}}
	service := NewReconciliationService(chain, database, nil, ReconciliationOptions{
		MinInterval: time.Hour,
	}, testLogger())

	require.NoError(t, service.Reconcile(ctx))
	require.NoError(t, service.Reconcile(ctx))

	assert.Equal(t, 1, chain.calls, "a second pass inside the interval is a no-op")
}

func TestReconcileNoAddresses(t *testing.T) {
	database := db.NewMemDB()
	chain := &fakeBalanceReader{}
	service := NewReconciliationService(chain, database, nil, ReconciliationOptions{}, testLogger())

	require.NoError(t, service.Reconcile(context.Background()))
	assert.Equal(t, 0, chain.calls)
}
