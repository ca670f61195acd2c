package services

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/db"
)

// recordingProcessor counts the logs it receives and can be primed to
// fail.
type recordingProcessor struct {
	name string
	logs []types.Log
	err  error
}

func (p *recordingProcessor) ContractName() string { return p.name }

func (p *recordingProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if p.err != nil {
		return p.err
	}
	p.logs = append(p.logs, vLog)
	return nil
}

func TestRouterStaticDispatch(t *testing.T) {
	database := db.NewMemDB()
	router := NewRouter(database, time.Minute, testLogger())

	addr := common.HexToAddress("0x1000000000000000000000000000000000000001")
	processor := &recordingProcessor{name: "static"}
	router.Register(addr, processor)

	require.NoError(t, router.Route(context.Background(), types.Log{Address: addr}))
	assert.Len(t, processor.logs, 1)
}

func TestRouterUnknownAddressDropped(t *testing.T) {
	database := db.NewMemDB()
	router := NewRouter(database, time.Minute, testLogger())

	err := router.Route(context.Background(), types.Log{
		Address: common.HexToAddress("0xdead000000000000000000000000000000000000"),
	})
	assert.NoError(t, err, "logs from unwatched addresses are dropped, not fatal")
}

// An address that appears in the database after startup is picked up on
// the first resolve miss.
func TestRouterDiscoversSharesContract(t *testing.T) {
	database := db.NewMemDB()
	ctx := context.Background()
	router := NewRouter(database, time.Minute, testLogger())

	sharesProc := &recordingProcessor{name: "shares"}
	router.RegisterShares(sharesProc)

	sharesContract := common.HexToAddress("0x3000000000000000000000000000000000000003")
	require.NoError(t, database.CreateAgent(ctx, testAgent(7)))
	require.NoError(t, database.SetAgentSharesContract(ctx, 7, sharesContract.Hex()))

	require.NoError(t, router.Route(ctx, types.Log{Address: sharesContract}))
	assert.Len(t, sharesProc.logs, 1)
	assert.Equal(t, []common.Address{sharesContract}, router.SharesAddresses())
}

func TestRouterRefreshThrottle(t *testing.T) {
	database := db.NewMemDB()
	ctx := context.Background()
	router := NewRouter(database, time.Hour, testLogger())

	sharesProc := &recordingProcessor{name: "shares"}
	router.RegisterShares(sharesProc)

	// prime lastRefresh with an empty set
	require.NoError(t, router.Refresh(ctx, true))

	sharesContract := common.HexToAddress("0x3000000000000000000000000000000000000003")
	require.NoError(t, database.CreateAgent(ctx, testAgent(7)))
	require.NoError(t, database.SetAgentSharesContract(ctx, 7, sharesContract.Hex()))

	// within the interval the stale set stays; the log is dropped
	require.NoError(t, router.Route(ctx, types.Log{Address: sharesContract}))
	assert.Empty(t, sharesProc.logs)

	// a forced refresh bypasses the throttle
	require.NoError(t, router.Refresh(ctx, true))
	require.NoError(t, router.Route(ctx, types.Log{Address: sharesContract}))
	assert.Len(t, sharesProc.logs, 1)
}
