package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/models"
)

var sharesAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")

func newSharesFixture(t *testing.T, prices PriceReader) (*SharesProcessor, *db.MemDB) {
	t.Helper()
	database := db.NewMemDB()
	processor, err := NewSharesProcessor(database, prices, testLogger())
	require.NoError(t, err)
	return processor, database
}

func tradeLog(t *testing.T, event string, agentID uint64, trader common.Address, shares, value int64, block uint64, index uint, txHash string) func(*SharesProcessor) error {
	t.Helper()
	sharesABI := mustParseABI(t, config.AgentSharesABI)
	data := packEventData(t, sharesABI, event, big.NewInt(shares), big.NewInt(value))
	vLog := makeLog(sharesABI, event, sharesAddr, block, index,
		common.HexToHash(txHash), data, uintTopic(agentID), addrTopic(trader))
	return func(processor *SharesProcessor) error {
		return processor.ProcessLog(context.Background(), vLog)
	}
}

func TestSharesPurchased(t *testing.T) {
	processor, database := newSharesFixture(t, nil)
	ctx := context.Background()
	trader := common.HexToAddress("0x9000000000000000000000000000000000000009")

	require.NoError(t, tradeLog(t, "SharesPurchased", 7, trader, 10, 500, 100, 0, "0xee01")(processor))

	holding, err := database.GetHolding(ctx, 7, trader.Hex())
	require.NoError(t, err)
	assert.Equal(t, "10", holding.Shares)
	assert.Equal(t, "500", holding.CostBasis)

	events, err := database.ListEconomyEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "shares_purchased", events[0].Type)
}

func TestTradeReplayDoesNotDoubleHolding(t *testing.T) {
	processor, database := newSharesFixture(t, nil)
	ctx := context.Background()
	trader := common.HexToAddress("0x9000000000000000000000000000000000000009")

	buy := tradeLog(t, "SharesPurchased", 7, trader, 10, 500, 100, 0, "0xee01")
	require.NoError(t, buy(processor))
	require.NoError(t, buy(processor))

	holding, err := database.GetHolding(ctx, 7, trader.Hex())
	require.NoError(t, err)
	assert.Equal(t, "10", holding.Shares, "holding must not double on replay")
	assert.Equal(t, "500", holding.CostBasis)
}

func TestSharesSoldClampsAtZero(t *testing.T) {
	processor, database := newSharesFixture(t, nil)
	ctx := context.Background()
	trader := common.HexToAddress("0x9000000000000000000000000000000000000009")

	require.NoError(t, tradeLog(t, "SharesPurchased", 7, trader, 10, 500, 100, 0, "0xee01")(processor))
	require.NoError(t, tradeLog(t, "SharesSold", 7, trader, 4, 300, 101, 0, "0xee02")(processor))

	holding, err := database.GetHolding(ctx, 7, trader.Hex())
	require.NoError(t, err)
	assert.Equal(t, "6", holding.Shares)
	assert.Equal(t, "200", holding.CostBasis)

	// overselling relative to the local view clamps rather than going
	// negative
	require.NoError(t, tradeLog(t, "SharesSold", 7, trader, 100, 9999, 102, 0, "0xee03")(processor))

	holding, err = database.GetHolding(ctx, 7, trader.Hex())
	require.NoError(t, err)
	assert.Equal(t, "0", holding.Shares)
	assert.Equal(t, "0", holding.CostBasis)
}

func TestFounderSharesMinted(t *testing.T) {
	processor, database := newSharesFixture(t, nil)
	ctx := context.Background()
	founder := common.HexToAddress("0xa00000000000000000000000000000000000000a")

	sharesABI := mustParseABI(t, config.AgentSharesABI)
	data := packEventData(t, sharesABI, "FounderSharesMinted", big.NewInt(100))
	vLog := makeLog(sharesABI, "FounderSharesMinted", sharesAddr, 100, 0,
		common.HexToHash("0xee04"), data, uintTopic(7), addrTopic(founder))
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	holding, err := database.GetHolding(ctx, 7, founder.Hex())
	require.NoError(t, err)
	assert.Equal(t, "100", holding.Shares)
	assert.Equal(t, "0", holding.CostBasis, "minted shares carry no cost basis")
}

func TestTradeRefreshesPrice(t *testing.T) {
	prices := &fakePriceReader{price: big.NewInt(1234)}
	processor, database := newSharesFixture(t, prices)
	ctx := context.Background()
	trader := common.HexToAddress("0x9000000000000000000000000000000000000009")

	require.NoError(t, database.CreateAgent(ctx, &models.Agent{
		AgentID:      7,
		Name:         "worker-agent",
		Wallet:       trader.Hex(),
		Status:       models.AgentStatusActive,
		TotalRevenue: "0",
	}))

	require.NoError(t, tradeLog(t, "SharesPurchased", 7, trader, 10, 500, 100, 0, "0xee01")(processor))

	assert.Equal(t, 1, prices.calls)
	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "1234", agent.SharePrice)
}

func TestProfitDeposited(t *testing.T) {
	processor, database := newSharesFixture(t, nil)
	ctx := context.Background()

	sharesABI := mustParseABI(t, config.AgentSharesABI)
	data := packEventData(t, sharesABI, "ProfitDeposited",
		big.NewInt(1000), big.NewInt(600), big.NewInt(400))
	vLog := makeLog(sharesABI, "ProfitDeposited", sharesAddr, 100, 0,
		common.HexToHash("0xee05"), data, uintTopic(7))
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	events, err := database.ListEconomyEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "profit_deposited", events[0].Type)
	assert.Equal(t, "1000", events[0].Amount)
}

func TestProfitClaimed(t *testing.T) {
	processor, _ := newSharesFixture(t, nil)

	sharesABI := mustParseABI(t, config.AgentSharesABI)
	data := packEventData(t, sharesABI, "ProfitClaimed", big.NewInt(250))
	vLog := makeLog(sharesABI, "ProfitClaimed", sharesAddr, 100, 0,
		common.HexToHash("0xee06"), data,
		uintTopic(7), addrTopic(common.HexToAddress("0x9000000000000000000000000000000000000009")))

	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}
