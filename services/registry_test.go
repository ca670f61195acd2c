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

var registryAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")

func newRegistryFixture(t *testing.T) (*RegistryProcessor, *db.MemDB) {
	t.Helper()
	database := db.NewMemDB()
	processor, err := NewRegistryProcessor(database, testLogger())
	require.NoError(t, err)
	return processor, database
}

func registerAgent(t *testing.T, processor *RegistryProcessor, agentID uint64, wallet common.Address, block uint64) {
	t.Helper()
	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "AgentRegistered", "worker-agent", "ipfs://meta")
	vLog := makeLog(regABI, "AgentRegistered", registryAddr, block, 0,
		common.HexToHash("0xaa01"), data, uintTopic(agentID), addrTopic(wallet))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

func TestAgentRegistered(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	registerAgent(t, processor, 7, wallet, 100)

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "worker-agent", agent.Name)
	assert.Equal(t, wallet.Hex(), agent.Wallet)
	assert.Equal(t, models.AgentStatusUnfunded, agent.Status)
	assert.Equal(t, models.InitialReputation, agent.Reputation)
	assert.Equal(t, "0", agent.TotalRevenue)

	events, err := database.ListEconomyEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "agent_registered", events[0].Type)
}

func TestAgentRegisteredReplay(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	registerAgent(t, processor, 7, wallet, 100)
	registerAgent(t, processor, 7, wallet, 100)

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusUnfunded, agent.Status)

	events, err := database.ListEconomyEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "replay must not duplicate feed entries")
}

func TestSharesDeployed(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")
	sharesContract := common.HexToAddress("0x3000000000000000000000000000000000000003")

	registerAgent(t, processor, 7, wallet, 100)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	vLog := makeLog(regABI, "SharesDeployed", registryAddr, 101, 0,
		common.HexToHash("0xaa02"), nil, uintTopic(7), addrTopic(sharesContract))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	contracts, err := database.ListSharesContracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), contracts[sharesContract.Hex()])
}

func TestSharesDeployedUnknownAgent(t *testing.T) {
	processor, _ := newRegistryFixture(t)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	vLog := makeLog(regABI, "SharesDeployed", registryAddr, 101, 0,
		common.HexToHash("0xaa02"), nil, uintTopic(99),
		addrTopic(common.HexToAddress("0x3000000000000000000000000000000000000003")))

	// a missing referenced row is dropped, not fatal
	assert.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

func TestAgentStatusChanged(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	registerAgent(t, processor, 7, wallet, 100)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "AgentStatusChanged", uint8(0), uint8(1))
	vLog := makeLog(regABI, "AgentStatusChanged", registryAddr, 102, 0,
		common.HexToHash("0xaa03"), data, uintTopic(7))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, agent.Status)
}

func TestAgentStatusChangedUnknownCode(t *testing.T) {
	processor, _ := newRegistryFixture(t)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "AgentStatusChanged", uint8(1), uint8(42))
	vLog := makeLog(regABI, "AgentStatusChanged", registryAddr, 102, 0,
		common.HexToHash("0xaa03"), data, uintTopic(7))

	// an unrecognized lifecycle code must halt the range, not advance past it
	assert.Error(t, processor.ProcessLog(context.Background(), vLog))
}

func TestReputationUpdated(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	registerAgent(t, processor, 7, wallet, 100)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "ReputationUpdated",
		big.NewInt(50), big.NewInt(62), "task streak")
	vLog := makeLog(regABI, "ReputationUpdated", registryAddr, 103, 0,
		common.HexToHash("0xaa04"), data, uintTopic(7))

	require.NoError(t, processor.ProcessLog(ctx, vLog))
	// replay converges
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(62), agent.Reputation)
}

func TestTaskRecordedReplayGuard(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	registerAgent(t, processor, 7, wallet, 100)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "TaskRecorded", true, big.NewInt(1500))
	vLog := makeLog(regABI, "TaskRecorded", registryAddr, 104, 2,
		common.HexToHash("0xaa05"), data, uintTopic(7))

	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agent.TasksCompleted, "counter must not double on replay")
	assert.Equal(t, "1500", agent.TotalRevenue)
}

// A task outcome arriving before its agent row is dropped, and replaying
// it once the agent exists applies the increment exactly once.
func TestTaskRecordedBeforeAgentConverges(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	wallet := common.HexToAddress("0x2000000000000000000000000000000000000002")

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "TaskRecorded", true, big.NewInt(1500))
	vLog := makeLog(regABI, "TaskRecorded", registryAddr, 104, 2,
		common.HexToHash("0xaa07"), data, uintTopic(7))

	require.NoError(t, processor.ProcessLog(ctx, vLog))
	_, err := database.GetAgentByAgentID(ctx, 7)
	require.ErrorIs(t, err, db.ErrNotFound)

	registerAgent(t, processor, 7, wallet, 100)
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agent.TasksCompleted, "a dropped outcome must apply on replay")
	assert.Equal(t, "1500", agent.TotalRevenue)

	// and a further replay does not double it
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	agent, err = database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agent.TasksCompleted)
	assert.Equal(t, "1500", agent.TotalRevenue)
}

func TestAgentWalletUpdated(t *testing.T) {
	processor, database := newRegistryFixture(t)
	ctx := context.Background()
	oldWallet := common.HexToAddress("0x2000000000000000000000000000000000000002")
	newWallet := common.HexToAddress("0x4000000000000000000000000000000000000004")

	registerAgent(t, processor, 7, oldWallet, 100)

	regABI := mustParseABI(t, config.AgentRegistryABI)
	data := packEventData(t, regABI, "AgentWalletUpdated", oldWallet, newWallet)
	vLog := makeLog(regABI, "AgentWalletUpdated", registryAddr, 105, 0,
		common.HexToHash("0xaa06"), data, uintTopic(7))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	agent, err := database.GetAgentByAgentID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, newWallet.Hex(), agent.Wallet)
}
