package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/models"
)

var partnershipAddr = common.HexToAddress("0x1000000000000000000000000000000000000031")

func newPartnershipFixture(t *testing.T) (*PartnershipProcessor, *db.MemDB) {
	t.Helper()
	database := db.NewMemDB()
	processor, err := NewPartnershipProcessor(database, testLogger())
	require.NoError(t, err)
	return processor, database
}

func createProposal(t *testing.T, processor *PartnershipProcessor, proposalID, initiator, target uint64, block uint64) {
	t.Helper()
	pABI := mustParseABI(t, config.PartnershipABI)
	expires := time.Now().Add(24 * time.Hour).Unix()
	data := packEventData(t, pABI, "ProposalCreated", big.NewInt(6000), big.NewInt(expires))
	vLog := makeLog(pABI, "ProposalCreated", partnershipAddr, block, 0,
		common.HexToHash("0xdd01"), data,
		uintTopic(proposalID), uintTopic(initiator), uintTopic(target))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

// A counter-offer opens a new proposal with the parties swapped while the
// original survives as a negotiating row.
func TestCounterOffered(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)

	pABI := mustParseABI(t, config.PartnershipABI)
	expires := time.Now().Add(48 * time.Hour).Unix()
	data := packEventData(t, pABI, "CounterOffered", big.NewInt(4500), big.NewInt(expires))
	vLog := makeLog(pABI, "CounterOffered", partnershipAddr, 101, 0,
		common.HexToHash("0xdd02"), data, uintTopic(1), uintTopic(2))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	original, err := database.GetProposalByProposalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusNegotiating, original.Status)
	assert.Equal(t, uint64(10), original.InitiatorID, "the original row must survive untouched")

	counter, err := database.GetProposalByProposalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), counter.InitiatorID)
	assert.Equal(t, uint64(10), counter.TargetID)
	assert.Equal(t, uint64(4500), counter.SplitBps)
	assert.Equal(t, models.ProposalStatusPending, counter.Status)
	require.NotNil(t, counter.CounterOf)
	assert.Equal(t, uint64(1), *counter.CounterOf)
}

func TestCounterOfferedReplay(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)

	pABI := mustParseABI(t, config.PartnershipABI)
	expires := time.Now().Add(48 * time.Hour).Unix()
	data := packEventData(t, pABI, "CounterOffered", big.NewInt(4500), big.NewInt(expires))
	vLog := makeLog(pABI, "CounterOffered", partnershipAddr, 101, 0,
		common.HexToHash("0xdd02"), data, uintTopic(1), uintTopic(2))
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	counter, err := database.GetProposalByProposalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPending, counter.Status)
}

func TestProposalAccepted(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)

	pABI := mustParseABI(t, config.PartnershipABI)
	vLog := makeLog(pABI, "ProposalAccepted", partnershipAddr, 102, 0,
		common.HexToHash("0xdd03"), nil, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	proposal, err := database.GetProposalByProposalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusAccepted, proposal.Status)

	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), partnership.AgentA)
	assert.Equal(t, uint64(20), partnership.AgentB)
	assert.Equal(t, uint64(6000), partnership.SplitBps)
	assert.Equal(t, models.PartnershipStatusActive, partnership.Status)
	assert.Equal(t, "0", partnership.TotalRevenue)
}

func TestProposalRejected(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)

	pABI := mustParseABI(t, config.PartnershipABI)
	vLog := makeLog(pABI, "ProposalRejected", partnershipAddr, 102, 0,
		common.HexToHash("0xdd04"), nil, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	proposal, err := database.GetProposalByProposalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusRejected, proposal.Status)
}

func acceptProposal(t *testing.T, processor *PartnershipProcessor, proposalID uint64, block uint64) {
	t.Helper()
	pABI := mustParseABI(t, config.PartnershipABI)
	vLog := makeLog(pABI, "ProposalAccepted", partnershipAddr, block, 0,
		common.HexToHash("0xdd03"), nil, uintTopic(proposalID))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

func TestRevenueReceivedReplayGuard(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)
	acceptProposal(t, processor, 1, 102)

	pABI := mustParseABI(t, config.PartnershipABI)
	data := packEventData(t, pABI, "RevenueReceived", big.NewInt(2500))
	vLog := makeLog(pABI, "RevenueReceived", partnershipAddr, 103, 1,
		common.HexToHash("0xdd05"), data, uintTopic(1))

	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2500", partnership.TotalRevenue, "revenue must not double on replay")
	assert.Equal(t, "2500", partnership.AvailableBalance)
}

func TestFundsWithdrawnClampsAtZero(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)
	acceptProposal(t, processor, 1, 102)

	pABI := mustParseABI(t, config.PartnershipABI)
	revenue := packEventData(t, pABI, "RevenueReceived", big.NewInt(1000))
	revLog := makeLog(pABI, "RevenueReceived", partnershipAddr, 103, 1,
		common.HexToHash("0xdd05"), revenue, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, revLog))

	withdraw := packEventData(t, pABI, "FundsWithdrawn", big.NewInt(1500))
	wLog := makeLog(pABI, "FundsWithdrawn", partnershipAddr, 104, 0,
		common.HexToHash("0xdd06"), withdraw, uintTopic(1), uintTopic(10))
	require.NoError(t, processor.ProcessLog(ctx, wLog))

	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0", partnership.AvailableBalance, "balance never goes negative")
	assert.Equal(t, "1000", partnership.TotalRevenue, "withdrawals do not reduce lifetime revenue")
}

func TestPartnershipDissolved(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	createProposal(t, processor, 1, 10, 20, 100)
	acceptProposal(t, processor, 1, 102)

	pABI := mustParseABI(t, config.PartnershipABI)
	vLog := makeLog(pABI, "PartnershipDissolved", partnershipAddr, 110, 0,
		common.HexToHash("0xdd07"), nil, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PartnershipStatusDissolved, partnership.Status)
}

func TestRevenueForUnknownPartnership(t *testing.T) {
	processor, _ := newPartnershipFixture(t)

	pABI := mustParseABI(t, config.PartnershipABI)
	data := packEventData(t, pABI, "RevenueReceived", big.NewInt(2500))
	vLog := makeLog(pABI, "RevenueReceived", partnershipAddr, 103, 1,
		common.HexToHash("0xdd05"), data, uintTopic(99))

	// a missing referenced row is dropped, not fatal
	assert.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

// Revenue dropped for lack of a partnership row must land when the chunk
// replays after the partnership exists.
func TestRevenueBeforePartnershipConverges(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	pABI := mustParseABI(t, config.PartnershipABI)
	data := packEventData(t, pABI, "RevenueReceived", big.NewInt(2500))
	vLog := makeLog(pABI, "RevenueReceived", partnershipAddr, 103, 1,
		common.HexToHash("0xdd08"), data, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	createProposal(t, processor, 1, 10, 20, 100)
	acceptProposal(t, processor, 1, 102)
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2500", partnership.TotalRevenue, "dropped revenue must apply on replay")
	assert.Equal(t, "2500", partnership.AvailableBalance)

	require.NoError(t, processor.ProcessLog(ctx, vLog))
	partnership, err = database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2500", partnership.TotalRevenue)
}

func TestWithdrawalBeforePartnershipConverges(t *testing.T) {
	processor, database := newPartnershipFixture(t)
	ctx := context.Background()

	pABI := mustParseABI(t, config.PartnershipABI)
	withdraw := packEventData(t, pABI, "FundsWithdrawn", big.NewInt(500))
	wLog := makeLog(pABI, "FundsWithdrawn", partnershipAddr, 104, 0,
		common.HexToHash("0xdd09"), withdraw, uintTopic(1), uintTopic(10))
	require.NoError(t, processor.ProcessLog(ctx, wLog))

	createProposal(t, processor, 1, 10, 20, 100)
	acceptProposal(t, processor, 1, 102)

	revenue := packEventData(t, pABI, "RevenueReceived", big.NewInt(1000))
	revLog := makeLog(pABI, "RevenueReceived", partnershipAddr, 103, 1,
		common.HexToHash("0xdd05"), revenue, uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, revLog))

	require.NoError(t, processor.ProcessLog(ctx, wLog))
	partnership, err := database.GetPartnershipByPartnershipID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500", partnership.AvailableBalance, "dropped withdrawal must apply on replay")
}
