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

var taskAuctionAddr = common.HexToAddress("0x1000000000000000000000000000000000000011")

func newTaskAuctionFixture(t *testing.T) (*TaskAuctionProcessor, *db.MemDB) {
	t.Helper()
	database := db.NewMemDB()
	processor, err := NewTaskAuctionProcessor(database, testLogger())
	require.NoError(t, err)
	return processor, database
}

func createTask(t *testing.T, processor *TaskAuctionProcessor, taskID uint64, block uint64) {
	t.Helper()
	taskABI := mustParseABI(t, config.TaskAuctionABI)
	data := packEventData(t, taskABI, "TaskCreated", big.NewInt(5000), "index a dataset")
	vLog := makeLog(taskABI, "TaskCreated", taskAuctionAddr, block, 0,
		common.HexToHash("0xbb01"), data,
		uintTopic(taskID), addrTopic(common.HexToAddress("0x5000000000000000000000000000000000000005")))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

func submitBid(t *testing.T, processor *TaskAuctionProcessor, taskID, bidID uint64, block uint64, index uint) {
	t.Helper()
	taskABI := mustParseABI(t, config.TaskAuctionABI)
	data := packEventData(t, taskABI, "BidSubmitted",
		common.HexToAddress("0x6000000000000000000000000000000000000006"), big.NewInt(4000))
	vLog := makeLog(taskABI, "BidSubmitted", taskAuctionAddr, block, index,
		common.HexToHash("0xbb02"), data, uintTopic(taskID), uintTopic(bidID))
	require.NoError(t, processor.ProcessLog(context.Background(), vLog))
}

// Full winner-selection round: one open task, three bids, the second bid
// wins. The others must be marked lost and the task assigned.
func TestWinnerSelection(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()

	createTask(t, processor, 100, 10)
	submitBid(t, processor, 100, 1, 11, 0)
	submitBid(t, processor, 100, 2, 11, 1)
	submitBid(t, processor, 100, 3, 12, 0)

	taskABI := mustParseABI(t, config.TaskAuctionABI)
	vLog := makeLog(taskABI, "WinnerSelected", taskAuctionAddr, 13, 0,
		common.HexToHash("0xbb03"), nil, uintTopic(100), uintTopic(2))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	task, err := database.GetTaskByTaskID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)
	require.NotNil(t, task.WinningBidID)
	assert.Equal(t, uint64(2), *task.WinningBidID)

	bids, err := database.ListBidsByTask(ctx, 100)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, models.BidStatusLost, bids[0].Status)
	assert.Equal(t, models.BidStatusWon, bids[1].Status)
	assert.Equal(t, models.BidStatusLost, bids[2].Status)
}

func TestWinnerSelectionReplay(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()

	createTask(t, processor, 100, 10)
	submitBid(t, processor, 100, 1, 11, 0)
	submitBid(t, processor, 100, 2, 11, 1)

	taskABI := mustParseABI(t, config.TaskAuctionABI)
	vLog := makeLog(taskABI, "WinnerSelected", taskAuctionAddr, 13, 0,
		common.HexToHash("0xbb03"), nil, uintTopic(100), uintTopic(2))
	require.NoError(t, processor.ProcessLog(ctx, vLog))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	task, err := database.GetTaskByTaskID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)

	bids, err := database.ListBidsByTask(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusWon, bids[1].Status)
}

func TestBidOnUnknownTask(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()

	taskABI := mustParseABI(t, config.TaskAuctionABI)
	data := packEventData(t, taskABI, "BidSubmitted",
		common.HexToAddress("0x6000000000000000000000000000000000000006"), big.NewInt(4000))
	vLog := makeLog(taskABI, "BidSubmitted", taskAuctionAddr, 11, 0,
		common.HexToHash("0xbb02"), data, uintTopic(100), uintTopic(1))

	// out-of-order delivery is dropped, not fatal
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	_, err := database.GetBid(ctx, 100, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// once the task is visible a replay of the same range converges
	createTask(t, processor, 100, 10)
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	bid, err := database.GetBid(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusPending, bid.Status)
}

func TestBidWithdrawn(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()

	createTask(t, processor, 100, 10)
	submitBid(t, processor, 100, 1, 11, 0)

	taskABI := mustParseABI(t, config.TaskAuctionABI)
	vLog := makeLog(taskABI, "BidWithdrawn", taskAuctionAddr, 12, 0,
		common.HexToHash("0xbb04"), nil, uintTopic(100), uintTopic(1))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	bid, err := database.GetBid(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusWithdrawn, bid.Status)
}

func TestTaskValidatedOutcomes(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()
	taskABI := mustParseABI(t, config.TaskAuctionABI)

	createTask(t, processor, 100, 10)
	createTask(t, processor, 101, 10)

	okData := packEventData(t, taskABI, "TaskValidated", true, big.NewInt(5000))
	okLog := makeLog(taskABI, "TaskValidated", taskAuctionAddr, 20, 0,
		common.HexToHash("0xbb05"), okData, uintTopic(100))
	require.NoError(t, processor.ProcessLog(ctx, okLog))

	failData := packEventData(t, taskABI, "TaskValidated", false, big.NewInt(0))
	failLog := makeLog(taskABI, "TaskValidated", taskAuctionAddr, 20, 1,
		common.HexToHash("0xbb06"), failData, uintTopic(101))
	require.NoError(t, processor.ProcessLog(ctx, failLog))

	verified, err := database.GetTaskByTaskID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusVerified, verified.Status)

	failed, err := database.GetTaskByTaskID(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)
}

func TestTaskCancelled(t *testing.T) {
	processor, database := newTaskAuctionFixture(t)
	ctx := context.Background()

	createTask(t, processor, 100, 10)

	taskABI := mustParseABI(t, config.TaskAuctionABI)
	vLog := makeLog(taskABI, "TaskCancelled", taskAuctionAddr, 15, 0,
		common.HexToHash("0xbb07"), nil, uintTopic(100))
	require.NoError(t, processor.ProcessLog(ctx, vLog))

	task, err := database.GetTaskByTaskID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, task.Status)
}
