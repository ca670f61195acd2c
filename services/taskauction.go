package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
	"github.com/agora-hq/agora/syncer/models"
	"github.com/agora-hq/agora/syncer/utils"
)

// TaskAuctionProcessor handles the open task auction lifecycle: creation,
// bidding, winner selection, completion, validation and payment.
type TaskAuctionProcessor struct {
	db     db.Database
	abi    abi.ABI
	logger zerolog.Logger
}

// NewTaskAuctionProcessor parses the task auction ABI and builds the
// processor.
func NewTaskAuctionProcessor(database db.Database, logger zerolog.Logger) (*TaskAuctionProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.TaskAuctionABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse task auction ABI")
	}

	return &TaskAuctionProcessor{
		db:     database,
		abi:    parsedABI,
		logger: logger.With().Str(logging.FieldModule, "task_auction_processor").Logger(),
	}, nil
}

func (s *TaskAuctionProcessor) ContractName() string {
	return config.TaskAuctionContract
}

func (s *TaskAuctionProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["TaskCreated"].ID:
		return s.handleTaskCreated(ctx, vLog)
	case s.abi.Events["BidSubmitted"].ID:
		return s.handleBidSubmitted(ctx, vLog)
	case s.abi.Events["BidWithdrawn"].ID:
		return s.handleBidWithdrawn(ctx, vLog)
	case s.abi.Events["WinnerSelected"].ID:
		return s.handleWinnerSelected(ctx, vLog)
	case s.abi.Events["TaskCompleted"].ID:
		return s.handleTaskCompleted(ctx, vLog)
	case s.abi.Events["TaskValidated"].ID:
		return s.handleTaskValidated(ctx, vLog)
	case s.abi.Events["PaymentReleased"].ID:
		return s.handlePaymentReleased(ctx, vLog)
	case s.abi.Events["TaskCancelled"].ID:
		return s.handleTaskCancelled(ctx, vLog)
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized task auction log")
		return nil
	}
}

func (s *TaskAuctionProcessor) handleTaskCreated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid TaskCreated log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("TaskCreated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack TaskCreated")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid TaskCreated data: expected 2 fields, got %d", len(unpacked))
	}
	reward, err := bigIntField(unpacked[0], "reward")
	if err != nil {
		return err
	}
	description, err := stringField(unpacked[1], "description")
	if err != nil {
		return err
	}

	event := &models.TaskCreatedEvent{
		TaskID:      topicToUint64(vLog.Topics[1]),
		Creator:     topicToAddress(vLog.Topics[2]),
		Reward:      reward,
		Description: description,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if err := swallowDuplicate(s.db.CreateTask(ctx, event.ToTask())); err != nil {
		return errors.Wrap(err, "failed to store task")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "task_created",
		Description: fmt.Sprintf("Task %d opened with a %s reward",
			event.TaskID, utils.FormatUnits(event.Reward, nativeDecimals)),
		Participants: []string{event.Creator},
		Amount:       event.Reward.String(),
		TxHash:       event.TxHash,
		BlockNumber:  event.BlockNumber,
		Metadata:     map[string]string{"task_id": fmt.Sprintf("%d", event.TaskID)},
	})
}

func (s *TaskAuctionProcessor) handleBidSubmitted(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid BidSubmitted log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("BidSubmitted", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack BidSubmitted")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid BidSubmitted data: expected 2 fields, got %d", len(unpacked))
	}
	bidder, err := addressField(unpacked[0], "bidder")
	if err != nil {
		return err
	}
	amount, err := bigIntField(unpacked[1], "amount")
	if err != nil {
		return err
	}

	event := &models.BidSubmittedEvent{
		TaskID:      topicToUint64(vLog.Topics[1]),
		BidID:       topicToUint64(vLog.Topics[2]),
		Bidder:      bidder,
		Amount:      amount,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if _, err := s.db.GetTaskByTaskID(ctx, event.TaskID); errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "BidSubmitted", "Bid on unknown task, dropping")
		return nil
	} else if err != nil {
		return errors.Wrap(err, "failed to look up task")
	}

	if err := swallowDuplicate(s.db.CreateBid(ctx, event.ToBid())); err != nil {
		return errors.Wrap(err, "failed to store bid")
	}
	return nil
}

func (s *TaskAuctionProcessor) handleBidWithdrawn(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid BidWithdrawn log: expected 3 topics, got %d", len(vLog.Topics))
	}

	taskID := topicToUint64(vLog.Topics[1])
	bidID := topicToUint64(vLog.Topics[2])

	err := s.db.UpdateBidStatus(ctx, taskID, bidID, models.BidStatusWithdrawn)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "BidWithdrawn", "Withdrawal of unknown bid, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to withdraw bid")
	}
	return nil
}

func (s *TaskAuctionProcessor) handleWinnerSelected(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid WinnerSelected log: expected 3 topics, got %d", len(vLog.Topics))
	}

	taskID := topicToUint64(vLog.Topics[1])
	bidID := topicToUint64(vLog.Topics[2])

	if _, err := s.db.GetBid(ctx, taskID, bidID); errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "WinnerSelected", "Winner references unknown bid, dropping")
		return nil
	} else if err != nil {
		return errors.Wrap(err, "failed to look up bid")
	}

	if err := s.db.SelectWinningBid(ctx, taskID, bidID); err != nil {
		return errors.Wrap(err, "failed to select winning bid")
	}

	s.logger.Info().
		Uint64("task_id", taskID).
		Uint64("bid_id", bidID).
		Msg("Task winner selected")

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "task_winner_selected",
		Description: fmt.Sprintf("Bid %d won task %d", bidID, taskID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata: map[string]string{
			"task_id": fmt.Sprintf("%d", taskID),
			"bid_id":  fmt.Sprintf("%d", bidID),
		},
	})
}

func (s *TaskAuctionProcessor) handleTaskCompleted(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid TaskCompleted log: expected 2 topics, got %d", len(vLog.Topics))
	}

	taskID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdateTaskStatus(ctx, taskID, models.TaskStatusCompleted)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "TaskCompleted", "Completion of unknown task, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to complete task")
	}
	return nil
}

func (s *TaskAuctionProcessor) handleTaskValidated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid TaskValidated log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("TaskValidated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack TaskValidated")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid TaskValidated data: expected 2 fields, got %d", len(unpacked))
	}
	success, ok := unpacked[0].(bool)
	if !ok {
		return errors.New("invalid TaskValidated data: success is not a bool")
	}
	payment, err := bigIntField(unpacked[1], "payment")
	if err != nil {
		return err
	}

	taskID := topicToUint64(vLog.Topics[1])
	status := models.TaskStatusVerified
	if !success {
		status = models.TaskStatusFailed
	}

	err = s.db.UpdateTaskStatus(ctx, taskID, status)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "TaskValidated", "Validation of unknown task, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to update task status")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "task_validated",
		Description: fmt.Sprintf("Task %d validated: %s", taskID, status),
		Amount:      payment.String(),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata: map[string]string{
			"task_id": fmt.Sprintf("%d", taskID),
			"success": fmt.Sprintf("%t", success),
		},
	})
}

func (s *TaskAuctionProcessor) handlePaymentReleased(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid PaymentReleased log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("PaymentReleased", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack PaymentReleased")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid PaymentReleased data: missing amount")
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}

	taskID := topicToUint64(vLog.Topics[1])
	recipient := topicToAddress(vLog.Topics[2])

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "payment_released",
		Description: fmt.Sprintf("Task %d paid %s to %s",
			taskID, utils.FormatUnits(amount, nativeDecimals), recipient),
		Participants: []string{recipient},
		Amount:       amount.String(),
		TxHash:       vLog.TxHash.Hex(),
		BlockNumber:  vLog.BlockNumber,
		Metadata:     map[string]string{"task_id": fmt.Sprintf("%d", taskID)},
	})
}

func (s *TaskAuctionProcessor) handleTaskCancelled(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid TaskCancelled log: expected 2 topics, got %d", len(vLog.Topics))
	}

	taskID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdateTaskStatus(ctx, taskID, models.TaskStatusCancelled)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "TaskCancelled", "Cancellation of unknown task, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to cancel task")
	}
	return nil
}
