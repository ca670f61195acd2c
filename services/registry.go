package services

import (
	"context"
	"fmt"
	"math/big"
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

// nativeDecimals is used when rendering raw amounts in feed descriptions.
const nativeDecimals = 18

// RegistryProcessor handles agent lifecycle events from the registry
// contract: registration, share token deployment, status transitions,
// reputation updates, task outcome counters and wallet rotation.
type RegistryProcessor struct {
	db     db.Database
	abi    abi.ABI
	logger zerolog.Logger
}

// NewRegistryProcessor parses the registry ABI and builds the processor.
func NewRegistryProcessor(database db.Database, logger zerolog.Logger) (*RegistryProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.AgentRegistryABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse registry ABI")
	}

	return &RegistryProcessor{
		db:     database,
		abi:    parsedABI,
		logger: logger.With().Str(logging.FieldModule, "registry_processor").Logger(),
	}, nil
}

func (s *RegistryProcessor) ContractName() string {
	return config.AgentRegistryContract
}

func (s *RegistryProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["AgentRegistered"].ID:
		return s.handleAgentRegistered(ctx, vLog)
	case s.abi.Events["SharesDeployed"].ID:
		return s.handleSharesDeployed(ctx, vLog)
	case s.abi.Events["AgentStatusChanged"].ID:
		return s.handleStatusChanged(ctx, vLog)
	case s.abi.Events["ReputationUpdated"].ID:
		return s.handleReputationUpdated(ctx, vLog)
	case s.abi.Events["TaskRecorded"].ID:
		return s.handleTaskRecorded(ctx, vLog)
	case s.abi.Events["AgentWalletUpdated"].ID:
		return s.handleWalletUpdated(ctx, vLog)
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized registry log")
		return nil
	}
}

func (s *RegistryProcessor) handleAgentRegistered(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid AgentRegistered log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("AgentRegistered", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack AgentRegistered")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid AgentRegistered data: expected 2 fields, got %d", len(unpacked))
	}
	name, ok := unpacked[0].(string)
	if !ok {
		return errors.New("invalid AgentRegistered data: name is not a string")
	}
	metadataURI, ok := unpacked[1].(string)
	if !ok {
		return errors.New("invalid AgentRegistered data: metadataUri is not a string")
	}

	event := &models.AgentRegisteredEvent{
		AgentID:     topicToUint64(vLog.Topics[1]),
		Wallet:      topicToAddress(vLog.Topics[2]),
		Name:        name,
		MetadataURI: metadataURI,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if err := swallowDuplicate(s.db.CreateAgent(ctx, event.ToAgent())); err != nil {
		return errors.Wrap(err, "failed to store agent")
	}

	s.logger.Info().
		Uint64(logging.FieldAgent, event.AgentID).
		Str("name", event.Name).
		Msg("Agent registered")

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:         "agent_registered",
		Description:  fmt.Sprintf("Agent %q joined the economy", event.Name),
		Participants: []string{event.Wallet},
		TxHash:       event.TxHash,
		BlockNumber:  event.BlockNumber,
		Metadata:     map[string]string{"agent_id": fmt.Sprintf("%d", event.AgentID)},
	})
}

func (s *RegistryProcessor) handleSharesDeployed(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid SharesDeployed log: expected 3 topics, got %d", len(vLog.Topics))
	}

	agentID := topicToUint64(vLog.Topics[1])
	sharesContract := topicToAddress(vLog.Topics[2])

	err := s.db.SetAgentSharesContract(ctx, agentID, sharesContract)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "SharesDeployed", "Shares deployed for unknown agent, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to set shares contract")
	}

	s.logger.Info().
		Uint64(logging.FieldAgent, agentID).
		Str(logging.FieldContract, sharesContract).
		Msg("Agent share token deployed")

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "shares_deployed",
		Description: fmt.Sprintf("Share token deployed for agent %d", agentID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata: map[string]string{
			"agent_id":        fmt.Sprintf("%d", agentID),
			"shares_contract": sharesContract,
		},
	})
}

func (s *RegistryProcessor) handleStatusChanged(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid AgentStatusChanged log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("AgentStatusChanged", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack AgentStatusChanged")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid AgentStatusChanged data: expected 2 fields, got %d", len(unpacked))
	}
	oldCode, ok := unpacked[0].(uint8)
	if !ok {
		return errors.New("invalid AgentStatusChanged data: oldStatus is not uint8")
	}
	newCode, ok := unpacked[1].(uint8)
	if !ok {
		return errors.New("invalid AgentStatusChanged data: newStatus is not uint8")
	}

	agentID := topicToUint64(vLog.Topics[1])

	// An unknown code means this build does not understand the contract
	// version emitting it. Refuse to advance past the log.
	oldStatus, err := models.AgentStatusFromCode(oldCode)
	if err != nil {
		return err
	}
	newStatus, err := models.AgentStatusFromCode(newCode)
	if err != nil {
		return err
	}

	if !models.ValidStatusTransition(oldStatus, newStatus) {
		s.logger.Warn().
			Uint64(logging.FieldAgent, agentID).
			Str("from", string(oldStatus)).
			Str("to", string(newStatus)).
			Msg("Unexpected status transition, applying ledger state anyway")
	}

	err = s.db.UpdateAgentStatus(ctx, agentID, newStatus)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "AgentStatusChanged", "Status change for unknown agent, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to update agent status")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "agent_status_changed",
		Description: fmt.Sprintf("Agent %d moved from %s to %s", agentID, oldStatus, newStatus),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata: map[string]string{
			"agent_id": fmt.Sprintf("%d", agentID),
			"from":     string(oldStatus),
			"to":       string(newStatus),
		},
	})
}

func (s *RegistryProcessor) handleReputationUpdated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid ReputationUpdated log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("ReputationUpdated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack ReputationUpdated")
	}
	if len(unpacked) < 3 {
		return errors.Errorf("invalid ReputationUpdated data: expected 3 fields, got %d", len(unpacked))
	}
	oldScore, ok := unpacked[0].(*big.Int)
	if !ok {
		return errors.New("invalid ReputationUpdated data: oldScore is not an integer")
	}
	newScore, ok := unpacked[1].(*big.Int)
	if !ok {
		return errors.New("invalid ReputationUpdated data: newScore is not an integer")
	}
	reason, ok := unpacked[2].(string)
	if !ok {
		return errors.New("invalid ReputationUpdated data: reason is not a string")
	}

	agentID := topicToUint64(vLog.Topics[1])

	err = s.db.UpdateAgentReputation(ctx, agentID, newScore.Int64())
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "ReputationUpdated", "Reputation update for unknown agent, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to update reputation")
	}

	change := &models.ReputationChange{
		AgentID:     agentID,
		OldScore:    oldScore.Int64(),
		NewScore:    newScore.Int64(),
		Reason:      reason,
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
	}
	if err := swallowDuplicate(s.db.CreateReputationChange(ctx, change)); err != nil {
		return errors.Wrap(err, "failed to record reputation change")
	}
	return nil
}

func (s *RegistryProcessor) handleTaskRecorded(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid TaskRecorded log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("TaskRecorded", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack TaskRecorded")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid TaskRecorded data: expected 2 fields, got %d", len(unpacked))
	}
	success, ok := unpacked[0].(bool)
	if !ok {
		return errors.New("invalid TaskRecorded data: success is not a bool")
	}
	revenue, ok := unpacked[1].(*big.Int)
	if !ok {
		return errors.New("invalid TaskRecorded data: revenue is not an integer")
	}

	agentID := topicToUint64(vLog.Topics[1])

	// Counter increments are not idempotent on their own; the replay
	// marker makes them so. The marker is written only after the
	// increment lands, so a dropped or halted log stays replayable.
	processed, err := s.db.IsLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index)
	if err != nil {
		return errors.Wrap(err, "failed to check processed log")
	}
	if processed {
		return nil
	}

	err = s.db.RecordAgentTask(ctx, agentID, success, revenue.String())
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "TaskRecorded", "Task outcome for unknown agent, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to record agent task")
	}
	if _, err := s.db.MarkLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index); err != nil {
		return errors.Wrap(err, "failed to mark log processed")
	}

	s.logger.Debug().
		Uint64(logging.FieldAgent, agentID).
		Bool("success", success).
		Str("revenue", utils.FormatUnits(revenue, nativeDecimals)).
		Msg("Task outcome recorded")
	return nil
}

func (s *RegistryProcessor) handleWalletUpdated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid AgentWalletUpdated log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("AgentWalletUpdated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack AgentWalletUpdated")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid AgentWalletUpdated data: expected 2 fields, got %d", len(unpacked))
	}

	agentID := topicToUint64(vLog.Topics[1])
	newWallet, err := addressField(unpacked[1], "newWallet")
	if err != nil {
		return err
	}

	err = s.db.UpdateAgentWallet(ctx, agentID, newWallet)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "AgentWalletUpdated", "Wallet rotation for unknown agent, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to update agent wallet")
	}

	s.logger.Info().
		Uint64(logging.FieldAgent, agentID).
		Str("wallet", newWallet).
		Msg("Agent wallet rotated")
	return nil
}
