package services

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// PartnershipProcessor handles bilateral agreement negotiation and
// settlement: proposals, counter-offers, acceptance, dissolution and the
// revenue flows of formed partnerships.
type PartnershipProcessor struct {
	db     db.Database
	abi    abi.ABI
	logger zerolog.Logger
}

// NewPartnershipProcessor parses the partnership ABI and builds the
// processor.
func NewPartnershipProcessor(database db.Database, logger zerolog.Logger) (*PartnershipProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.PartnershipABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse partnership ABI")
	}

	return &PartnershipProcessor{
		db:     database,
		abi:    parsedABI,
		logger: logger.With().Str(logging.FieldModule, "partnership_processor").Logger(),
	}, nil
}

func (s *PartnershipProcessor) ContractName() string {
	return config.PartnershipContract
}

func (s *PartnershipProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["ProposalCreated"].ID:
		return s.handleProposalCreated(ctx, vLog)
	case s.abi.Events["ProposalAccepted"].ID:
		return s.handleProposalAccepted(ctx, vLog)
	case s.abi.Events["ProposalRejected"].ID:
		return s.handleProposalRejected(ctx, vLog)
	case s.abi.Events["CounterOffered"].ID:
		return s.handleCounterOffered(ctx, vLog)
	case s.abi.Events["PartnershipDissolved"].ID:
		return s.handleDissolved(ctx, vLog)
	case s.abi.Events["RevenueReceived"].ID:
		return s.handleRevenueReceived(ctx, vLog)
	case s.abi.Events["FundsWithdrawn"].ID:
		return s.handleFundsWithdrawn(ctx, vLog)
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized partnership log")
		return nil
	}
}

func (s *PartnershipProcessor) handleProposalCreated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 4 {
		return errors.Errorf("invalid ProposalCreated log: expected 4 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("ProposalCreated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack ProposalCreated")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid ProposalCreated data: expected 2 fields, got %d", len(unpacked))
	}
	splitBps, err := bigIntField(unpacked[0], "splitBps")
	if err != nil {
		return err
	}
	expiresAt, err := bigIntField(unpacked[1], "expiresAt")
	if err != nil {
		return err
	}

	event := &models.ProposalCreatedEvent{
		ProposalID:  topicToUint64(vLog.Topics[1]),
		InitiatorID: topicToUint64(vLog.Topics[2]),
		TargetID:    topicToUint64(vLog.Topics[3]),
		SplitBps:    splitBps.Uint64(),
		ExpiresAt:   time.Unix(expiresAt.Int64(), 0).UTC(),
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if err := swallowDuplicate(s.db.CreateProposal(ctx, event.ToProposal())); err != nil {
		return errors.Wrap(err, "failed to store proposal")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "proposal_created",
		Description: fmt.Sprintf("Agent %d proposed a partnership to agent %d",
			event.InitiatorID, event.TargetID),
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
		Metadata: map[string]string{
			"proposal_id": fmt.Sprintf("%d", event.ProposalID),
			"split_bps":   fmt.Sprintf("%d", event.SplitBps),
		},
	})
}

func (s *PartnershipProcessor) handleProposalAccepted(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid ProposalAccepted log: expected 2 topics, got %d", len(vLog.Topics))
	}

	proposalID := topicToUint64(vLog.Topics[1])

	proposal, err := s.db.GetProposalByProposalID(ctx, proposalID)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "ProposalAccepted", "Acceptance of unknown proposal, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up proposal")
	}

	if err := s.db.UpdateProposalStatus(ctx, proposalID, models.ProposalStatusAccepted); err != nil {
		return errors.Wrap(err, "failed to accept proposal")
	}

	// An accepted proposal becomes a partnership under the same id, with
	// the split fixed at acceptance.
	partnership := &models.Partnership{
		PartnershipID:    proposalID,
		AgentA:           proposal.InitiatorID,
		AgentB:           proposal.TargetID,
		SplitBps:         proposal.SplitBps,
		Status:           models.PartnershipStatusActive,
		TotalRevenue:     "0",
		AvailableBalance: "0",
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := swallowDuplicate(s.db.CreatePartnership(ctx, partnership)); err != nil {
		return errors.Wrap(err, "failed to store partnership")
	}

	s.logger.Info().
		Uint64("partnership_id", proposalID).
		Uint64("agent_a", proposal.InitiatorID).
		Uint64("agent_b", proposal.TargetID).
		Msg("Partnership formed")

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "partnership_formed",
		Description: fmt.Sprintf("Agents %d and %d formed a partnership",
			proposal.InitiatorID, proposal.TargetID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata:    map[string]string{"partnership_id": fmt.Sprintf("%d", proposalID)},
	})
}

func (s *PartnershipProcessor) handleProposalRejected(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid ProposalRejected log: expected 2 topics, got %d", len(vLog.Topics))
	}

	proposalID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdateProposalStatus(ctx, proposalID, models.ProposalStatusRejected)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "ProposalRejected", "Rejection of unknown proposal, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to reject proposal")
	}
	return nil
}

// handleCounterOffered inserts the counter as a new proposal with the
// parties swapped and marks the original negotiating. The original row is
// never deleted.
func (s *PartnershipProcessor) handleCounterOffered(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid CounterOffered log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("CounterOffered", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack CounterOffered")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid CounterOffered data: expected 2 fields, got %d", len(unpacked))
	}
	splitBps, err := bigIntField(unpacked[0], "splitBps")
	if err != nil {
		return err
	}
	expiresAt, err := bigIntField(unpacked[1], "expiresAt")
	if err != nil {
		return err
	}

	originalID := topicToUint64(vLog.Topics[1])
	counterID := topicToUint64(vLog.Topics[2])

	original, err := s.db.GetProposalByProposalID(ctx, originalID)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "CounterOffered", "Counter to unknown proposal, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up proposal")
	}

	if err := s.db.UpdateProposalStatus(ctx, originalID, models.ProposalStatusNegotiating); err != nil {
		return errors.Wrap(err, "failed to mark proposal negotiating")
	}

	now := time.Now()
	counter := &models.PartnershipProposal{
		ProposalID:  counterID,
		InitiatorID: original.TargetID,
		TargetID:    original.InitiatorID,
		SplitBps:    splitBps.Uint64(),
		ExpiresAt:   time.Unix(expiresAt.Int64(), 0).UTC(),
		Status:      models.ProposalStatusPending,
		CounterOf:   &originalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := swallowDuplicate(s.db.CreateProposal(ctx, counter)); err != nil {
		return errors.Wrap(err, "failed to store counter-offer")
	}
	return nil
}

func (s *PartnershipProcessor) handleDissolved(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid PartnershipDissolved log: expected 2 topics, got %d", len(vLog.Topics))
	}

	partnershipID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdatePartnershipStatus(ctx, partnershipID, models.PartnershipStatusDissolved)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "PartnershipDissolved", "Dissolution of unknown partnership, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to dissolve partnership")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "partnership_dissolved",
		Description: fmt.Sprintf("Partnership %d dissolved", partnershipID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata:    map[string]string{"partnership_id": fmt.Sprintf("%d", partnershipID)},
	})
}

func (s *PartnershipProcessor) handleRevenueReceived(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid RevenueReceived log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("RevenueReceived", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack RevenueReceived")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid RevenueReceived data: missing amount")
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}

	partnershipID := topicToUint64(vLog.Topics[1])

	// Marker written only after the increment lands, so a dropped or
	// halted log stays replayable.
	processed, err := s.db.IsLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index)
	if err != nil {
		return errors.Wrap(err, "failed to check processed log")
	}
	if processed {
		return nil
	}

	err = s.db.AddPartnershipRevenue(ctx, partnershipID, amount.String())
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "RevenueReceived", "Revenue for unknown partnership, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to add partnership revenue")
	}
	if _, err := s.db.MarkLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index); err != nil {
		return errors.Wrap(err, "failed to mark log processed")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "partnership_revenue",
		Description: fmt.Sprintf("Partnership %d received %s in revenue",
			partnershipID, utils.FormatUnits(amount, nativeDecimals)),
		Amount:      amount.String(),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata:    map[string]string{"partnership_id": fmt.Sprintf("%d", partnershipID)},
	})
}

func (s *PartnershipProcessor) handleFundsWithdrawn(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid FundsWithdrawn log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("FundsWithdrawn", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack FundsWithdrawn")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid FundsWithdrawn data: missing amount")
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}

	partnershipID := topicToUint64(vLog.Topics[1])
	agentID := topicToUint64(vLog.Topics[2])

	processed, err := s.db.IsLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index)
	if err != nil {
		return errors.Wrap(err, "failed to check processed log")
	}
	if processed {
		return nil
	}

	err = s.db.WithdrawPartnershipFunds(ctx, partnershipID, amount.String())
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "FundsWithdrawn", "Withdrawal from unknown partnership, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to withdraw partnership funds")
	}
	if _, err := s.db.MarkLogProcessed(ctx, vLog.TxHash.Hex(), vLog.Index); err != nil {
		return errors.Wrap(err, "failed to mark log processed")
	}

	s.logger.Debug().
		Uint64("partnership_id", partnershipID).
		Uint64(logging.FieldAgent, agentID).
		Str("amount", amount.String()).
		Msg("Partnership funds withdrawn")
	return nil
}
