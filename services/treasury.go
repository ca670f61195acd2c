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

// TreasuryProcessor turns protocol treasury flows into feed entries. The
// feed's (tx_hash, block_number, type) key makes replay a no-op.
type TreasuryProcessor struct {
	db     db.Database
	abi    abi.ABI
	logger zerolog.Logger
}

// NewTreasuryProcessor parses the treasury ABI and builds the processor.
func NewTreasuryProcessor(database db.Database, logger zerolog.Logger) (*TreasuryProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.TreasuryABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse treasury ABI")
	}

	return &TreasuryProcessor{
		db:     database,
		abi:    parsedABI,
		logger: logger.With().Str(logging.FieldModule, "treasury_processor").Logger(),
	}, nil
}

func (s *TreasuryProcessor) ContractName() string {
	return config.TreasuryContract
}

func (s *TreasuryProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["TreasuryDeposit"].ID:
		return s.handleFlow(ctx, vLog, "TreasuryDeposit", "treasury_deposit", "deposited to")
	case s.abi.Events["TreasuryDisbursement"].ID:
		return s.handleFlow(ctx, vLog, "TreasuryDisbursement", "treasury_disbursement", "disbursed from")
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized treasury log")
		return nil
	}
}

func (s *TreasuryProcessor) handleFlow(ctx context.Context, vLog types.Log, eventName, feedType, verb string) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid %s log: expected 2 topics, got %d", eventName, len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack(eventName, vLog.Data)
	if err != nil {
		return errors.Wrapf(err, "failed to unpack %s", eventName)
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid %s data: expected 2 fields, got %d", eventName, len(unpacked))
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}
	memo, err := stringField(unpacked[1], "memo")
	if err != nil {
		return err
	}

	counterparty := topicToAddress(vLog.Topics[1])

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: feedType,
		Description: fmt.Sprintf("%s %s the treasury by %s",
			utils.FormatUnits(amount, nativeDecimals), verb, counterparty),
		Participants: []string{counterparty},
		Amount:       amount.String(),
		TxHash:       vLog.TxHash.Hex(),
		BlockNumber:  vLog.BlockNumber,
		Metadata:     map[string]string{"memo": memo},
	})
}
