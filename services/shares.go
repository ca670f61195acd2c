package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/clients/evm"
	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
	"github.com/agora-hq/agora/syncer/models"
	"github.com/agora-hq/agora/syncer/utils"
)

// PriceReader batches contract reads. Satisfied by *evm.Client.
type PriceReader interface {
	BatchCall(ctx context.Context, calls []evm.Call) ([]evm.CallResult, error)
}

// SharesProcessor handles the per-agent share token events. One instance
// serves every deployed share contract; the agent is identified by the
// agentId topic, not the emitting address. After a trade it refreshes the
// cached bonding curve price with a best-effort contract read.
type SharesProcessor struct {
	db     db.Database
	abi    abi.ABI
	prices PriceReader
	logger zerolog.Logger
}

// NewSharesProcessor parses the share token ABI and builds the processor.
// prices may be nil, which disables price refresh.
func NewSharesProcessor(database db.Database, prices PriceReader, logger zerolog.Logger) (*SharesProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.AgentSharesABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse shares ABI")
	}

	return &SharesProcessor{
		db:     database,
		abi:    parsedABI,
		prices: prices,
		logger: logger.With().Str(logging.FieldModule, "shares_processor").Logger(),
	}, nil
}

func (s *SharesProcessor) ContractName() string {
	return config.AgentSharesContract
}

func (s *SharesProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["SharesPurchased"].ID:
		return s.handleTrade(ctx, vLog, "SharesPurchased", models.TradeKindBuy)
	case s.abi.Events["SharesSold"].ID:
		return s.handleTrade(ctx, vLog, "SharesSold", models.TradeKindSell)
	case s.abi.Events["ProfitDeposited"].ID:
		return s.handleProfitDeposited(ctx, vLog)
	case s.abi.Events["ProfitClaimed"].ID:
		return s.handleProfitClaimed(ctx, vLog)
	case s.abi.Events["FounderSharesMinted"].ID:
		return s.handleFounderMint(ctx, vLog)
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized share token log")
		return nil
	}
}

// handleTrade covers purchases and sales, which carry the same shape:
// indexed agent and trader, then amount and value in the data.
func (s *SharesProcessor) handleTrade(ctx context.Context, vLog types.Log, eventName string, kind models.TradeKind) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid %s log: expected 3 topics, got %d", eventName, len(vLog.Topics))
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
	value, err := bigIntField(unpacked[1], "value")
	if err != nil {
		return err
	}

	event := &models.SharesTradeEvent{
		AgentID:     topicToUint64(vLog.Topics[1]),
		Trader:      topicToAddress(vLog.Topics[2]),
		Shares:      amount,
		Value:       value,
		Kind:        kind,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
	}

	// The transaction row's natural key doubles as the replay guard for
	// the holding update below.
	if err := s.db.CreateShareTransaction(ctx, event.ToTransaction()); err != nil {
		if db.IsDuplicate(err) {
			return nil
		}
		return errors.Wrap(err, "failed to store share transaction")
	}

	if err := s.applyTradeToHolding(ctx, event); err != nil {
		return err
	}

	feedType := "shares_purchased"
	verb := "bought"
	if kind == models.TradeKindSell {
		feedType = "shares_sold"
		verb = "sold"
	}
	if err := s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: feedType,
		Description: fmt.Sprintf("%s %s %s shares of agent %d",
			event.Trader, verb, event.Shares.String(), event.AgentID),
		Participants: []string{event.Trader},
		Amount:       event.Value.String(),
		TxHash:       event.TxHash,
		BlockNumber:  event.BlockNumber,
		Metadata:     map[string]string{"agent_id": fmt.Sprintf("%d", event.AgentID)},
	}); err != nil {
		return err
	}

	s.refreshPrice(ctx, vLog.Address, event.AgentID)
	return nil
}

func (s *SharesProcessor) applyTradeToHolding(ctx context.Context, event *models.SharesTradeEvent) error {
	holding, err := s.db.GetHolding(ctx, event.AgentID, event.Trader)
	if errors.Is(err, db.ErrNotFound) {
		holding = &models.Holding{
			AgentID:   event.AgentID,
			Holder:    event.Trader,
			Shares:    "0",
			CostBasis: "0",
		}
	} else if err != nil {
		return errors.Wrap(err, "failed to load holding")
	}

	switch event.Kind {
	case models.TradeKindSell:
		holding.Shares = utils.SubBigClamped(holding.Shares, event.Shares.String())
		holding.CostBasis = utils.SubBigClamped(holding.CostBasis, event.Value.String())
	default:
		holding.Shares = utils.AddBig(holding.Shares, event.Shares.String())
		holding.CostBasis = utils.AddBig(holding.CostBasis, event.Value.String())
	}

	if err := s.db.UpsertHolding(ctx, holding); err != nil {
		return errors.Wrap(err, "failed to upsert holding")
	}
	return nil
}

func (s *SharesProcessor) handleProfitDeposited(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid ProfitDeposited log: expected 2 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("ProfitDeposited", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack ProfitDeposited")
	}
	if len(unpacked) < 3 {
		return errors.Errorf("invalid ProfitDeposited data: expected 3 fields, got %d", len(unpacked))
	}
	total, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}
	agentShare, err := bigIntField(unpacked[1], "agentShare")
	if err != nil {
		return err
	}
	holderShare, err := bigIntField(unpacked[2], "holderShare")
	if err != nil {
		return err
	}

	event := &models.ProfitDepositedEvent{
		AgentID:     topicToUint64(vLog.Topics[1]),
		Total:       total,
		AgentShare:  agentShare,
		HolderShare: holderShare,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
	}

	if err := swallowDuplicate(s.db.CreateProfitDistribution(ctx, event.ToDistribution())); err != nil {
		return errors.Wrap(err, "failed to store profit distribution")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "profit_deposited",
		Description: fmt.Sprintf("Agent %d distributed %s in profit",
			event.AgentID, utils.FormatUnits(event.Total, nativeDecimals)),
		Amount:      event.Total.String(),
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
		Metadata:    map[string]string{"agent_id": fmt.Sprintf("%d", event.AgentID)},
	})
}

func (s *SharesProcessor) handleProfitClaimed(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid ProfitClaimed log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("ProfitClaimed", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack ProfitClaimed")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid ProfitClaimed data: missing amount")
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}

	event := &models.ProfitClaimedEvent{
		AgentID:     topicToUint64(vLog.Topics[1]),
		Claimer:     topicToAddress(vLog.Topics[2]),
		Amount:      amount,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
	}

	if err := swallowDuplicate(s.db.CreateProfitClaim(ctx, event.ToClaim())); err != nil {
		return errors.Wrap(err, "failed to store profit claim")
	}
	return nil
}

func (s *SharesProcessor) handleFounderMint(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid FounderSharesMinted log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("FounderSharesMinted", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack FounderSharesMinted")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid FounderSharesMinted data: missing amount")
	}
	amount, err := bigIntField(unpacked[0], "amount")
	if err != nil {
		return err
	}

	event := &models.SharesTradeEvent{
		AgentID:     topicToUint64(vLog.Topics[1]),
		Trader:      topicToAddress(vLog.Topics[2]),
		Shares:      amount,
		Value:       new(big.Int),
		Kind:        models.TradeKindMint,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
	}

	if err := s.db.CreateShareTransaction(ctx, event.ToTransaction()); err != nil {
		if db.IsDuplicate(err) {
			return nil
		}
		return errors.Wrap(err, "failed to store founder mint")
	}
	return s.applyTradeToHolding(ctx, event)
}

// refreshPrice re-reads the bonding curve price after a trade. The read is
// best-effort: a failure here must not fail the event that triggered it.
func (s *SharesProcessor) refreshPrice(ctx context.Context, contract common.Address, agentID uint64) {
	if s.prices == nil {
		return
	}

	data, err := s.abi.Pack("currentPrice", new(big.Int).SetUint64(agentID))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode price read")
		return
	}

	results, err := s.prices.BatchCall(ctx, []evm.Call{{To: contract, Data: data}})
	if err != nil || len(results) == 0 {
		s.logger.Warn().Err(err).Uint64(logging.FieldAgent, agentID).Msg("Price read failed")
		return
	}
	if results[0].Err != nil {
		s.logger.Warn().Err(results[0].Err).Uint64(logging.FieldAgent, agentID).Msg("Price read reverted")
		return
	}

	unpacked, err := s.abi.Unpack("currentPrice", results[0].Output)
	if err != nil || len(unpacked) == 0 {
		s.logger.Warn().Err(err).Uint64(logging.FieldAgent, agentID).Msg("Failed to decode price")
		return
	}
	price, ok := unpacked[0].(*big.Int)
	if !ok {
		s.logger.Warn().Uint64(logging.FieldAgent, agentID).Msg("Unexpected price type")
		return
	}

	if err := s.db.UpdateAgentSharePrice(ctx, agentID, price.String()); err != nil {
		s.logger.Warn().Err(err).Uint64(logging.FieldAgent, agentID).Msg("Failed to cache share price")
	}
}
