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

// ServiceAuctionProcessor handles the consumer request / seller offer
// marketplace: request creation, offers, auction close, fulfillment and
// disputes.
type ServiceAuctionProcessor struct {
	db     db.Database
	abi    abi.ABI
	logger zerolog.Logger
}

// NewServiceAuctionProcessor parses the service auction ABI and builds the
// processor.
func NewServiceAuctionProcessor(database db.Database, logger zerolog.Logger) (*ServiceAuctionProcessor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(config.ServiceAuctionABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse service auction ABI")
	}

	return &ServiceAuctionProcessor{
		db:     database,
		abi:    parsedABI,
		logger: logger.With().Str(logging.FieldModule, "service_auction_processor").Logger(),
	}, nil
}

func (s *ServiceAuctionProcessor) ContractName() string {
	return config.ServiceAuctionContract
}

func (s *ServiceAuctionProcessor) ProcessLog(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) == 0 {
		return errors.New("invalid log: no topics")
	}

	switch vLog.Topics[0] {
	case s.abi.Events["RequestCreated"].ID:
		return s.handleRequestCreated(ctx, vLog)
	case s.abi.Events["RequestCancelled"].ID:
		return s.handleRequestCancelled(ctx, vLog)
	case s.abi.Events["OfferSubmitted"].ID:
		return s.handleOfferSubmitted(ctx, vLog)
	case s.abi.Events["OfferWithdrawn"].ID:
		return s.handleOfferWithdrawn(ctx, vLog)
	case s.abi.Events["AuctionClosed"].ID:
		return s.handleAuctionClosed(ctx, vLog)
	case s.abi.Events["RequestFulfilled"].ID:
		return s.handleRequestFulfilled(ctx, vLog)
	case s.abi.Events["DisputeRaised"].ID:
		return s.handleDisputeRaised(ctx, vLog)
	default:
		s.logger.Debug().
			Str("topic", vLog.Topics[0].Hex()).
			Msg("Skipping unrecognized service auction log")
		return nil
	}
}

func (s *ServiceAuctionProcessor) handleRequestCreated(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid RequestCreated log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("RequestCreated", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack RequestCreated")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid RequestCreated data: expected 2 fields, got %d", len(unpacked))
	}
	budget, err := bigIntField(unpacked[0], "budget")
	if err != nil {
		return err
	}
	spec, err := stringField(unpacked[1], "spec")
	if err != nil {
		return err
	}

	event := &models.RequestCreatedEvent{
		RequestID:   topicToUint64(vLog.Topics[1]),
		Consumer:    topicToAddress(vLog.Topics[2]),
		Budget:      budget,
		Spec:        spec,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if err := swallowDuplicate(s.db.CreateServiceRequest(ctx, event.ToRequest())); err != nil {
		return errors.Wrap(err, "failed to store service request")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type: "request_created",
		Description: fmt.Sprintf("Service request %d opened with a %s budget",
			event.RequestID, utils.FormatUnits(event.Budget, nativeDecimals)),
		Participants: []string{event.Consumer},
		Amount:       event.Budget.String(),
		TxHash:       event.TxHash,
		BlockNumber:  event.BlockNumber,
		Metadata:     map[string]string{"request_id": fmt.Sprintf("%d", event.RequestID)},
	})
}

func (s *ServiceAuctionProcessor) handleRequestCancelled(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid RequestCancelled log: expected 2 topics, got %d", len(vLog.Topics))
	}

	requestID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdateServiceRequestStatus(ctx, requestID, models.RequestStatusCancelled)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "RequestCancelled", "Cancellation of unknown request, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to cancel request")
	}
	return nil
}

func (s *ServiceAuctionProcessor) handleOfferSubmitted(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid OfferSubmitted log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("OfferSubmitted", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack OfferSubmitted")
	}
	if len(unpacked) < 2 {
		return errors.Errorf("invalid OfferSubmitted data: expected 2 fields, got %d", len(unpacked))
	}
	seller, err := addressField(unpacked[0], "seller")
	if err != nil {
		return err
	}
	price, err := bigIntField(unpacked[1], "price")
	if err != nil {
		return err
	}

	event := &models.OfferSubmittedEvent{
		RequestID:   topicToUint64(vLog.Topics[1]),
		OfferID:     topicToUint64(vLog.Topics[2]),
		Seller:      seller,
		Price:       price,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}

	if _, err := s.db.GetServiceRequestByRequestID(ctx, event.RequestID); errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "OfferSubmitted", "Offer on unknown request, dropping")
		return nil
	} else if err != nil {
		return errors.Wrap(err, "failed to look up request")
	}

	if err := swallowDuplicate(s.db.CreateServiceOffer(ctx, event.ToOffer())); err != nil {
		return errors.Wrap(err, "failed to store offer")
	}
	return nil
}

func (s *ServiceAuctionProcessor) handleOfferWithdrawn(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid OfferWithdrawn log: expected 3 topics, got %d", len(vLog.Topics))
	}

	requestID := topicToUint64(vLog.Topics[1])
	offerID := topicToUint64(vLog.Topics[2])

	err := s.db.UpdateServiceOfferStatus(ctx, requestID, offerID, models.OfferStatusWithdrawn)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "OfferWithdrawn", "Withdrawal of unknown offer, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to withdraw offer")
	}
	return nil
}

func (s *ServiceAuctionProcessor) handleAuctionClosed(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid AuctionClosed log: expected 3 topics, got %d", len(vLog.Topics))
	}

	requestID := topicToUint64(vLog.Topics[1])
	offerID := topicToUint64(vLog.Topics[2])

	if _, err := s.db.GetServiceOffer(ctx, requestID, offerID); errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "AuctionClosed", "Close references unknown offer, dropping")
		return nil
	} else if err != nil {
		return errors.Wrap(err, "failed to look up offer")
	}

	if err := s.db.AcceptOffer(ctx, requestID, offerID); err != nil {
		return errors.Wrap(err, "failed to accept offer")
	}

	s.logger.Info().
		Uint64("request_id", requestID).
		Uint64("offer_id", offerID).
		Msg("Service auction closed")

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "auction_closed",
		Description: fmt.Sprintf("Offer %d accepted for request %d", offerID, requestID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata: map[string]string{
			"request_id": fmt.Sprintf("%d", requestID),
			"offer_id":   fmt.Sprintf("%d", offerID),
		},
	})
}

func (s *ServiceAuctionProcessor) handleRequestFulfilled(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 2 {
		return errors.Errorf("invalid RequestFulfilled log: expected 2 topics, got %d", len(vLog.Topics))
	}

	requestID := topicToUint64(vLog.Topics[1])

	err := s.db.UpdateServiceRequestStatus(ctx, requestID, models.RequestStatusFulfilled)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "RequestFulfilled", "Fulfillment of unknown request, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to fulfill request")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:        "request_fulfilled",
		Description: fmt.Sprintf("Service request %d fulfilled", requestID),
		TxHash:      vLog.TxHash.Hex(),
		BlockNumber: vLog.BlockNumber,
		Metadata:    map[string]string{"request_id": fmt.Sprintf("%d", requestID)},
	})
}

func (s *ServiceAuctionProcessor) handleDisputeRaised(ctx context.Context, vLog types.Log) error {
	if len(vLog.Topics) < 3 {
		return errors.Errorf("invalid DisputeRaised log: expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := s.abi.Unpack("DisputeRaised", vLog.Data)
	if err != nil {
		return errors.Wrap(err, "failed to unpack DisputeRaised")
	}
	if len(unpacked) < 1 {
		return errors.New("invalid DisputeRaised data: missing reason")
	}
	reason, err := stringField(unpacked[0], "reason")
	if err != nil {
		return err
	}

	requestID := topicToUint64(vLog.Topics[1])
	flagger := topicToAddress(vLog.Topics[2])

	err = s.db.MarkRequestDisputed(ctx, requestID, reason)
	if errors.Is(err, db.ErrNotFound) {
		logSoftFail(s.logger, vLog, "DisputeRaised", "Dispute on unknown request, dropping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to mark request disputed")
	}

	return s.db.CreateEconomyEvent(ctx, &models.EconomyEvent{
		Type:         "dispute_raised",
		Description:  fmt.Sprintf("Dispute raised on request %d: %s", requestID, reason),
		Participants: []string{flagger},
		TxHash:       vLog.TxHash.Hex(),
		BlockNumber:  vLog.BlockNumber,
		Metadata:     map[string]string{"request_id": fmt.Sprintf("%d", requestID)},
	})
}
