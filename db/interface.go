package db

import (
	"context"

	"github.com/agora-hq/agora/syncer/models"
)

// Database defines the persistence operations the sync engine relies on.
// All event-derived writes are upserts or dedup-guarded inserts so that
// replaying a log range is idempotent.
type Database interface {
	// Connection management
	Close() error
	Ping() error
	InitDB(ctx context.Context) error

	// Sync cursor operations
	GetSyncCursor(ctx context.Context, contractName string) (*models.SyncCursor, error)
	ListSyncCursors(ctx context.Context) ([]*models.SyncCursor, error)
	AdvanceSyncCursor(ctx context.Context, contractName string, block uint64) error
	MarkCursorSyncing(ctx context.Context, contractName string) error
	MarkCursorError(ctx context.Context, contractName, message string) error

	// Agent operations
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgentByAgentID(ctx context.Context, agentID uint64) (*models.Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID uint64, status models.AgentStatus) error
	UpdateAgentReputation(ctx context.Context, agentID uint64, score int64) error
	CreateReputationChange(ctx context.Context, change *models.ReputationChange) error
	RecordAgentTask(ctx context.Context, agentID uint64, success bool, revenue string) error
	UpdateAgentWallet(ctx context.Context, agentID uint64, wallet string) error
	SetAgentSharesContract(ctx context.Context, agentID uint64, address string) error
	UpdateAgentSharePrice(ctx context.Context, agentID uint64, price string) error
	ListSharesContracts(ctx context.Context) (map[string]uint64, error)

	// Holding and share flow operations
	GetHolding(ctx context.Context, agentID uint64, holder string) (*models.Holding, error)
	UpsertHolding(ctx context.Context, holding *models.Holding) error
	CreateShareTransaction(ctx context.Context, txn *models.ShareTransaction) error
	CreateProfitDistribution(ctx context.Context, dist *models.ProfitDistribution) error
	CreateProfitClaim(ctx context.Context, claim *models.ProfitClaim) error

	// Task auction operations
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByTaskID(ctx context.Context, taskID uint64) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uint64, status models.TaskStatus) error
	CreateBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, taskID, bidID uint64) (*models.Bid, error)
	UpdateBidStatus(ctx context.Context, taskID, bidID uint64, status models.BidStatus) error
	SelectWinningBid(ctx context.Context, taskID, bidID uint64) error
	ListBidsByTask(ctx context.Context, taskID uint64) ([]*models.Bid, error)

	// Service auction operations
	CreateServiceRequest(ctx context.Context, request *models.ServiceRequest) error
	GetServiceRequestByRequestID(ctx context.Context, requestID uint64) (*models.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, requestID uint64, status models.RequestStatus) error
	MarkRequestDisputed(ctx context.Context, requestID uint64, reason string) error
	CreateServiceOffer(ctx context.Context, offer *models.ServiceOffer) error
	GetServiceOffer(ctx context.Context, requestID, offerID uint64) (*models.ServiceOffer, error)
	UpdateServiceOfferStatus(ctx context.Context, requestID, offerID uint64, status models.OfferStatus) error
	AcceptOffer(ctx context.Context, requestID, offerID uint64) error
	ListOffersByRequest(ctx context.Context, requestID uint64) ([]*models.ServiceOffer, error)

	// Partnership operations
	CreateProposal(ctx context.Context, proposal *models.PartnershipProposal) error
	GetProposalByProposalID(ctx context.Context, proposalID uint64) (*models.PartnershipProposal, error)
	UpdateProposalStatus(ctx context.Context, proposalID uint64, status models.ProposalStatus) error
	CreatePartnership(ctx context.Context, partnership *models.Partnership) error
	GetPartnershipByPartnershipID(ctx context.Context, partnershipID uint64) (*models.Partnership, error)
	UpdatePartnershipStatus(ctx context.Context, partnershipID uint64, status models.PartnershipStatus) error
	AddPartnershipRevenue(ctx context.Context, partnershipID uint64, amount string) error
	WithdrawPartnershipFunds(ctx context.Context, partnershipID uint64, amount string) error

	// Replay guard for event handlers whose writes are increments rather
	// than upserts. Handlers check IsLogProcessed before applying and
	// write the marker only after the increment lands, so a dropped or
	// halted log stays replayable. MarkLogProcessed returns false when
	// the marker already existed.
	IsLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error)
	MarkLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error)

	// Economy feed operations
	CreateEconomyEvent(ctx context.Context, event *models.EconomyEvent) error
	ListEconomyEvents(ctx context.Context, limit int) ([]*models.EconomyEvent, error)

	// Balance cache operations
	ListTrackedAddresses(ctx context.Context) ([]string, error)
	GetCachedBalance(ctx context.Context, address string) (string, error)
	UpsertCachedBalance(ctx context.Context, address, balance string) error
}
