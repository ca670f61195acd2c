package models

import (
	"math/big"
	"time"
)

// AgentRegisteredEvent is emitted when a new agent joins the registry.
type AgentRegisteredEvent struct {
	AgentID     uint64
	Wallet      string
	Name        string
	MetadataURI string
	BlockNumber uint64
	TxHash      string
}

// ToAgent converts a registration event into a fresh agent row.
func (e *AgentRegisteredEvent) ToAgent() *Agent {
	now := time.Now()
	return &Agent{
		AgentID:      e.AgentID,
		Name:         e.Name,
		Wallet:       e.Wallet,
		MetadataURI:  e.MetadataURI,
		Status:       AgentStatusUnfunded,
		Reputation:   InitialReputation,
		TotalRevenue: "0",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AgentStatusChangedEvent carries a lifecycle transition.
type AgentStatusChangedEvent struct {
	AgentID     uint64
	OldCode     uint8
	NewCode     uint8
	BlockNumber uint64
	TxHash      string
}

// ReputationUpdatedEvent carries a reputation change with before/after values.
type ReputationUpdatedEvent struct {
	AgentID     uint64
	OldScore    *big.Int
	NewScore    *big.Int
	Reason      string
	BlockNumber uint64
	TxHash      string
}

// TaskRecordedEvent increments an agent's cumulative task counters.
type TaskRecordedEvent struct {
	AgentID     uint64
	Success     bool
	Revenue     *big.Int
	BlockNumber uint64
	TxHash      string
}

// SharesTradeEvent covers both purchase and sale of agent shares.
type SharesTradeEvent struct {
	AgentID     uint64
	Trader      string
	Shares      *big.Int
	Value       *big.Int // cost on purchase, proceeds on sale
	Kind        TradeKind
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// ToTransaction converts a trade event into a share transaction row.
func (e *SharesTradeEvent) ToTransaction() *ShareTransaction {
	return &ShareTransaction{
		AgentID:     e.AgentID,
		Trader:      e.Trader,
		Kind:        e.Kind,
		Shares:      e.Shares.String(),
		Value:       e.Value.String(),
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
		CreatedAt:   time.Now(),
	}
}

// ProfitDepositedEvent records a profit split between agent and holders.
type ProfitDepositedEvent struct {
	AgentID     uint64
	Total       *big.Int
	AgentShare  *big.Int
	HolderShare *big.Int
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// ToDistribution converts a deposit event into a distribution row.
func (e *ProfitDepositedEvent) ToDistribution() *ProfitDistribution {
	return &ProfitDistribution{
		AgentID:     e.AgentID,
		Total:       e.Total.String(),
		AgentShare:  e.AgentShare.String(),
		HolderShare: e.HolderShare.String(),
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
		CreatedAt:   time.Now(),
	}
}

// ProfitClaimedEvent records an individual profit claim.
type ProfitClaimedEvent struct {
	AgentID     uint64
	Claimer     string
	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// ToClaim converts a claim event into a profit claim row.
func (e *ProfitClaimedEvent) ToClaim() *ProfitClaim {
	return &ProfitClaim{
		AgentID:     e.AgentID,
		Claimer:     e.Claimer,
		Amount:      e.Amount.String(),
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
		CreatedAt:   time.Now(),
	}
}

// TaskCreatedEvent opens a new task auction.
type TaskCreatedEvent struct {
	TaskID      uint64
	Creator     string
	Reward      *big.Int
	Description string
	BlockNumber uint64
	TxHash      string
}

// ToTask converts a creation event into an open task row.
func (e *TaskCreatedEvent) ToTask() *Task {
	now := time.Now()
	return &Task{
		TaskID:      e.TaskID,
		Creator:     e.Creator,
		Description: e.Description,
		Reward:      e.Reward.String(),
		Status:      TaskStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BidSubmittedEvent records a new bid on a task.
type BidSubmittedEvent struct {
	TaskID      uint64
	BidID       uint64
	Bidder      string
	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
}

// ToBid converts a submission event into a pending bid row.
func (e *BidSubmittedEvent) ToBid() *Bid {
	now := time.Now()
	return &Bid{
		TaskID:    e.TaskID,
		BidID:     e.BidID,
		Bidder:    e.Bidder,
		Amount:    e.Amount.String(),
		Status:    BidStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RequestCreatedEvent opens a new service request.
type RequestCreatedEvent struct {
	RequestID   uint64
	Consumer    string
	Budget      *big.Int
	Spec        string
	BlockNumber uint64
	TxHash      string
}

// ToRequest converts a creation event into an open request row.
func (e *RequestCreatedEvent) ToRequest() *ServiceRequest {
	now := time.Now()
	return &ServiceRequest{
		RequestID: e.RequestID,
		Consumer:  e.Consumer,
		Spec:      e.Spec,
		Budget:    e.Budget.String(),
		Status:    RequestStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OfferSubmittedEvent records a seller offer on a request.
type OfferSubmittedEvent struct {
	RequestID   uint64
	OfferID     uint64
	Seller      string
	Price       *big.Int
	BlockNumber uint64
	TxHash      string
}

// ToOffer converts a submission event into a pending offer row.
func (e *OfferSubmittedEvent) ToOffer() *ServiceOffer {
	now := time.Now()
	return &ServiceOffer{
		RequestID: e.RequestID,
		OfferID:   e.OfferID,
		Seller:    e.Seller,
		Price:     e.Price.String(),
		Status:    OfferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProposalCreatedEvent opens a partnership negotiation.
type ProposalCreatedEvent struct {
	ProposalID  uint64
	InitiatorID uint64
	TargetID    uint64
	SplitBps    uint64
	ExpiresAt   time.Time
	BlockNumber uint64
	TxHash      string
}

// ToProposal converts a creation event into a pending proposal row.
func (e *ProposalCreatedEvent) ToProposal() *PartnershipProposal {
	now := time.Now()
	return &PartnershipProposal{
		ProposalID:  e.ProposalID,
		InitiatorID: e.InitiatorID,
		TargetID:    e.TargetID,
		SplitBps:    e.SplitBps,
		ExpiresAt:   e.ExpiresAt,
		Status:      ProposalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
