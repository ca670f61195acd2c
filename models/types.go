package models

import (
	"time"
)

// Agent represents a registered agent in the economy. The internal ID is
// assigned once on first observation; AgentID is the ledger-assigned
// identifier and is unique across the registry.
type Agent struct {
	ID             string      `json:"id"`
	AgentID        uint64      `json:"agent_id"`
	Name           string      `json:"name"`
	Wallet         string      `json:"wallet"`
	MetadataURI    string      `json:"metadata_uri"`
	Status         AgentStatus `json:"status"`
	Reputation     int64       `json:"reputation"`
	TasksCompleted int64       `json:"tasks_completed"`
	TasksFailed    int64       `json:"tasks_failed"`
	TotalRevenue   string      `json:"total_revenue"`
	SharesContract string      `json:"shares_contract,omitempty"`
	SharePrice     string      `json:"share_price,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusUnfunded AgentStatus = "unfunded"
	AgentStatusActive   AgentStatus = "active"
	AgentStatusLowFunds AgentStatus = "low_funds"
	AgentStatusPaused   AgentStatus = "paused"
	AgentStatusDead     AgentStatus = "dead"
)

// InitialReputation is assigned to every agent on registration.
const InitialReputation = int64(50)

// ReputationChange is an append-only trail entry of reputation updates.
type ReputationChange struct {
	ID          string    `json:"id"`
	AgentID     uint64    `json:"agent_id"`
	OldScore    int64     `json:"old_score"`
	NewScore    int64     `json:"new_score"`
	Reason      string    `json:"reason"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Holding is an investor's position in one agent's share token.
// Unique per (agent_id, holder).
type Holding struct {
	ID        string    `json:"id"`
	AgentID   uint64    `json:"agent_id"`
	Holder    string    `json:"holder"`
	Shares    string    `json:"shares"`
	CostBasis string    `json:"cost_basis"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShareTransaction records a single share trade. (tx_hash, log_index) is the
// natural key used for idempotent replay.
type ShareTransaction struct {
	ID          string    `json:"id"`
	AgentID     uint64    `json:"agent_id"`
	Trader      string    `json:"trader"`
	Kind        TradeKind `json:"kind"`
	Shares      string    `json:"shares"`
	Value       string    `json:"value"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// TradeKind classifies a share transaction.
type TradeKind string

const (
	TradeKindBuy  TradeKind = "buy"
	TradeKindSell TradeKind = "sell"
	TradeKindMint TradeKind = "mint"
)

// ProfitDistribution records one profit deposit split between an agent and
// its claim holders.
type ProfitDistribution struct {
	ID          string    `json:"id"`
	AgentID     uint64    `json:"agent_id"`
	Total       string    `json:"total"`
	AgentShare  string    `json:"agent_share"`
	HolderShare string    `json:"holder_share"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfitClaim records an individual holder claiming distributed profit.
type ProfitClaim struct {
	ID          string    `json:"id"`
	AgentID     uint64    `json:"agent_id"`
	Claimer     string    `json:"claimer"`
	Amount      string    `json:"amount"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task represents an open task auction.
type Task struct {
	ID           string     `json:"id"`
	TaskID       uint64     `json:"task_id"`
	Creator      string     `json:"creator"`
	Description  string     `json:"description"`
	Reward       string     `json:"reward"`
	Status       TaskStatus `json:"status"`
	WinningBidID *uint64    `json:"winning_bid_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskStatus represents the possible states of a task auction.
type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusAssigned  TaskStatus = "assigned"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusVerified  TaskStatus = "verified"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Bid is a single bid on a task auction. Unique per (task_id, bid_id).
type Bid struct {
	ID        string    `json:"id"`
	TaskID    uint64    `json:"task_id"`
	BidID     uint64    `json:"bid_id"`
	Bidder    string    `json:"bidder"`
	Amount    string    `json:"amount"`
	Status    BidStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BidStatus represents the possible states of a bid.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusWithdrawn BidStatus = "withdrawn"
	BidStatusWon       BidStatus = "won"
	BidStatusLost      BidStatus = "lost"
)

// ServiceRequest is a consumer-side request in the offer auction.
type ServiceRequest struct {
	ID              string        `json:"id"`
	RequestID       uint64        `json:"request_id"`
	Consumer        string        `json:"consumer"`
	Spec            string        `json:"spec"`
	Budget          string        `json:"budget"`
	Status          RequestStatus `json:"status"`
	AcceptedOfferID *uint64       `json:"accepted_offer_id,omitempty"`
	DisputeReason   string        `json:"dispute_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RequestStatus represents the possible states of a service request.
type RequestStatus string

const (
	RequestStatusOpen      RequestStatus = "open"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusMatched   RequestStatus = "matched"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusDisputed  RequestStatus = "disputed"
)

// ServiceOffer is a seller-side offer on a request. Unique per
// (request_id, offer_id).
type ServiceOffer struct {
	ID        string      `json:"id"`
	RequestID uint64      `json:"request_id"`
	OfferID   uint64      `json:"offer_id"`
	Seller    string      `json:"seller"`
	Price     string      `json:"price"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OfferStatus represents the possible states of a service offer.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
)

// PartnershipProposal is one side of a bilateral agreement negotiation.
// A counter-offer inserts a new proposal with initiator and target swapped;
// the original is marked negotiating and never deleted.
type PartnershipProposal struct {
	ID          string         `json:"id"`
	ProposalID  uint64         `json:"proposal_id"`
	InitiatorID uint64         `json:"initiator_id"`
	TargetID    uint64         `json:"target_id"`
	SplitBps    uint64         `json:"split_bps"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      ProposalStatus `json:"status"`
	CounterOf   *uint64        `json:"counter_of,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProposalStatus represents the possible states of a partnership proposal.
type ProposalStatus string

const (
	ProposalStatusPending     ProposalStatus = "pending"
	ProposalStatusAccepted    ProposalStatus = "accepted"
	ProposalStatusRejected    ProposalStatus = "rejected"
	ProposalStatusNegotiating ProposalStatus = "negotiating"
)

// Partnership is an active bilateral agreement created when a proposal is
// accepted. The split is fixed at acceptance.
type Partnership struct {
	ID               string            `json:"id"`
	PartnershipID    uint64            `json:"partnership_id"`
	AgentA           uint64            `json:"agent_a"`
	AgentB           uint64            `json:"agent_b"`
	SplitBps         uint64            `json:"split_bps"`
	Status           PartnershipStatus `json:"status"`
	TotalRevenue     string            `json:"total_revenue"`
	AvailableBalance string            `json:"available_balance"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PartnershipStatus represents the possible states of a partnership.
type PartnershipStatus string

const (
	PartnershipStatusActive    PartnershipStatus = "active"
	PartnershipStatusDissolved PartnershipStatus = "dissolved"
)

// EconomyEvent is an append-only entry in the unified activity feed.
// Deduplicated by (tx_hash, block_number, type): a second insert with the
// same key is a no-op.
type EconomyEvent struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Participants []string          `json:"participants"`
	Amount       string            `json:"amount,omitempty"`
	TxHash       string            `json:"tx_hash,omitempty"`
	BlockNumber  uint64            `json:"block_number,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BalanceEntry is a cached numeric balance snapshot for one address.
type BalanceEntry struct {
	Address   string    `json:"address"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncCursor tracks the last successfully synchronized block for one
// watched contract.
type SyncCursor struct {
	ContractName    string       `json:"contract_name"`
	LastSyncedBlock uint64       `json:"last_synced_block"`
	Status          CursorStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	LastSyncAt      time.Time    `json:"last_sync_at"`
}

// CursorStatus represents the sync state of one contract cursor.
type CursorStatus string

const (
	CursorStatusIdle    CursorStatus = "idle"
	CursorStatusSyncing CursorStatus = "syncing"
	CursorStatusError   CursorStatus = "error"
)
