package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agora-hq/agora/syncer/models"
	"github.com/agora-hq/agora/syncer/utils"
)

// MemDB is an in-memory Database used by tests. It enforces the same
// natural keys as the postgres schema so duplicate inserts fail the same
// way (IsDuplicate matches both).
type MemDB struct {
	mu sync.RWMutex

	cursors       map[string]*models.SyncCursor
	agents        map[uint64]*models.Agent
	repHistory    map[string]*models.ReputationChange
	holdings      map[string]*models.Holding          // agent_id|holder
	shareTxns     map[string]*models.ShareTransaction // tx_hash|log_index
	distributions map[string]*models.ProfitDistribution
	claims        map[string]*models.ProfitClaim
	tasks         map[uint64]*models.Task
	bids          map[string]*models.Bid          // task_id|bid_id
	requests      map[uint64]*models.ServiceRequest
	offers        map[string]*models.ServiceOffer // request_id|offer_id
	proposals     map[uint64]*models.PartnershipProposal
	partnerships  map[uint64]*models.Partnership
	events        map[string]*models.EconomyEvent // tx_hash|block|type
	eventOrder    []string
	balances      map[string]*models.BalanceEntry
	processedLogs map[string]bool // tx_hash|log_index
}

// NewMemDB creates an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{
		cursors:       make(map[string]*models.SyncCursor),
		agents:        make(map[uint64]*models.Agent),
		repHistory:    make(map[string]*models.ReputationChange),
		holdings:      make(map[string]*models.Holding),
		shareTxns:     make(map[string]*models.ShareTransaction),
		distributions: make(map[string]*models.ProfitDistribution),
		claims:        make(map[string]*models.ProfitClaim),
		tasks:         make(map[uint64]*models.Task),
		bids:          make(map[string]*models.Bid),
		requests:      make(map[uint64]*models.ServiceRequest),
		offers:        make(map[string]*models.ServiceOffer),
		proposals:     make(map[uint64]*models.PartnershipProposal),
		partnerships:  make(map[uint64]*models.Partnership),
		events:        make(map[string]*models.EconomyEvent),
		balances:      make(map[string]*models.BalanceEntry),
		processedLogs: make(map[string]bool),
	}
}

func duplicateErr(key string) error {
	return fmt.Errorf("duplicate key value violates unique constraint %q", key)
}

func pairKey(a, b uint64) string {
	return fmt.Sprintf("%d|%d", a, b)
}

func (m *MemDB) Close() error { return nil }
func (m *MemDB) Ping() error  { return nil }

func (m *MemDB) InitDB(ctx context.Context) error { return nil }

// --- Sync cursors ---

func (m *MemDB) GetSyncCursor(ctx context.Context, contractName string) (*models.SyncCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cursor, ok := m.cursors[contractName]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cursor
	return &copied, nil
}

func (m *MemDB) ListSyncCursors(ctx context.Context) ([]*models.SyncCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cursors := make([]*models.SyncCursor, 0, len(m.cursors))
	for _, cursor := range m.cursors {
		copied := *cursor
		cursors = append(cursors, &copied)
	}
	sort.Slice(cursors, func(i, j int) bool {
		return cursors[i].ContractName < cursors[j].ContractName
	})
	return cursors, nil
}

func (m *MemDB) AdvanceSyncCursor(ctx context.Context, contractName string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[contractName] = &models.SyncCursor{
		ContractName:    contractName,
		LastSyncedBlock: block,
		Status:          models.CursorStatusIdle,
		LastSyncAt:      time.Now(),
	}
	return nil
}

func (m *MemDB) MarkCursorSyncing(ctx context.Context, contractName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cursor, ok := m.cursors[contractName]
	if !ok {
		cursor = &models.SyncCursor{ContractName: contractName}
		m.cursors[contractName] = cursor
	}
	cursor.Status = models.CursorStatusSyncing
	return nil
}

func (m *MemDB) MarkCursorError(ctx context.Context, contractName, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cursor, ok := m.cursors[contractName]
	if !ok {
		cursor = &models.SyncCursor{ContractName: contractName}
		m.cursors[contractName] = cursor
	}
	cursor.Status = models.CursorStatusError
	cursor.ErrorMessage = message
	return nil
}

// --- Agents ---

func (m *MemDB) CreateAgent(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[agent.AgentID]; exists {
		return duplicateErr("agents_agent_id_key")
	}
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	copied := *agent
	m.agents[agent.AgentID] = &copied
	return nil
}

func (m *MemDB) GetAgentByAgentID(ctx context.Context, agentID uint64) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

func (m *MemDB) UpdateAgentStatus(ctx context.Context, agentID uint64, status models.AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.Status = status
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) UpdateAgentReputation(ctx context.Context, agentID uint64, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.Reputation = score
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) CreateReputationChange(ctx context.Context, change *models.ReputationChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%d|%d", change.TxHash, change.AgentID, change.NewScore)
	if _, exists := m.repHistory[key]; exists {
		return duplicateErr("reputation_history_key")
	}
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	copied := *change
	m.repHistory[key] = &copied
	return nil
}

func (m *MemDB) RecordAgentTask(ctx context.Context, agentID uint64, success bool, revenue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if success {
		agent.TasksCompleted++
	} else {
		agent.TasksFailed++
	}
	agent.TotalRevenue = utils.AddBig(agent.TotalRevenue, revenue)
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) UpdateAgentWallet(ctx context.Context, agentID uint64, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.Wallet = wallet
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) SetAgentSharesContract(ctx context.Context, agentID uint64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.SharesContract = address
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) UpdateAgentSharePrice(ctx context.Context, agentID uint64, price string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.SharePrice = price
	agent.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) ListSharesContracts(ctx context.Context) (map[string]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	contracts := make(map[string]uint64)
	for _, agent := range m.agents {
		if agent.SharesContract != "" {
			contracts[agent.SharesContract] = agent.AgentID
		}
	}
	return contracts, nil
}

// --- Holdings and share flows ---

func holdingKey(agentID uint64, holder string) string {
	return fmt.Sprintf("%d|%s", agentID, strings.ToLower(holder))
}

func (m *MemDB) GetHolding(ctx context.Context, agentID uint64, holder string) (*models.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	holding, ok := m.holdings[holdingKey(agentID, holder)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *holding
	return &copied, nil
}

func (m *MemDB) UpsertHolding(ctx context.Context, holding *models.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holding.ID == "" {
		holding.ID = uuid.New().String()
	}
	copied := *holding
	copied.UpdatedAt = time.Now()
	m.holdings[holdingKey(holding.AgentID, holding.Holder)] = &copied
	return nil
}

func logKey(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s|%d", txHash, logIndex)
}

func (m *MemDB) CreateShareTransaction(ctx context.Context, txn *models.ShareTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey(txn.TxHash, txn.LogIndex)
	if _, exists := m.shareTxns[key]; exists {
		return duplicateErr("share_transactions_key")
	}
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	copied := *txn
	m.shareTxns[key] = &copied
	return nil
}

func (m *MemDB) CreateProfitDistribution(ctx context.Context, dist *models.ProfitDistribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey(dist.TxHash, dist.LogIndex)
	if _, exists := m.distributions[key]; exists {
		return duplicateErr("profit_distributions_key")
	}
	if dist.ID == "" {
		dist.ID = uuid.New().String()
	}
	copied := *dist
	m.distributions[key] = &copied
	return nil
}

func (m *MemDB) CreateProfitClaim(ctx context.Context, claim *models.ProfitClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey(claim.TxHash, claim.LogIndex)
	if _, exists := m.claims[key]; exists {
		return duplicateErr("profit_claims_key")
	}
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	copied := *claim
	m.claims[key] = &copied
	return nil
}

// --- Tasks ---

func (m *MemDB) CreateTask(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.TaskID]; exists {
		return duplicateErr("tasks_task_id_key")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	copied := *task
	m.tasks[task.TaskID] = &copied
	return nil
}

func (m *MemDB) GetTaskByTaskID(ctx context.Context, taskID uint64) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *MemDB) UpdateTaskStatus(ctx context.Context, taskID uint64, status models.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	task.Status = status
	task.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) CreateBid(ctx context.Context, bid *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(bid.TaskID, bid.BidID)
	if _, exists := m.bids[key]; exists {
		return duplicateErr("task_bids_key")
	}
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	copied := *bid
	m.bids[key] = &copied
	return nil
}

func (m *MemDB) GetBid(ctx context.Context, taskID, bidID uint64) (*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bid, ok := m.bids[pairKey(taskID, bidID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *bid
	return &copied, nil
}

func (m *MemDB) UpdateBidStatus(ctx context.Context, taskID, bidID uint64, status models.BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[pairKey(taskID, bidID)]
	if !ok {
		return ErrNotFound
	}
	bid.Status = status
	bid.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) SelectWinningBid(ctx context.Context, taskID, bidID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, bid := range m.bids {
		if bid.TaskID != taskID {
			continue
		}
		switch {
		case bid.BidID == bidID:
			bid.Status = models.BidStatusWon
			bid.UpdatedAt = now
		case bid.Status == models.BidStatusPending:
			bid.Status = models.BidStatusLost
			bid.UpdatedAt = now
		}
	}
	if task, ok := m.tasks[taskID]; ok {
		winner := bidID
		task.Status = models.TaskStatusAssigned
		task.WinningBidID = &winner
		task.UpdatedAt = now
	}
	return nil
}

func (m *MemDB) ListBidsByTask(ctx context.Context, taskID uint64) ([]*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bids []*models.Bid
	for _, bid := range m.bids {
		if bid.TaskID == taskID {
			copied := *bid
			bids = append(bids, &copied)
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].BidID < bids[j].BidID })
	return bids, nil
}

// --- Service requests and offers ---

func (m *MemDB) CreateServiceRequest(ctx context.Context, request *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[request.RequestID]; exists {
		return duplicateErr("service_requests_request_id_key")
	}
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	copied := *request
	m.requests[request.RequestID] = &copied
	return nil
}

func (m *MemDB) GetServiceRequestByRequestID(ctx context.Context, requestID uint64) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	request, ok := m.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *request
	return &copied, nil
}

func (m *MemDB) UpdateServiceRequestStatus(ctx context.Context, requestID uint64, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	request.Status = status
	request.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) MarkRequestDisputed(ctx context.Context, requestID uint64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	request.Status = models.RequestStatusDisputed
	request.DisputeReason = reason
	request.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) CreateServiceOffer(ctx context.Context, offer *models.ServiceOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(offer.RequestID, offer.OfferID)
	if _, exists := m.offers[key]; exists {
		return duplicateErr("service_offers_key")
	}
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	copied := *offer
	m.offers[key] = &copied
	return nil
}

func (m *MemDB) GetServiceOffer(ctx context.Context, requestID, offerID uint64) (*models.ServiceOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offer, ok := m.offers[pairKey(requestID, offerID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *offer
	return &copied, nil
}

func (m *MemDB) UpdateServiceOfferStatus(ctx context.Context, requestID, offerID uint64, status models.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	offer, ok := m.offers[pairKey(requestID, offerID)]
	if !ok {
		return ErrNotFound
	}
	offer.Status = status
	offer.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) AcceptOffer(ctx context.Context, requestID, offerID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, offer := range m.offers {
		if offer.RequestID != requestID {
			continue
		}
		switch {
		case offer.OfferID == offerID:
			offer.Status = models.OfferStatusAccepted
			offer.UpdatedAt = now
		case offer.Status == models.OfferStatusPending:
			offer.Status = models.OfferStatusRejected
			offer.UpdatedAt = now
		}
	}
	if request, ok := m.requests[requestID]; ok {
		accepted := offerID
		request.Status = models.RequestStatusMatched
		request.AcceptedOfferID = &accepted
		request.UpdatedAt = now
	}
	return nil
}

func (m *MemDB) ListOffersByRequest(ctx context.Context, requestID uint64) ([]*models.ServiceOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var offers []*models.ServiceOffer
	for _, offer := range m.offers {
		if offer.RequestID == requestID {
			copied := *offer
			offers = append(offers, &copied)
		}
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].OfferID < offers[j].OfferID })
	return offers, nil
}

// --- Partnerships ---

func (m *MemDB) CreateProposal(ctx context.Context, proposal *models.PartnershipProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.proposals[proposal.ProposalID]; exists {
		return duplicateErr("partnership_proposals_proposal_id_key")
	}
	if proposal.ID == "" {
		proposal.ID = uuid.New().String()
	}
	copied := *proposal
	m.proposals[proposal.ProposalID] = &copied
	return nil
}

func (m *MemDB) GetProposalByProposalID(ctx context.Context, proposalID uint64) (*models.PartnershipProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *proposal
	return &copied, nil
}

func (m *MemDB) UpdateProposalStatus(ctx context.Context, proposalID uint64, status models.ProposalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return ErrNotFound
	}
	proposal.Status = status
	proposal.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) CreatePartnership(ctx context.Context, partnership *models.Partnership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.partnerships[partnership.PartnershipID]; exists {
		return duplicateErr("partnerships_partnership_id_key")
	}
	if partnership.ID == "" {
		partnership.ID = uuid.New().String()
	}
	copied := *partnership
	m.partnerships[partnership.PartnershipID] = &copied
	return nil
}

func (m *MemDB) GetPartnershipByPartnershipID(ctx context.Context, partnershipID uint64) (*models.Partnership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	partnership, ok := m.partnerships[partnershipID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *partnership
	return &copied, nil
}

func (m *MemDB) UpdatePartnershipStatus(ctx context.Context, partnershipID uint64, status models.PartnershipStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partnership, ok := m.partnerships[partnershipID]
	if !ok {
		return ErrNotFound
	}
	partnership.Status = status
	partnership.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) AddPartnershipRevenue(ctx context.Context, partnershipID uint64, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partnership, ok := m.partnerships[partnershipID]
	if !ok {
		return ErrNotFound
	}
	partnership.TotalRevenue = utils.AddBig(partnership.TotalRevenue, amount)
	partnership.AvailableBalance = utils.AddBig(partnership.AvailableBalance, amount)
	partnership.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) WithdrawPartnershipFunds(ctx context.Context, partnershipID uint64, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partnership, ok := m.partnerships[partnershipID]
	if !ok {
		return ErrNotFound
	}
	partnership.AvailableBalance = utils.SubBigClamped(partnership.AvailableBalance, amount)
	partnership.UpdatedAt = time.Now()
	return nil
}

func (m *MemDB) IsLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processedLogs[logKey(txHash, logIndex)], nil
}

func (m *MemDB) MarkLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey(txHash, logIndex)
	if m.processedLogs[key] {
		return false, nil
	}
	m.processedLogs[key] = true
	return true, nil
}

// --- Economy feed ---

func (m *MemDB) CreateEconomyEvent(ctx context.Context, event *models.EconomyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%d|%s", event.TxHash, event.BlockNumber, event.Type)
	if _, exists := m.events[key]; exists {
		// same semantics as ON CONFLICT DO NOTHING
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	copied := *event
	copied.CreatedAt = time.Now()
	m.events[key] = &copied
	m.eventOrder = append(m.eventOrder, key)
	return nil
}

func (m *MemDB) ListEconomyEvents(ctx context.Context, limit int) ([]*models.EconomyEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*models.EconomyEvent
	for i := len(m.eventOrder) - 1; i >= 0 && len(events) < limit; i-- {
		copied := *m.events[m.eventOrder[i]]
		events = append(events, &copied)
	}
	return events, nil
}

// --- Balance cache ---

func (m *MemDB) ListTrackedAddresses(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var addresses []string
	for _, agent := range m.agents {
		if agent.Wallet != "" && !seen[agent.Wallet] {
			seen[agent.Wallet] = true
			addresses = append(addresses, agent.Wallet)
		}
	}
	for address := range m.balances {
		if !seen[address] {
			seen[address] = true
			addresses = append(addresses, address)
		}
	}
	sort.Strings(addresses)
	return addresses, nil
}

func (m *MemDB) GetCachedBalance(ctx context.Context, address string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.balances[address]
	if !ok {
		return "", ErrNotFound
	}
	return entry.Balance, nil
}

func (m *MemDB) UpsertCachedBalance(ctx context.Context, address, balance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = &models.BalanceEntry{
		Address:   address,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
	return nil
}
