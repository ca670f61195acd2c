package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/agora-hq/agora/syncer/models"
)

// PostgresDB implements the Database interface on postgres.
type PostgresDB struct {
	*sql.DB
}

// NewPostgresDB creates a new database connection.
func NewPostgresDB(dbURL string) (*PostgresDB, error) {
	sqlDB, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{sqlDB}, nil
}

// InitDB creates the schema if it does not exist.
func (db *PostgresDB) InitDB(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error executing schema: %v", err)
	}
	return nil
}

// --- Sync cursors ---

func (db *PostgresDB) GetSyncCursor(ctx context.Context, contractName string) (*models.SyncCursor, error) {
	cursor := &models.SyncCursor{}
	query := `
		SELECT contract_name, last_synced_block, status, error_message, last_sync_at
		FROM sync_cursors
		WHERE contract_name = $1`

	err := db.QueryRowContext(ctx, query, contractName).Scan(
		&cursor.ContractName,
		&cursor.LastSyncedBlock,
		&cursor.Status,
		&cursor.ErrorMessage,
		&cursor.LastSyncAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying sync cursor: %v", err)
	}
	return cursor, nil
}

func (db *PostgresDB) ListSyncCursors(ctx context.Context) ([]*models.SyncCursor, error) {
	query := `
		SELECT contract_name, last_synced_block, status, error_message, last_sync_at
		FROM sync_cursors
		ORDER BY contract_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying sync cursors: %v", err)
	}
	defer rows.Close()

	var cursors []*models.SyncCursor
	for rows.Next() {
		cursor := &models.SyncCursor{}
		if err := rows.Scan(
			&cursor.ContractName,
			&cursor.LastSyncedBlock,
			&cursor.Status,
			&cursor.ErrorMessage,
			&cursor.LastSyncAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning sync cursor: %v", err)
		}
		cursors = append(cursors, cursor)
	}
	return cursors, rows.Err()
}

func (db *PostgresDB) AdvanceSyncCursor(ctx context.Context, contractName string, block uint64) error {
	query := `
		INSERT INTO sync_cursors (contract_name, last_synced_block, status, error_message, last_sync_at)
		VALUES ($1, $2, 'idle', '', NOW())
		ON CONFLICT (contract_name) DO UPDATE
		SET last_synced_block = $2, status = 'idle', error_message = '', last_sync_at = NOW()`

	if _, err := db.ExecContext(ctx, query, contractName, block); err != nil {
		return fmt.Errorf("error advancing sync cursor: %v", err)
	}
	return nil
}

func (db *PostgresDB) MarkCursorSyncing(ctx context.Context, contractName string) error {
	query := `
		INSERT INTO sync_cursors (contract_name, status)
		VALUES ($1, 'syncing')
		ON CONFLICT (contract_name) DO UPDATE SET status = 'syncing'`

	if _, err := db.ExecContext(ctx, query, contractName); err != nil {
		return fmt.Errorf("error marking cursor syncing: %v", err)
	}
	return nil
}

func (db *PostgresDB) MarkCursorError(ctx context.Context, contractName, message string) error {
	query := `
		INSERT INTO sync_cursors (contract_name, status, error_message)
		VALUES ($1, 'error', $2)
		ON CONFLICT (contract_name) DO UPDATE SET status = 'error', error_message = $2`

	if _, err := db.ExecContext(ctx, query, contractName, message); err != nil {
		return fmt.Errorf("error marking cursor error: %v", err)
	}
	return nil
}

// --- Agents ---

func (db *PostgresDB) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	query := `
		INSERT INTO agents (id, agent_id, name, wallet, metadata_uri, status, reputation, total_revenue, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := db.ExecContext(ctx, query,
		agent.ID,
		agent.AgentID,
		agent.Name,
		agent.Wallet,
		agent.MetadataURI,
		agent.Status,
		agent.Reputation,
		agent.TotalRevenue,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetAgentByAgentID(ctx context.Context, agentID uint64) (*models.Agent, error) {
	agent := &models.Agent{}
	query := `
		SELECT id, agent_id, name, wallet, metadata_uri, status, reputation,
		       tasks_completed, tasks_failed, total_revenue, shares_contract, share_price,
		       created_at, updated_at
		FROM agents
		WHERE agent_id = $1`

	err := db.QueryRowContext(ctx, query, agentID).Scan(
		&agent.ID,
		&agent.AgentID,
		&agent.Name,
		&agent.Wallet,
		&agent.MetadataURI,
		&agent.Status,
		&agent.Reputation,
		&agent.TasksCompleted,
		&agent.TasksFailed,
		&agent.TotalRevenue,
		&agent.SharesContract,
		&agent.SharePrice,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying agent: %v", err)
	}
	return agent, nil
}

func (db *PostgresDB) UpdateAgentStatus(ctx context.Context, agentID uint64, status models.AgentStatus) error {
	return db.updateAgentField(ctx, agentID, "status", string(status))
}

func (db *PostgresDB) UpdateAgentReputation(ctx context.Context, agentID uint64, score int64) error {
	return db.updateAgentField(ctx, agentID, "reputation", score)
}

func (db *PostgresDB) UpdateAgentWallet(ctx context.Context, agentID uint64, wallet string) error {
	return db.updateAgentField(ctx, agentID, "wallet", wallet)
}

func (db *PostgresDB) SetAgentSharesContract(ctx context.Context, agentID uint64, address string) error {
	return db.updateAgentField(ctx, agentID, "shares_contract", address)
}

func (db *PostgresDB) UpdateAgentSharePrice(ctx context.Context, agentID uint64, price string) error {
	return db.updateAgentField(ctx, agentID, "share_price", price)
}

func (db *PostgresDB) updateAgentField(ctx context.Context, agentID uint64, field string, value interface{}) error {
	query := fmt.Sprintf(`UPDATE agents SET %s = $1, updated_at = NOW() WHERE agent_id = $2`, field)

	result, err := db.ExecContext(ctx, query, value, agentID)
	if err != nil {
		return fmt.Errorf("error updating agent %s: %v", field, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) CreateReputationChange(ctx context.Context, change *models.ReputationChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	query := `
		INSERT INTO reputation_history (id, agent_id, old_score, new_score, reason, tx_hash, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		change.ID,
		change.AgentID,
		change.OldScore,
		change.NewScore,
		change.Reason,
		change.TxHash,
		change.BlockNumber,
		change.CreatedAt,
	)
	return err
}

func (db *PostgresDB) RecordAgentTask(ctx context.Context, agentID uint64, success bool, revenue string) error {
	query := `
		UPDATE agents
		SET tasks_completed = tasks_completed + CASE WHEN $1 THEN 1 ELSE 0 END,
		    tasks_failed = tasks_failed + CASE WHEN $1 THEN 0 ELSE 1 END,
		    total_revenue = total_revenue + $2::NUMERIC,
		    updated_at = NOW()
		WHERE agent_id = $3`

	result, err := db.ExecContext(ctx, query, success, revenue, agentID)
	if err != nil {
		return fmt.Errorf("error recording agent task: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) ListSharesContracts(ctx context.Context) (map[string]uint64, error) {
	query := `SELECT shares_contract, agent_id FROM agents WHERE shares_contract != ''`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying shares contracts: %v", err)
	}
	defer rows.Close()

	contracts := make(map[string]uint64)
	for rows.Next() {
		var address string
		var agentID uint64
		if err := rows.Scan(&address, &agentID); err != nil {
			return nil, fmt.Errorf("error scanning shares contract: %v", err)
		}
		contracts[address] = agentID
	}
	return contracts, rows.Err()
}

// --- Holdings and share flows ---

func (db *PostgresDB) GetHolding(ctx context.Context, agentID uint64, holder string) (*models.Holding, error) {
	holding := &models.Holding{}
	query := `
		SELECT id, agent_id, holder, shares, cost_basis, updated_at
		FROM agent_holdings
		WHERE agent_id = $1 AND holder = $2`

	err := db.QueryRowContext(ctx, query, agentID, holder).Scan(
		&holding.ID,
		&holding.AgentID,
		&holding.Holder,
		&holding.Shares,
		&holding.CostBasis,
		&holding.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying holding: %v", err)
	}
	return holding, nil
}

func (db *PostgresDB) UpsertHolding(ctx context.Context, holding *models.Holding) error {
	if holding.ID == "" {
		holding.ID = uuid.New().String()
	}
	query := `
		INSERT INTO agent_holdings (id, agent_id, holder, shares, cost_basis, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (agent_id, holder) DO UPDATE
		SET shares = $4, cost_basis = $5, updated_at = NOW()`

	if _, err := db.ExecContext(ctx, query,
		holding.ID,
		holding.AgentID,
		holding.Holder,
		holding.Shares,
		holding.CostBasis,
	); err != nil {
		return fmt.Errorf("error upserting holding: %v", err)
	}
	return nil
}

func (db *PostgresDB) CreateShareTransaction(ctx context.Context, txn *models.ShareTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	query := `
		INSERT INTO share_transactions (id, agent_id, trader, kind, shares, value, tx_hash, log_index, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := db.ExecContext(ctx, query,
		txn.ID,
		txn.AgentID,
		txn.Trader,
		txn.Kind,
		txn.Shares,
		txn.Value,
		txn.TxHash,
		txn.LogIndex,
		txn.BlockNumber,
		txn.CreatedAt,
	)
	return err
}

func (db *PostgresDB) CreateProfitDistribution(ctx context.Context, dist *models.ProfitDistribution) error {
	if dist.ID == "" {
		dist.ID = uuid.New().String()
	}
	query := `
		INSERT INTO profit_distributions (id, agent_id, total, agent_share, holder_share, tx_hash, log_index, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.ExecContext(ctx, query,
		dist.ID,
		dist.AgentID,
		dist.Total,
		dist.AgentShare,
		dist.HolderShare,
		dist.TxHash,
		dist.LogIndex,
		dist.BlockNumber,
		dist.CreatedAt,
	)
	return err
}

func (db *PostgresDB) CreateProfitClaim(ctx context.Context, claim *models.ProfitClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	query := `
		INSERT INTO profit_claims (id, agent_id, claimer, amount, tx_hash, log_index, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		claim.ID,
		claim.AgentID,
		claim.Claimer,
		claim.Amount,
		claim.TxHash,
		claim.LogIndex,
		claim.BlockNumber,
		claim.CreatedAt,
	)
	return err
}

// --- Tasks ---

func (db *PostgresDB) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	query := `
		INSERT INTO tasks (id, task_id, creator, description, reward, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		task.ID,
		task.TaskID,
		task.Creator,
		task.Description,
		task.Reward,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetTaskByTaskID(ctx context.Context, taskID uint64) (*models.Task, error) {
	task := &models.Task{}
	query := `
		SELECT id, task_id, creator, description, reward, status, winning_bid_id, created_at, updated_at
		FROM tasks
		WHERE task_id = $1`

	var winningBid sql.NullInt64
	err := db.QueryRowContext(ctx, query, taskID).Scan(
		&task.ID,
		&task.TaskID,
		&task.Creator,
		&task.Description,
		&task.Reward,
		&task.Status,
		&winningBid,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying task: %v", err)
	}
	if winningBid.Valid {
		id := uint64(winningBid.Int64)
		task.WinningBidID = &id
	}
	return task, nil
}

func (db *PostgresDB) UpdateTaskStatus(ctx context.Context, taskID uint64, status models.TaskStatus) error {
	query := `UPDATE tasks SET status = $1, updated_at = NOW() WHERE task_id = $2`

	result, err := db.ExecContext(ctx, query, status, taskID)
	if err != nil {
		return fmt.Errorf("error updating task status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) CreateBid(ctx context.Context, bid *models.Bid) error {
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	query := `
		INSERT INTO task_bids (id, task_id, bid_id, bidder, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		bid.ID,
		bid.TaskID,
		bid.BidID,
		bid.Bidder,
		bid.Amount,
		bid.Status,
		bid.CreatedAt,
		bid.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetBid(ctx context.Context, taskID, bidID uint64) (*models.Bid, error) {
	bid := &models.Bid{}
	query := `
		SELECT id, task_id, bid_id, bidder, amount, status, created_at, updated_at
		FROM task_bids
		WHERE task_id = $1 AND bid_id = $2`

	err := db.QueryRowContext(ctx, query, taskID, bidID).Scan(
		&bid.ID,
		&bid.TaskID,
		&bid.BidID,
		&bid.Bidder,
		&bid.Amount,
		&bid.Status,
		&bid.CreatedAt,
		&bid.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying bid: %v", err)
	}
	return bid, nil
}

func (db *PostgresDB) UpdateBidStatus(ctx context.Context, taskID, bidID uint64, status models.BidStatus) error {
	query := `UPDATE task_bids SET status = $1, updated_at = NOW() WHERE task_id = $2 AND bid_id = $3`

	result, err := db.ExecContext(ctx, query, status, taskID, bidID)
	if err != nil {
		return fmt.Errorf("error updating bid status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SelectWinningBid marks the winning bid, loses all other pending bids and
// assigns the task in a single transaction so concurrent readers never see
// a partial transition.
func (db *PostgresDB) SelectWinningBid(ctx context.Context, taskID, bidID uint64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE task_bids SET status = 'won', updated_at = NOW() WHERE task_id = $1 AND bid_id = $2`,
		taskID, bidID,
	); err != nil {
		return fmt.Errorf("error marking winning bid: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE task_bids SET status = 'lost', updated_at = NOW() WHERE task_id = $1 AND bid_id != $2 AND status = 'pending'`,
		taskID, bidID,
	); err != nil {
		return fmt.Errorf("error marking losing bids: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'assigned', winning_bid_id = $2, updated_at = NOW() WHERE task_id = $1`,
		taskID, bidID,
	); err != nil {
		return fmt.Errorf("error assigning task: %v", err)
	}

	return tx.Commit()
}

func (db *PostgresDB) ListBidsByTask(ctx context.Context, taskID uint64) ([]*models.Bid, error) {
	query := `
		SELECT id, task_id, bid_id, bidder, amount, status, created_at, updated_at
		FROM task_bids
		WHERE task_id = $1
		ORDER BY bid_id`

	rows, err := db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("error querying bids: %v", err)
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		bid := &models.Bid{}
		if err := rows.Scan(
			&bid.ID,
			&bid.TaskID,
			&bid.BidID,
			&bid.Bidder,
			&bid.Amount,
			&bid.Status,
			&bid.CreatedAt,
			&bid.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning bid: %v", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// --- Service requests and offers ---

func (db *PostgresDB) CreateServiceRequest(ctx context.Context, request *models.ServiceRequest) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	query := `
		INSERT INTO service_requests (id, request_id, consumer, spec, budget, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		request.ID,
		request.RequestID,
		request.Consumer,
		request.Spec,
		request.Budget,
		request.Status,
		request.CreatedAt,
		request.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetServiceRequestByRequestID(ctx context.Context, requestID uint64) (*models.ServiceRequest, error) {
	request := &models.ServiceRequest{}
	query := `
		SELECT id, request_id, consumer, spec, budget, status, accepted_offer_id, dispute_reason, created_at, updated_at
		FROM service_requests
		WHERE request_id = $1`

	var acceptedOffer sql.NullInt64
	err := db.QueryRowContext(ctx, query, requestID).Scan(
		&request.ID,
		&request.RequestID,
		&request.Consumer,
		&request.Spec,
		&request.Budget,
		&request.Status,
		&acceptedOffer,
		&request.DisputeReason,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying service request: %v", err)
	}
	if acceptedOffer.Valid {
		id := uint64(acceptedOffer.Int64)
		request.AcceptedOfferID = &id
	}
	return request, nil
}

func (db *PostgresDB) UpdateServiceRequestStatus(ctx context.Context, requestID uint64, status models.RequestStatus) error {
	query := `UPDATE service_requests SET status = $1, updated_at = NOW() WHERE request_id = $2`

	result, err := db.ExecContext(ctx, query, status, requestID)
	if err != nil {
		return fmt.Errorf("error updating request status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) MarkRequestDisputed(ctx context.Context, requestID uint64, reason string) error {
	query := `UPDATE service_requests SET status = 'disputed', dispute_reason = $1, updated_at = NOW() WHERE request_id = $2`

	result, err := db.ExecContext(ctx, query, reason, requestID)
	if err != nil {
		return fmt.Errorf("error marking request disputed: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) CreateServiceOffer(ctx context.Context, offer *models.ServiceOffer) error {
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	query := `
		INSERT INTO service_offers (id, request_id, offer_id, seller, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		offer.ID,
		offer.RequestID,
		offer.OfferID,
		offer.Seller,
		offer.Price,
		offer.Status,
		offer.CreatedAt,
		offer.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetServiceOffer(ctx context.Context, requestID, offerID uint64) (*models.ServiceOffer, error) {
	offer := &models.ServiceOffer{}
	query := `
		SELECT id, request_id, offer_id, seller, price, status, created_at, updated_at
		FROM service_offers
		WHERE request_id = $1 AND offer_id = $2`

	err := db.QueryRowContext(ctx, query, requestID, offerID).Scan(
		&offer.ID,
		&offer.RequestID,
		&offer.OfferID,
		&offer.Seller,
		&offer.Price,
		&offer.Status,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying service offer: %v", err)
	}
	return offer, nil
}

func (db *PostgresDB) UpdateServiceOfferStatus(ctx context.Context, requestID, offerID uint64, status models.OfferStatus) error {
	query := `UPDATE service_offers SET status = $1, updated_at = NOW() WHERE request_id = $2 AND offer_id = $3`

	result, err := db.ExecContext(ctx, query, status, requestID, offerID)
	if err != nil {
		return fmt.Errorf("error updating offer status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AcceptOffer accepts the winning offer, rejects all other pending offers
// and marks the request matched in a single transaction.
func (db *PostgresDB) AcceptOffer(ctx context.Context, requestID, offerID uint64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE service_offers SET status = 'accepted', updated_at = NOW() WHERE request_id = $1 AND offer_id = $2`,
		requestID, offerID,
	); err != nil {
		return fmt.Errorf("error accepting offer: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE service_offers SET status = 'rejected', updated_at = NOW() WHERE request_id = $1 AND offer_id != $2 AND status = 'pending'`,
		requestID, offerID,
	); err != nil {
		return fmt.Errorf("error rejecting other offers: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE service_requests SET status = 'matched', accepted_offer_id = $2, updated_at = NOW() WHERE request_id = $1`,
		requestID, offerID,
	); err != nil {
		return fmt.Errorf("error matching request: %v", err)
	}

	return tx.Commit()
}

func (db *PostgresDB) ListOffersByRequest(ctx context.Context, requestID uint64) ([]*models.ServiceOffer, error) {
	query := `
		SELECT id, request_id, offer_id, seller, price, status, created_at, updated_at
		FROM service_offers
		WHERE request_id = $1
		ORDER BY offer_id`

	rows, err := db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("error querying offers: %v", err)
	}
	defer rows.Close()

	var offers []*models.ServiceOffer
	for rows.Next() {
		offer := &models.ServiceOffer{}
		if err := rows.Scan(
			&offer.ID,
			&offer.RequestID,
			&offer.OfferID,
			&offer.Seller,
			&offer.Price,
			&offer.Status,
			&offer.CreatedAt,
			&offer.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning offer: %v", err)
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

// --- Partnerships ---

func (db *PostgresDB) CreateProposal(ctx context.Context, proposal *models.PartnershipProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.New().String()
	}
	query := `
		INSERT INTO partnership_proposals (id, proposal_id, initiator_id, target_id, split_bps, expires_at, status, counter_of, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var counterOf sql.NullInt64
	if proposal.CounterOf != nil {
		counterOf = sql.NullInt64{Int64: int64(*proposal.CounterOf), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		proposal.ID,
		proposal.ProposalID,
		proposal.InitiatorID,
		proposal.TargetID,
		proposal.SplitBps,
		proposal.ExpiresAt,
		proposal.Status,
		counterOf,
		proposal.CreatedAt,
		proposal.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetProposalByProposalID(ctx context.Context, proposalID uint64) (*models.PartnershipProposal, error) {
	proposal := &models.PartnershipProposal{}
	query := `
		SELECT id, proposal_id, initiator_id, target_id, split_bps, expires_at, status, counter_of, created_at, updated_at
		FROM partnership_proposals
		WHERE proposal_id = $1`

	var counterOf sql.NullInt64
	err := db.QueryRowContext(ctx, query, proposalID).Scan(
		&proposal.ID,
		&proposal.ProposalID,
		&proposal.InitiatorID,
		&proposal.TargetID,
		&proposal.SplitBps,
		&proposal.ExpiresAt,
		&proposal.Status,
		&counterOf,
		&proposal.CreatedAt,
		&proposal.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying proposal: %v", err)
	}
	if counterOf.Valid {
		id := uint64(counterOf.Int64)
		proposal.CounterOf = &id
	}
	return proposal, nil
}

func (db *PostgresDB) UpdateProposalStatus(ctx context.Context, proposalID uint64, status models.ProposalStatus) error {
	query := `UPDATE partnership_proposals SET status = $1, updated_at = NOW() WHERE proposal_id = $2`

	result, err := db.ExecContext(ctx, query, status, proposalID)
	if err != nil {
		return fmt.Errorf("error updating proposal status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) CreatePartnership(ctx context.Context, partnership *models.Partnership) error {
	if partnership.ID == "" {
		partnership.ID = uuid.New().String()
	}
	query := `
		INSERT INTO partnerships (id, partnership_id, agent_a, agent_b, split_bps, status, total_revenue, available_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := db.ExecContext(ctx, query,
		partnership.ID,
		partnership.PartnershipID,
		partnership.AgentA,
		partnership.AgentB,
		partnership.SplitBps,
		partnership.Status,
		partnership.TotalRevenue,
		partnership.AvailableBalance,
		partnership.CreatedAt,
		partnership.UpdatedAt,
	)
	return err
}

func (db *PostgresDB) GetPartnershipByPartnershipID(ctx context.Context, partnershipID uint64) (*models.Partnership, error) {
	partnership := &models.Partnership{}
	query := `
		SELECT id, partnership_id, agent_a, agent_b, split_bps, status, total_revenue, available_balance, created_at, updated_at
		FROM partnerships
		WHERE partnership_id = $1`

	err := db.QueryRowContext(ctx, query, partnershipID).Scan(
		&partnership.ID,
		&partnership.PartnershipID,
		&partnership.AgentA,
		&partnership.AgentB,
		&partnership.SplitBps,
		&partnership.Status,
		&partnership.TotalRevenue,
		&partnership.AvailableBalance,
		&partnership.CreatedAt,
		&partnership.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying partnership: %v", err)
	}
	return partnership, nil
}

func (db *PostgresDB) UpdatePartnershipStatus(ctx context.Context, partnershipID uint64, status models.PartnershipStatus) error {
	query := `UPDATE partnerships SET status = $1, updated_at = NOW() WHERE partnership_id = $2`

	result, err := db.ExecContext(ctx, query, status, partnershipID)
	if err != nil {
		return fmt.Errorf("error updating partnership status: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) AddPartnershipRevenue(ctx context.Context, partnershipID uint64, amount string) error {
	query := `
		UPDATE partnerships
		SET total_revenue = total_revenue + $1::NUMERIC,
		    available_balance = available_balance + $1::NUMERIC,
		    updated_at = NOW()
		WHERE partnership_id = $2`

	result, err := db.ExecContext(ctx, query, amount, partnershipID)
	if err != nil {
		return fmt.Errorf("error adding partnership revenue: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// WithdrawPartnershipFunds decrements the available balance, clamped at
// zero so replayed withdrawals can never drive it negative.
func (db *PostgresDB) WithdrawPartnershipFunds(ctx context.Context, partnershipID uint64, amount string) error {
	query := `
		UPDATE partnerships
		SET available_balance = GREATEST(available_balance - $1::NUMERIC, 0),
		    updated_at = NOW()
		WHERE partnership_id = $2`

	result, err := db.ExecContext(ctx, query, amount, partnershipID)
	if err != nil {
		return fmt.Errorf("error withdrawing partnership funds: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsLogProcessed reports whether a replay marker exists for one log.
func (db *PostgresDB) IsLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_logs WHERE tx_hash = $1 AND log_index = $2)`

	var exists bool
	if err := db.QueryRowContext(ctx, query, txHash, logIndex).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking processed log: %v", err)
	}
	return exists, nil
}

// MarkLogProcessed inserts a replay marker for one log. Returns false when
// the marker already exists, meaning the log's side effects were applied in
// an earlier pass.
func (db *PostgresDB) MarkLogProcessed(ctx context.Context, txHash string, logIndex uint) (bool, error) {
	query := `
		INSERT INTO processed_logs (tx_hash, log_index)
		VALUES ($1, $2)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`

	result, err := db.ExecContext(ctx, query, txHash, logIndex)
	if err != nil {
		return false, fmt.Errorf("error marking log processed: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %v", err)
	}
	return rows > 0, nil
}

// --- Economy feed ---

// CreateEconomyEvent appends a feed entry. A duplicate
// (tx_hash, block_number, type) insert is silently absorbed.
func (db *PostgresDB) CreateEconomyEvent(ctx context.Context, event *models.EconomyEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("error marshaling event metadata: %v", err)
		}
	}

	var amount sql.NullString
	if event.Amount != "" {
		amount = sql.NullString{String: event.Amount, Valid: true}
	}

	query := `
		INSERT INTO economy_events (id, type, description, participants, amount, tx_hash, block_number, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tx_hash, block_number, type) DO NOTHING`

	if _, err := db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Description,
		pq.Array(event.Participants),
		amount,
		event.TxHash,
		event.BlockNumber,
		metadata,
	); err != nil {
		return fmt.Errorf("error inserting economy event: %v", err)
	}
	return nil
}

func (db *PostgresDB) ListEconomyEvents(ctx context.Context, limit int) ([]*models.EconomyEvent, error) {
	query := `
		SELECT id, type, description, participants, COALESCE(amount::TEXT, ''), tx_hash, block_number, metadata, created_at
		FROM economy_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying economy events: %v", err)
	}
	defer rows.Close()

	var events []*models.EconomyEvent
	for rows.Next() {
		event := &models.EconomyEvent{}
		var metadata []byte
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.Description,
			pq.Array(&event.Participants),
			&event.Amount,
			&event.TxHash,
			&event.BlockNumber,
			&metadata,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning economy event: %v", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("error unmarshaling event metadata: %v", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// --- Balance cache ---

func (db *PostgresDB) ListTrackedAddresses(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT wallet FROM agents WHERE wallet != ''
		UNION
		SELECT DISTINCT address FROM balance_cache`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tracked addresses: %v", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("error scanning address: %v", err)
		}
		addresses = append(addresses, address)
	}
	return addresses, rows.Err()
}

func (db *PostgresDB) GetCachedBalance(ctx context.Context, address string) (string, error) {
	var balance string
	query := `SELECT balance FROM balance_cache WHERE address = $1`

	err := db.QueryRowContext(ctx, query, address).Scan(&balance)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error querying cached balance: %v", err)
	}
	return balance, nil
}

func (db *PostgresDB) UpsertCachedBalance(ctx context.Context, address, balance string) error {
	query := `
		INSERT INTO balance_cache (address, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET balance = $2, updated_at = NOW()`

	if _, err := db.ExecContext(ctx, query, address, balance); err != nil {
		return fmt.Errorf("error upserting cached balance: %v", err)
	}
	return nil
}
