package services

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
)

// Router dispatches logs to processors by emitting address. Static
// contracts are registered at startup; share token contracts are
// discovered from the database, where the registry processor records them
// as SharesDeployed events arrive.
//
// The dynamic set is re-read on an explicit minimum interval rather than
// probabilistically, so discovery latency is bounded and deterministic.
type Router struct {
	mu          sync.RWMutex
	static      map[common.Address]Processor
	shares      map[common.Address]uint64 // share contract -> agent id
	sharesProc  Processor
	db          db.Database
	minInterval time.Duration
	lastRefresh time.Time
	logger      zerolog.Logger
}

// NewRouter builds a router that refreshes the dynamic contract set at
// most once per minInterval.
func NewRouter(database db.Database, minInterval time.Duration, logger zerolog.Logger) *Router {
	return &Router{
		static:      make(map[common.Address]Processor),
		shares:      make(map[common.Address]uint64),
		db:          database,
		minInterval: minInterval,
		logger:      logger.With().Str(logging.FieldModule, "router").Logger(),
	}
}

// Register binds a static contract address to its processor.
func (r *Router) Register(address common.Address, processor Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static[address] = processor
}

// RegisterShares sets the processor serving every discovered share token
// contract.
func (r *Router) RegisterShares(processor Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sharesProc = processor
}

// Refresh re-reads the share contract set from the database. Calls inside
// the minimum interval are no-ops; pass force to bypass the throttle.
func (r *Router) Refresh(ctx context.Context, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && time.Since(r.lastRefresh) < r.minInterval {
		return nil
	}

	contracts, err := r.db.ListSharesContracts(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list share contracts")
	}

	shares := make(map[common.Address]uint64, len(contracts))
	for address, agentID := range contracts {
		shares[common.HexToAddress(address)] = agentID
	}

	if len(shares) != len(r.shares) {
		r.logger.Info().
			Int("count", len(shares)).
			Msg("Share contract set updated")
	}

	r.shares = shares
	r.lastRefresh = time.Now()
	return nil
}

// SharesAddresses returns the currently known share token contracts.
func (r *Router) SharesAddresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addresses := make([]common.Address, 0, len(r.shares))
	for address := range r.shares {
		addresses = append(addresses, address)
	}
	return addresses
}

// Resolve maps an address to its processor. An unknown address triggers a
// throttled refresh of the dynamic set before giving up.
func (r *Router) Resolve(ctx context.Context, address common.Address) (Processor, bool) {
	r.mu.RLock()
	if p, ok := r.static[address]; ok {
		r.mu.RUnlock()
		return p, true
	}
	if _, ok := r.shares[address]; ok {
		p := r.sharesProc
		r.mu.RUnlock()
		return p, p != nil
	}
	r.mu.RUnlock()

	// Unknown address: the share set may be stale.
	if err := r.Refresh(ctx, false); err != nil {
		r.logger.Warn().Err(err).Msg("Router refresh failed")
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.shares[address]; ok && r.sharesProc != nil {
		return r.sharesProc, true
	}
	return nil, false
}

// Route dispatches one log. Logs from addresses nobody watches are
// dropped with a debug line.
func (r *Router) Route(ctx context.Context, vLog types.Log) error {
	processor, ok := r.Resolve(ctx, vLog.Address)
	if !ok {
		r.logger.Debug().
			Str(logging.FieldContract, vLog.Address.Hex()).
			Msg("No processor for address, dropping log")
		return nil
	}
	return processor.ProcessLog(ctx, vLog)
}
