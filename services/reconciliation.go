package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/clients/evm"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
	"github.com/agora-hq/agora/syncer/utils"
)

// BalanceReader batches native balance reads. Satisfied by *evm.Client.
type BalanceReader interface {
	Balances(ctx context.Context, addresses []common.Address) ([]evm.BalanceResult, error)
}

// ReconciliationOptions tunes the balance reconciliation job.
type ReconciliationOptions struct {
	// MinInterval is the minimum gap between passes. Calls arriving
	// earlier are dropped.
	MinInterval time.Duration

	// AddressListInterval bounds how often the tracked address list is
	// re-read from the database. Listing is slower than reading cached
	// balances, so it runs on its own cadence.
	AddressListInterval time.Duration

	// Epsilon is the smallest absolute balance drift worth persisting.
	// Smaller drifts leave the cache untouched.
	Epsilon *big.Int
}

// ReconciliationService periodically compares cached balances against the
// ledger and rewrites entries that drifted more than epsilon. All reads go
// through one batched RPC round trip.
type ReconciliationService struct {
	chain   BalanceReader
	db      db.Database
	metrics *Metrics
	opts    ReconciliationOptions
	logger  zerolog.Logger

	mu           sync.Mutex
	addresses    []common.Address
	lastAddrLoad time.Time
	lastRun      time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReconciliationService builds the job. metrics may be nil.
func NewReconciliationService(chain BalanceReader, database db.Database, metrics *Metrics, opts ReconciliationOptions, logger zerolog.Logger) *ReconciliationService {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 10 * time.Minute
	}
	if opts.AddressListInterval <= 0 {
		opts.AddressListInterval = 30 * time.Minute
	}
	if opts.Epsilon == nil {
		opts.Epsilon = new(big.Int)
	}

	return &ReconciliationService{
		chain:   chain,
		db:      database,
		metrics: metrics,
		opts:    opts,
		logger:  logger.With().Str(logging.FieldModule, "reconciliation").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the reconciliation loop until Stop or context cancellation.
func (s *ReconciliationService) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.opts.MinInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.Reconcile(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Error().Err(err).Msg("Reconciliation pass failed")
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (s *ReconciliationService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Reconcile runs one pass. Calls inside the minimum interval since the
// previous pass are no-ops, so overlapping triggers cannot stampede the
// RPC endpoint.
func (s *ReconciliationService) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	if time.Since(s.lastRun) < s.opts.MinInterval && !s.lastRun.IsZero() {
		s.mu.Unlock()
		return nil
	}
	s.lastRun = time.Now()
	s.mu.Unlock()

	addresses, err := s.trackedAddresses(ctx)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return nil
	}

	results, err := s.chain.Balances(ctx, addresses)
	if err != nil {
		return errors.Wrap(err, "balance batch failed")
	}

	updated := 0
	for _, result := range results {
		if result.Err != nil {
			s.logger.Warn().
				Err(result.Err).
				Str("address", result.Address.Hex()).
				Msg("Balance read failed, keeping cached value")
			continue
		}

		changed, err := s.applyBalance(ctx, result.Address.Hex(), result.Balance)
		if err != nil {
			return err
		}
		if changed {
			updated++
		}
	}

	if s.metrics != nil {
		s.metrics.ReconciliationRun(updated)
	}
	s.logger.Info().
		Int("addresses", len(addresses)).
		Int("updated", updated).
		Msg("Reconciliation pass complete")
	return nil
}

// applyBalance writes the observed balance when it drifted more than
// epsilon from the cached value, or when no cached value exists yet.
func (s *ReconciliationService) applyBalance(ctx context.Context, address string, balance *big.Int) (bool, error) {
	cached, err := s.db.GetCachedBalance(ctx, address)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return false, errors.Wrap(err, "failed to read cached balance")
	}

	if err == nil {
		drift := utils.AbsDiff(utils.ParseBig(cached), balance)
		if drift.Cmp(s.opts.Epsilon) <= 0 {
			return false, nil
		}
	}

	if err := s.db.UpsertCachedBalance(ctx, address, balance.String()); err != nil {
		return false, errors.Wrap(err, "failed to cache balance")
	}
	return true, nil
}

// trackedAddresses returns the watch list, re-reading it from the
// database only when the cached copy is older than the configured
// interval.
func (s *ReconciliationService) trackedAddresses(ctx context.Context) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastAddrLoad) < s.opts.AddressListInterval && s.addresses != nil {
		return s.addresses, nil
	}

	raw, err := s.db.ListTrackedAddresses(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tracked addresses")
	}

	addresses := make([]common.Address, 0, len(raw))
	for _, address := range raw {
		addresses = append(addresses, common.HexToAddress(address))
	}
	s.addresses = addresses
	s.lastAddrLoad = time.Now()
	return addresses, nil
}
