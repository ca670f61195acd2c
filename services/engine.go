package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
)

// ChainReader is the ledger access the engine needs. Satisfied by
// *evm.Client; tests inject fakes.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// WatchedContract binds a cursor name to an address and its processor.
type WatchedContract struct {
	Name      string
	Address   common.Address
	Processor Processor
}

// EngineOptions tunes the sync loop.
type EngineOptions struct {
	GenesisBlock uint64
	ChunkSize    uint64
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// SyncEngine drives both historical backfill and live polling. Both paths
// run the same range synchronization: fetch a bounded chunk of logs,
// apply them in (block, log index) order, advance the cursor, repeat.
type SyncEngine struct {
	chain   ChainReader
	db      db.Database
	router  *Router
	metrics *Metrics
	static  []WatchedContract
	opts    EngineOptions
	logger  zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSyncEngine builds an engine. metrics may be nil.
func NewSyncEngine(chain ChainReader, database db.Database, router *Router, metrics *Metrics, opts EngineOptions, logger zerolog.Logger) *SyncEngine {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 5000
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Minute
	}

	return &SyncEngine{
		chain:   chain,
		db:      database,
		router:  router,
		metrics: metrics,
		opts:    opts,
		logger:  logger.With().Str(logging.FieldModule, "sync_engine").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// AddContract registers a statically watched contract with the engine and
// the router.
func (e *SyncEngine) AddContract(name string, address common.Address, processor Processor) {
	e.static = append(e.static, WatchedContract{Name: name, Address: address, Processor: processor})
	e.router.Register(address, processor)
}

// SetSharesProcessor registers the processor serving discovered share
// token contracts.
func (e *SyncEngine) SetSharesProcessor(processor Processor) {
	e.router.RegisterShares(processor)
}

// CatchUp backfills every watched contract to the current head. Static
// contracts are synchronized in parallel; share contracts follow, after a
// forced router refresh picks up any registered during the backfill. A
// failing contract is marked in its cursor and does not block the others;
// the live loop retries it from the stalled cursor.
func (e *SyncEngine) CatchUp(ctx context.Context) error {
	latest, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get chain head")
	}

	e.logger.Info().
		Uint64(logging.FieldBlock, latest).
		Int("contracts", len(e.static)).
		Msg("Starting catch-up")

	var (
		mu     sync.Mutex
		failed []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, contract := range e.static {
		contract := contract
		g.Go(func() error {
			if err := e.syncContract(gctx, contract, latest); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Error().Err(err).
					Str(logging.FieldContract, contract.Name).
					Msg("Contract backfill failed, continuing with the others")
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The registry backfill may have discovered new share contracts.
	if err := e.router.Refresh(ctx, true); err != nil {
		return err
	}
	for _, contract := range e.sharesContracts() {
		if err := e.syncContract(ctx, contract, latest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error().Err(err).
				Str(logging.FieldContract, contract.Name).
				Msg("Contract backfill failed, continuing with the others")
			failed = append(failed, err)
		}
	}

	if len(failed) > 0 {
		return errors.Wrapf(failed[0], "catch-up incomplete, %d contract(s) failed", len(failed))
	}
	e.logger.Info().Uint64(logging.FieldBlock, latest).Msg("Catch-up complete")
	return nil
}

// Start runs the live polling loop until Stop or context cancellation.
func (e *SyncEngine) Start(ctx context.Context) {
	go func() {
		defer close(e.done)

		// The first pass fires immediately so the gap between backfill
		// and live sync never exceeds one pass.
		timer := time.NewTimer(0)
		defer timer.Stop()

		interval := e.opts.PollInterval

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-timer.C:
				interval = e.opts.PollInterval
				if err := e.SyncOnce(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					e.logger.Error().Err(err).Msg("Sync pass failed, backing off")
					interval = e.opts.ErrorBackoff
				}
				timer.Reset(interval)
			}
		}
	}()
}

// Stop halts the live loop and waits for the in-flight pass to finish.
func (e *SyncEngine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// SyncOnce runs a single polling pass over all watched contracts. A
// failing contract stalls its own cursor; the rest of the pass proceeds.
func (e *SyncEngine) SyncOnce(ctx context.Context) error {
	latest, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get chain head")
	}

	if err := e.router.Refresh(ctx, false); err != nil {
		e.logger.Warn().Err(err).Msg("Router refresh failed, using stale share set")
	}

	var failed []error
	for _, contract := range e.static {
		if err := e.syncContract(ctx, contract, latest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error().Err(err).
				Str(logging.FieldContract, contract.Name).
				Msg("Contract sync failed, continuing with the others")
			failed = append(failed, err)
		}
	}
	for _, contract := range e.sharesContracts() {
		if err := e.syncContract(ctx, contract, latest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error().Err(err).
				Str(logging.FieldContract, contract.Name).
				Msg("Contract sync failed, continuing with the others")
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return errors.Wrapf(failed[0], "sync pass incomplete, %d contract(s) failed", len(failed))
	}
	return nil
}

// sharesContracts materializes the dynamic share token set as watched
// contracts, each with its own namespaced cursor.
func (e *SyncEngine) sharesContracts() []WatchedContract {
	processor := e.router.sharesProc
	if processor == nil {
		return nil
	}

	addresses := e.router.SharesAddresses()
	contracts := make([]WatchedContract, 0, len(addresses))
	for _, address := range addresses {
		contracts = append(contracts, WatchedContract{
			Name:      config.SharesCursorName(address.Hex()),
			Address:   address,
			Processor: processor,
		})
	}
	return contracts
}

// syncContract advances one contract's cursor to the target block.
func (e *SyncEngine) syncContract(ctx context.Context, contract WatchedContract, target uint64) error {
	from, err := e.startBlock(ctx, contract.Name)
	if err != nil {
		return err
	}
	if from > target {
		return nil
	}

	if err := e.db.MarkCursorSyncing(ctx, contract.Name); err != nil {
		return err
	}

	if err := e.syncRange(ctx, contract, from, target); err != nil {
		if markErr := e.db.MarkCursorError(ctx, contract.Name, err.Error()); markErr != nil {
			e.logger.Error().Err(markErr).
				Str(logging.FieldContract, contract.Name).
				Msg("Failed to record cursor error")
		}
		return errors.Wrapf(err, "sync failed for %s", contract.Name)
	}
	return nil
}

// syncRange applies logs in bounded chunks, advancing the cursor only
// after every log in a chunk has been applied. A crash mid-chunk replays
// that chunk; processors are idempotent so the replay converges.
func (e *SyncEngine) syncRange(ctx context.Context, contract WatchedContract, from, to uint64) error {
	for start := from; start <= to; start += e.opts.ChunkSize {
		end := start + e.opts.ChunkSize - 1
		if end > to {
			end = to
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{contract.Address},
		}

		logs, err := e.chain.FilterLogs(ctx, query)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch logs for blocks %d-%d", start, end)
		}

		for _, vLog := range logs {
			if err := contract.Processor.ProcessLog(ctx, vLog); err != nil {
				if e.metrics != nil {
					e.metrics.ProcessingError(contract.Name)
				}
				return errors.Wrapf(err, "failed to process log at block %d index %d",
					vLog.BlockNumber, vLog.Index)
			}
			if e.metrics != nil {
				e.metrics.LogProcessed(contract.Name)
			}
		}

		if err := e.db.AdvanceSyncCursor(ctx, contract.Name, end); err != nil {
			return errors.Wrap(err, "failed to advance cursor")
		}
		if e.metrics != nil {
			e.metrics.SetCursorBlock(contract.Name, end)
		}

		if len(logs) > 0 {
			e.logger.Debug().
				Str(logging.FieldContract, contract.Name).
				Uint64("from", start).
				Uint64("to", end).
				Int("logs", len(logs)).
				Msg("Chunk applied")
		}
	}
	return nil
}

// startBlock returns the first unsynchronized block for a cursor. A
// cursor that has never synced starts at the genesis block.
func (e *SyncEngine) startBlock(ctx context.Context, name string) (uint64, error) {
	cursor, err := e.db.GetSyncCursor(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return e.opts.GenesisBlock, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to load sync cursor")
	}
	if cursor.LastSyncedBlock == 0 || cursor.LastSyncedBlock < e.opts.GenesisBlock {
		// cursor row exists but has never advanced
		return e.opts.GenesisBlock, nil
	}
	return cursor.LastSyncedBlock + 1, nil
}
