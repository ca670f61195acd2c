package evm

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/logging"
)

const (
	// DefaultMaxBlockRange bounds a single getLogs query. Callers chunk;
	// the client rejects wider ranges instead of splitting them itself.
	DefaultMaxBlockRange = uint64(5000)

	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond

	dialTimeout = 10 * time.Second
)

// Options tunes retry and range limits for a Client.
type Options struct {
	MaxBlockRange  uint64
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Client wraps an EVM RPC endpoint with bounded log queries, batched reads
// and linear-backoff retries for transient failures.
type Client struct {
	eth            *ethclient.Client
	rpc            *rpc.Client
	maxBlockRange  uint64
	maxRetries     int
	retryBaseDelay time.Duration
	logger         zerolog.Logger
}

// Dial connects to the RPC endpoint and verifies it responds.
func Dial(ctx context.Context, rpcURL string, opts Options, logger zerolog.Logger) (*Client, error) {
	logger = logger.With().Str(logging.FieldModule, "evm_client").Logger()

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RPC endpoint")
	}

	client := NewClient(ethclient.NewClient(rpcClient), rpcClient, opts, logger)

	// verify that the endpoint works
	verifyCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	bn, err := client.BlockNumber(verifyCtx)
	if err != nil {
		rpcClient.Close()
		return nil, errors.Wrap(err, "failed to get block number")
	}

	logger.Info().
		Uint64(logging.FieldBlock, bn).
		Msg("Successfully connected to EVM endpoint")

	return client, nil
}

// NewClient builds a Client from existing connections. Used by Dial and by
// tests that inject fakes.
func NewClient(eth *ethclient.Client, rpcClient *rpc.Client, opts Options, logger zerolog.Logger) *Client {
	if opts.MaxBlockRange == 0 {
		opts.MaxBlockRange = DefaultMaxBlockRange
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}

	return &Client{
		eth:            eth,
		rpc:            rpcClient,
		maxBlockRange:  opts.MaxBlockRange,
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
		logger:         logger,
	}
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// MaxBlockRange returns the widest log range a single query may cover.
func (c *Client) MaxBlockRange() uint64 {
	return c.maxBlockRange
}

// BlockNumber returns the latest confirmed block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var bn uint64
	err := c.withRetry(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		bn, err = c.eth.BlockNumber(ctx)
		return err
	})
	return bn, err
}

// FilterLogs fetches logs for the query, ordered by (block number, log
// index). Ranges wider than MaxBlockRange are rejected.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if q.FromBlock != nil && q.ToBlock != nil {
		from := q.FromBlock.Uint64()
		to := q.ToBlock.Uint64()
		if to < from {
			return nil, errors.Errorf("invalid block range: %d-%d", from, to)
		}
		if to-from+1 > c.maxBlockRange {
			return nil, errors.Errorf(
				"block range %d-%d exceeds maximum of %d blocks", from, to, c.maxBlockRange)
		}
	}

	var logs []types.Log
	err := c.withRetry(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	return logs, nil
}

// Call is one read bundled into a batch round trip.
type Call struct {
	To   common.Address
	Data []byte
}

// CallResult holds one batched read outcome. A failing entry carries its
// own error and does not fail the batch.
type CallResult struct {
	Output []byte
	Err    error
}

// BatchCall executes all reads in a single RPC round trip. Only a transport
// failure of the whole batch returns an error; per-call failures are
// reported in the results.
func (c *Client) BatchCall(ctx context.Context, calls []Call) ([]CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	batch := make([]rpc.BatchElem, len(calls))
	outputs := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   call.To,
					"data": hexutil.Bytes(call.Data),
				},
				"latest",
			},
			Result: &outputs[i],
		}
	}

	err := c.withRetry(ctx, "eth_call batch", func(ctx context.Context) error {
		return c.rpc.BatchCallContext(ctx, batch)
	})
	if err != nil {
		return nil, errors.Wrap(err, "batch call failed")
	}

	results := make([]CallResult, len(calls))
	for i := range batch {
		results[i] = CallResult{Output: outputs[i], Err: batch[i].Error}
	}
	return results, nil
}

// BalanceResult holds one batched balance read outcome.
type BalanceResult struct {
	Address common.Address
	Balance *big.Int
	Err     error
}

// Balances fetches native balances for all addresses in one batch round
// trip. Per-address failures are reported in the results.
func (c *Client) Balances(ctx context.Context, addresses []common.Address) ([]BalanceResult, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	batch := make([]rpc.BatchElem, len(addresses))
	outputs := make([]hexutil.Big, len(addresses))
	for i, addr := range addresses {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBalance",
			Args:   []interface{}{addr, "latest"},
			Result: &outputs[i],
		}
	}

	err := c.withRetry(ctx, "eth_getBalance batch", func(ctx context.Context) error {
		return c.rpc.BatchCallContext(ctx, batch)
	})
	if err != nil {
		return nil, errors.Wrap(err, "balance batch failed")
	}

	results := make([]BalanceResult, len(addresses))
	for i, addr := range addresses {
		results[i] = BalanceResult{Address: addr, Err: batch[i].Error}
		if batch[i].Error == nil {
			results[i].Balance = outputs[i].ToInt()
		}
	}
	return results, nil
}

// withRetry runs fn up to maxRetries+1 times with linear backoff
// (delay = base * attempt). Context cancellation stops retrying.
func (c *Client) withRetry(ctx context.Context, label string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > c.maxRetries {
			break
		}

		delay := c.retryBaseDelay * time.Duration(attempt)
		c.logger.Warn().
			Err(lastErr).
			Str("call", label).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Transient RPC failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Wrapf(lastErr, "%s failed after %d attempts", label, c.maxRetries+1)
}
