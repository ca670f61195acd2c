package services

import (
	"context"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/clients/evm"
	"github.com/agora-hq/agora/syncer/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func mustParseABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	require.NoError(t, err)
	return parsed
}

// uintTopic encodes a uint256 identifier as an indexed topic.
func uintTopic(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

// addrTopic encodes an address as an indexed topic.
func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

// packEventData packs the non-indexed arguments of an event.
func packEventData(t *testing.T, contractABI abi.ABI, event string, args ...interface{}) []byte {
	t.Helper()
	data, err := contractABI.Events[event].Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return data
}

// makeLog assembles a log with deterministic position metadata.
func makeLog(contractABI abi.ABI, event string, address common.Address, block uint64, index uint, txHash common.Hash, data []byte, indexed ...common.Hash) types.Log {
	topics := append([]common.Hash{contractABI.Events[event].ID}, indexed...)
	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      txHash,
	}
}

// testAgent builds a minimal registered agent row.
func testAgent(agentID uint64) *models.Agent {
	return &models.Agent{
		AgentID:      agentID,
		Name:         "worker-agent",
		Wallet:       common.BigToAddress(new(big.Int).SetUint64(agentID)).Hex(),
		Status:       models.AgentStatusActive,
		Reputation:   models.InitialReputation,
		TotalRevenue: "0",
	}
}

// fakeChain serves canned logs keyed by address, restricted to the
// queried block range. It records every range it was asked for.
type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	logs    map[common.Address][]types.Log
	queries []ethereum.FilterQuery
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head: head,
		logs: make(map[common.Address][]types.Log),
	}
}

func (f *fakeChain) addLog(vLog types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[vLog.Address] = append(f.logs[vLog.Address], vLog)
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()

	var matched []types.Log
	for _, address := range q.Addresses {
		for _, vLog := range f.logs[address] {
			if vLog.BlockNumber >= from && vLog.BlockNumber <= to {
				matched = append(matched, vLog)
			}
		}
	}
	return matched, nil
}

// fakePriceReader returns one fixed price for every currentPrice call.
type fakePriceReader struct {
	price *big.Int
	calls int
}

func (f *fakePriceReader) BatchCall(ctx context.Context, calls []evm.Call) ([]evm.CallResult, error) {
	f.calls++
	results := make([]evm.CallResult, len(calls))
	for i := range calls {
		results[i] = evm.CallResult{Output: common.LeftPadBytes(f.price.Bytes(), 32)}
	}
	return results, nil
}

// fakeBalanceReader returns fixed balances per address.
type fakeBalanceReader struct {
	balances map[common.Address]*big.Int
	calls    int
}

func (f *fakeBalanceReader) Balances(ctx context.Context, addresses []common.Address) ([]evm.BalanceResult, error) {
	f.calls++
	results := make([]evm.BalanceResult, len(addresses))
	for i, addr := range addresses {
		balance, ok := f.balances[addr]
		if !ok {
			balance = new(big.Int)
		}
		results[i] = evm.BalanceResult{Address: addr, Balance: new(big.Int).Set(balance)}
	}
	return results, nil
}
