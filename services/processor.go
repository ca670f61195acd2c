package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/logging"
)

// Processor turns raw logs from one contract into database writes. All
// implementations are idempotent: replaying a log range leaves the
// database in the same state it would reach from a single pass.
type Processor interface {
	// ContractName is the cursor name the processor's logs are tracked
	// under, e.g. "agent_registry".
	ContractName() string

	// ProcessLog applies one log. A missing referenced row (out-of-order
	// delivery) is logged and swallowed so the range can advance; only
	// malformed logs and infrastructure failures return an error.
	ProcessLog(ctx context.Context, vLog types.Log) error
}

// swallowDuplicate maps a unique-violation to success. Duplicate inserts
// mean the log was already applied.
func swallowDuplicate(err error) error {
	if db.IsDuplicate(err) {
		return nil
	}
	return err
}

// logSoftFail records an out-of-order log that references a row not yet
// observed. The log is dropped; a later replay of the range converges.
func logSoftFail(logger zerolog.Logger, vLog types.Log, event, detail string) {
	logger.Warn().
		Str("event", event).
		Str(logging.FieldTxHash, vLog.TxHash.Hex()).
		Uint64(logging.FieldBlock, vLog.BlockNumber).
		Msg(detail)
}

// topicToUint64 decodes an indexed uint256 topic. Identifiers in this
// system fit in 64 bits.
func topicToUint64(topic common.Hash) uint64 {
	return new(big.Int).SetBytes(topic.Bytes()).Uint64()
}

// topicToAddress decodes an indexed address topic.
func topicToAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}

// addressField asserts an unpacked data field to an address.
func addressField(v interface{}, name string) (string, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return "", errors.Errorf("invalid event data: %s is not an address", name)
	}
	return addr.Hex(), nil
}

// bigIntField asserts an unpacked data field to a big integer.
func bigIntField(v interface{}, name string) (*big.Int, error) {
	value, ok := v.(*big.Int)
	if !ok {
		return nil, errors.Errorf("invalid event data: %s is not an integer", name)
	}
	return value, nil
}

// stringField asserts an unpacked data field to a string.
func stringField(v interface{}, name string) (string, error) {
	value, ok := v.(string)
	if !ok {
		return "", errors.Errorf("invalid event data: %s is not a string", name)
	}
	return value, nil
}
