// Package proxy holds the contract plumbing shared by the home and foreign
// arbitration proxy readers and writers.
package proxy

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultMaxBlockRange is used when Config.MaxBlockRange is zero.
const DefaultMaxBlockRange = 5000

// Backend is the read side of evm.Client.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Config locates a proxy contract.
type Config struct {
	Address common.Address
	// StartBlock is the deployment block; scans never look earlier.
	StartBlock    uint64
	MaxBlockRange uint64
}

// Contract binds an ABI to a deployed address.
type Contract struct {
	ABI     abi.ABI
	Address common.Address
	backend Backend
	chunk   uint64
}

// MustParseABI parses a JSON ABI known at compile time.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("proxy: invalid ABI: %v", err))
	}
	return parsed
}

func NewContract(parsed abi.ABI, address common.Address, backend Backend, maxBlockRange uint64) *Contract {
	if maxBlockRange == 0 {
		maxBlockRange = DefaultMaxBlockRange
	}
	return &Contract{ABI: parsed, Address: address, backend: backend, chunk: maxBlockRange}
}

// Call runs a view method at the latest block and returns its decoded
// outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := c.ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Pack encodes calldata for method.
func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// EventID returns topic 0 of the named event.
func (c *Contract) EventID(event string) common.Hash {
	return c.ABI.Events[event].ID
}

// FilterLogs returns logs of event emitted by the contract in
// [fromBlock, toBlock], querying at most the configured block range per
// request. extra restricts the indexed topics after the signature.
func (c *Contract) FilterLogs(ctx context.Context, event string, fromBlock, toBlock uint64, extra ...[]common.Hash) ([]types.Log, error) {
	if _, ok := c.ABI.Events[event]; !ok {
		return nil, fmt.Errorf("unknown event %s", event)
	}

	topics := append([][]common.Hash{{c.EventID(event)}}, extra...)

	var logs []types.Log
	for start := fromBlock; start <= toBlock; start += c.chunk {
		end := start + c.chunk - 1
		if end > toBlock || end < start {
			end = toBlock
		}

		chunk, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.Address},
			Topics:    topics,
		})
		if err != nil {
			return nil, fmt.Errorf("filter %s logs %d-%d: %w", event, start, end, err)
		}
		for _, l := range chunk {
			if !l.Removed {
				logs = append(logs, l)
			}
		}

		if end == toBlock {
			break
		}
	}
	return logs, nil
}

// UnpackEvent decodes the non-indexed fields of log.
func (c *Contract) UnpackEvent(event string, log types.Log) ([]interface{}, error) {
	out, err := c.ABI.Unpack(event, log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event, err)
	}
	return out, nil
}

// ChainID reads the chain id from the backend as a uint64.
func ChainID(ctx context.Context, backend Backend) (uint64, error) {
	id, err := backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain id: %w", err)
	}
	return id.Uint64(), nil
}
