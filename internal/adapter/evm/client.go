package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotConnected is returned by every call made before Connect succeeded or
// after Close.
var ErrNotConnected = errors.New("evm: not connected")

// Client is a reconnectable JSON-RPC client shared by the chain readers,
// writers and the transaction sender of one chain.
type Client struct {
	cfg    *RPCConfig
	logger *slog.Logger

	mu      sync.RWMutex
	client  *ethclient.Client
	chainID *big.Int
}

func NewClient(cfg *RPCConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "evm-client", "url", cfg.URL),
	}
}

// Connect dials the endpoint and verifies it by reading the chain id,
// retrying with exponential backoff up to cfg.MaxRetries times.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("connecting to RPC")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++

		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		rpcClient, err := rpc.DialContext(dialCtx, c.cfg.URL)
		if err != nil {
			c.logger.Warn("connection failed", "error", err, "attempt", attempt)
			return err
		}

		client := ethclient.NewClient(rpcClient)
		chainID, err := client.ChainID(dialCtx)
		if err != nil {
			c.logger.Warn("chain ID check failed", "error", err, "attempt", attempt)
			client.Close()
			return err
		}

		c.client = client
		c.chainID = chainID
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		return fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
	}

	c.logger.Info("connected successfully", "chain_id", c.chainID)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

func (c *Client) eth() (*ethclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// ChainID returns the id read during Connect.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	client, err := c.eth()
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.HeaderByNumber(ctx, number)
}

func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.FilterLogs(ctx, query)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, blockNumber)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.eth()
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	client, err := c.eth()
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := c.eth()
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}
