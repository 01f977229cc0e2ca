// Package txsender signs and submits proxy transactions and waits for their
// receipts.
package txsender

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrReverted is returned when the transaction was mined with a failed
	// status.
	ErrReverted = errors.New("txsender: transaction reverted")
	// ErrReceiptTimeout is returned when no receipt shows up within
	// Config.ReceiptTimeout.
	ErrReceiptTimeout = errors.New("txsender: receipt timeout")
)

// Sender submits one transaction calling to with data and returns its
// receipt.
type Sender interface {
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// Backend is the subset of evm.Client the sender uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	// GasMultiplier pads the estimate, in percent. 0 means 120.
	GasMultiplier  uint64
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// EthSender signs EIP-1559 transactions with a single key. Nonces are handed
// out under a mutex so concurrent requests of one run never collide.
type EthSender struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	cfg     Config
	logger  *slog.Logger

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool
}

func New(backend Backend, key *ecdsa.PrivateKey, cfg Config, logger *slog.Logger) *EthSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GasMultiplier == 0 {
		cfg.GasMultiplier = 120
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 5 * time.Minute
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &EthSender{
		backend: backend,
		key:     key,
		from:    from,
		cfg:     cfg,
		logger:  logger.With("component", "tx-sender", "from", from.Hex()),
	}
}

// NewFromHex parses a hex encoded private key, with or without 0x prefix.
func NewFromHex(backend Backend, hexKey string, cfg Config, logger *slog.Logger) (*EthSender, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(backend, key, cfg, logger), nil
}

// From returns the signing address.
func (s *EthSender) From() common.Address {
	return s.from
}

func (s *EthSender) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	tx, err := s.submit(ctx, to, data)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction submitted", "tx_hash", tx.Hash().Hex(), "to", to.Hex(), "nonce", tx.Nonce())

	receipt, err := s.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}

	s.logger.Info("transaction mined",
		"tx_hash", tx.Hash().Hex(),
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
	)
	return receipt, nil
}

func (s *EthSender) submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * s.cfg.GasMultiplier / 100

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee(head), big.NewInt(2)))

	// The nonce is held until the node accepted the transaction so a failed
	// submission does not leave a gap.
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.nonceInit {
		n, err := s.backend.PendingNonceAt(ctx, s.from)
		if err != nil {
			return nil, fmt.Errorf("pending nonce: %w", err)
		}
		s.nonce = n
		s.nonceInit = true
	}

	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     s.nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		// Resync from the node next time.
		s.nonceInit = false
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	s.nonce++
	return tx, nil
}

func (s *EthSender) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.Warn("receipt lookup failed", "tx_hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func baseFee(head *types.Header) *big.Int {
	if head == nil || head.BaseFee == nil {
		return big.NewInt(0)
	}
	return head.BaseFee
}
