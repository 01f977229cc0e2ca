package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/marko911/arbitration-relayer/internal/config"
	"github.com/marko911/arbitration-relayer/internal/txsender"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chainBackend only answers ChainID; newSenders never sends.
type chainBackend struct {
	txsender.Backend
	id  int64
	err error
}

func (b *chainBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	return big.NewInt(b.id), nil
}

func TestNewSenders_SharesSenderOnSameChain(t *testing.T) {
	home, foreign, err := newSenders(context.Background(),
		&chainBackend{id: 100}, &chainBackend{id: 100}, testKey, txsender.Config{}, testLogger())
	if err != nil {
		t.Fatalf("newSenders() error = %v", err)
	}
	if home != foreign {
		t.Error("expected one sender for both proxies on the same chain")
	}
}

func TestNewSenders_SeparateChains(t *testing.T) {
	home, foreign, err := newSenders(context.Background(),
		&chainBackend{id: 100}, &chainBackend{id: 200}, "0x"+testKey, txsender.Config{}, testLogger())
	if err != nil {
		t.Fatalf("newSenders() error = %v", err)
	}
	if home == foreign {
		t.Error("expected a sender per chain")
	}
	if home.From() != foreign.From() {
		t.Errorf("senders sign with different keys: %s vs %s", home.From().Hex(), foreign.From().Hex())
	}
}

func TestNewSenders_Errors(t *testing.T) {
	errDown := errors.New("rpc down")
	if _, _, err := newSenders(context.Background(),
		&chainBackend{id: 100}, &chainBackend{err: errDown}, testKey, txsender.Config{}, testLogger()); !errors.Is(err, errDown) {
		t.Errorf("newSenders() error = %v, want rpc down", err)
	}
	if _, _, err := newSenders(context.Background(),
		&chainBackend{id: 1}, &chainBackend{id: 2}, "not-a-key", txsender.Config{}, testLogger()); err == nil {
		t.Error("expected an error for a malformed key")
	}
}

func TestPostgresConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Postgres.Host = "db.internal"
	cfg.Postgres.MaxConns = 25

	got := postgresConfig(cfg, "secret")
	if got.Host != "db.internal" || got.Password != "secret" || got.MaxConns != 25 {
		t.Errorf("postgresConfig() = %+v", got)
	}
	if got.MinConns == 0 {
		t.Error("pool defaults were not kept")
	}
}
