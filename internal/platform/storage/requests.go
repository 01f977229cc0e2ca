package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// ErrRequestNotFound is returned by Update when no row matches the request
// identity.
var ErrRequestNotFound = errors.New("storage: request not found")

const requestColumns = `
	chain_id, question_id, discriminator, side, status,
	requester, contested_answer, arbitrator_answer,
	max_previous, deposit, dispute_id, ruling,
	block_number, tx_hash, created_at, updated_at
`

// RequestRepository stores arbitration requests keyed by
// (chain_id, question_id, discriminator).
type RequestRepository struct {
	db *DB
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) FetchByChainID(ctx context.Context, chainID uint64) ([]protov1.Request, error) {
	sql := `SELECT ` + requestColumns + `
		FROM arbitration_requests
		WHERE chain_id = $1
		ORDER BY block_number, question_id, discriminator`

	rows, err := r.db.pool.Query(ctx, sql, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	return collectRequests(rows)
}

func (r *RequestRepository) FetchByChainIDAndStatus(ctx context.Context, chainID uint64, status protov1.Status) ([]protov1.Request, error) {
	sql := `SELECT ` + requestColumns + `
		FROM arbitration_requests
		WHERE chain_id = $1 AND status = $2
		ORDER BY block_number, question_id, discriminator`

	rows, err := r.db.pool.Query(ctx, sql, int64(chainID), int16(status))
	if err != nil {
		return nil, fmt.Errorf("query requests by status: %w", err)
	}
	return collectRequests(rows)
}

// Save upserts every request in one transaction. created_at is kept from the
// first insert.
func (r *RequestRepository) Save(ctx context.Context, requests []protov1.Request) error {
	if len(requests) == 0 {
		return nil
	}

	sql := `
		INSERT INTO arbitration_requests (
			chain_id, question_id, discriminator, side, status,
			requester, contested_answer, arbitrator_answer,
			max_previous, deposit, dispute_id, ruling,
			block_number, tx_hash
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14
		)
		ON CONFLICT (chain_id, question_id, discriminator) DO UPDATE SET
			side = EXCLUDED.side,
			status = EXCLUDED.status,
			requester = EXCLUDED.requester,
			contested_answer = EXCLUDED.contested_answer,
			arbitrator_answer = EXCLUDED.arbitrator_answer,
			max_previous = EXCLUDED.max_previous,
			deposit = EXCLUDED.deposit,
			dispute_id = EXCLUDED.dispute_id,
			ruling = EXCLUDED.ruling,
			block_number = EXCLUDED.block_number,
			tx_hash = EXCLUDED.tx_hash,
			updated_at = NOW()
	`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, req := range requests {
			rec := RequestRecordFromProto(req)
			_, err := tx.Exec(ctx, sql,
				rec.ChainID, rec.QuestionID, rec.Discriminator, rec.Side, rec.Status,
				rec.Requester, rec.ContestedAnswer, rec.ArbitratorAnswer,
				rec.MaxPrevious, rec.Deposit, rec.DisputeID, rec.Ruling,
				rec.BlockNumber, rec.TxHash,
			)
			if err != nil {
				return fmt.Errorf("upsert request %s: %w", req.Key(), err)
			}
		}
		return nil
	})
}

// Update overwrites the stored snapshot of an existing request.
func (r *RequestRepository) Update(ctx context.Context, req protov1.Request) error {
	sql := `
		UPDATE arbitration_requests SET
			side = $4,
			status = $5,
			requester = $6,
			contested_answer = $7,
			arbitrator_answer = $8,
			max_previous = $9,
			deposit = $10,
			dispute_id = $11,
			ruling = $12,
			block_number = $13,
			tx_hash = $14,
			updated_at = NOW()
		WHERE chain_id = $1 AND question_id = $2 AND discriminator = $3
	`

	rec := RequestRecordFromProto(req)
	tag, err := r.db.pool.Exec(ctx, sql,
		rec.ChainID, rec.QuestionID, rec.Discriminator, rec.Side, rec.Status,
		rec.Requester, rec.ContestedAnswer, rec.ArbitratorAnswer,
		rec.MaxPrevious, rec.Deposit, rec.DisputeID, rec.Ruling,
		rec.BlockNumber, rec.TxHash,
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", req.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, req.Key())
	}
	return nil
}

// Remove deletes the request. Removing an absent request is not an error.
func (r *RequestRepository) Remove(ctx context.Context, req protov1.Request) error {
	sql := `DELETE FROM arbitration_requests WHERE chain_id = $1 AND question_id = $2 AND discriminator = $3`

	if _, err := r.db.pool.Exec(ctx, sql, int64(req.ChainID), req.QuestionID.Hex(), req.Discriminator()); err != nil {
		return fmt.Errorf("delete request %s: %w", req.Key(), err)
	}
	return nil
}

// CountByStatus returns the number of stored requests per status for a chain.
func (r *RequestRepository) CountByStatus(ctx context.Context, chainID uint64) (map[protov1.Status]int64, error) {
	sql := `SELECT status, COUNT(*) FROM arbitration_requests WHERE chain_id = $1 GROUP BY status`

	rows, err := r.db.pool.Query(ctx, sql, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[protov1.Status]int64)
	for rows.Next() {
		var status int16
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[protov1.Status(status)] = n
	}
	return counts, rows.Err()
}

func collectRequests(rows pgx.Rows) ([]protov1.Request, error) {
	defer rows.Close()

	var out []protov1.Request
	for rows.Next() {
		var rec RequestRecord
		err := rows.Scan(
			&rec.ChainID, &rec.QuestionID, &rec.Discriminator, &rec.Side, &rec.Status,
			&rec.Requester, &rec.ContestedAnswer, &rec.ArbitratorAnswer,
			&rec.MaxPrevious, &rec.Deposit, &rec.DisputeID, &rec.Ruling,
			&rec.BlockNumber, &rec.TxHash, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}

		req, err := rec.ToProto()
		if err != nil {
			return nil, fmt.Errorf("decode request %d/%s: %w", rec.ChainID, rec.QuestionID, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}
