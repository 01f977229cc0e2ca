package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marko911/arbitration-relayer/internal/platform/checkpoint"
)

// CheckpointRepository keeps scan checkpoints in the checkpoints table.
type CheckpointRepository struct {
	db *DB
}

func NewCheckpointRepository(db *DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Get(ctx context.Context, key string) (uint64, bool, error) {
	var height int64
	err := r.db.pool.QueryRow(ctx, `SELECT height FROM checkpoints WHERE key = $1`, key).Scan(&height)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return uint64(height), true, nil
}

// Set upserts the height. The conditional update leaves the row untouched
// when the stored height is greater, which is reported as a regression.
func (r *CheckpointRepository) Set(ctx context.Context, key string, height uint64) error {
	sql := `
		INSERT INTO checkpoints (key, height) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			height = EXCLUDED.height,
			updated_at = NOW()
		WHERE checkpoints.height <= EXCLUDED.height
	`

	tag, err := r.db.pool.Exec(ctx, sql, key, int64(height))
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s refused %d", checkpoint.ErrCheckpointRegression, key, height)
	}
	return nil
}
