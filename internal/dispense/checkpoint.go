package dispense

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/database"
)

// Checkpoint is a per-transition snapshot of the execution context,
// persisted for post-hoc analysis. It is diagnostic only; correct
// operation never depends on it.
type Checkpoint struct {
	RunID            string
	State            State
	PathIndex        int
	PointIndex       int
	SprayOn          bool
	IsResuming       bool
	PumpStarted      bool
	GeneratorStarted bool
	Settings         *glue.Segment
	CreatedAt        time.Time
}

// CheckpointRepository stores context snapshots.
type CheckpointRepository interface {
	// Save persists one snapshot. Failures are the caller's to log;
	// they must never abort a run.
	Save(ctx context.Context, cp Checkpoint) error

	// Recent returns up to limit snapshots for a run, newest first.
	Recent(ctx context.Context, runID string, limit int) ([]Checkpoint, error)
}

// SQLiteCheckpointRepository persists checkpoints to the cell database.
type SQLiteCheckpointRepository struct {
	db *database.DB
}

// NewSQLiteCheckpointRepository constructs a repository on the given
// database. The checkpoints table is created by migrations.
func NewSQLiteCheckpointRepository(db *database.DB) *SQLiteCheckpointRepository {
	return &SQLiteCheckpointRepository{db: db}
}

// Save inserts one checkpoint row.
func (r *SQLiteCheckpointRepository) Save(ctx context.Context, cp Checkpoint) error {
	var settingsJSON []byte
	if cp.Settings != nil {
		var err error
		settingsJSON, err = json.Marshal(cp.Settings)
		if err != nil {
			return fmt.Errorf("checkpoint: marshal settings: %w", err)
		}
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (
			run_id, state, path_index, point_index,
			spray_on, is_resuming, pump_started, generator_started,
			settings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.RunID, string(cp.State), cp.PathIndex, cp.PointIndex,
		cp.SprayOn, cp.IsResuming, cp.PumpStarted, cp.GeneratorStarted,
		string(settingsJSON), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit checkpoints for a run, newest first.
func (r *SQLiteCheckpointRepository) Recent(ctx context.Context, runID string, limit int) ([]Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, state, path_index, point_index,
		       spray_on, is_resuming, pump_started, generator_started,
		       settings, created_at
		FROM checkpoints
		WHERE run_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: query: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			cp           Checkpoint
			state        string
			settingsJSON string
			createdAt    string
		)
		if err := rows.Scan(
			&cp.RunID, &state, &cp.PathIndex, &cp.PointIndex,
			&cp.SprayOn, &cp.IsResuming, &cp.PumpStarted, &cp.GeneratorStarted,
			&settingsJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("checkpoint: scan: %w", err)
		}

		cp.State = State(state)
		if settingsJSON != "" {
			var s glue.Segment
			if err := json.Unmarshal([]byte(settingsJSON), &s); err == nil {
				cp.Settings = &s
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			cp.CreatedAt = ts
		}

		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: rows: %w", err)
	}
	return out, nil
}

var _ CheckpointRepository = (*SQLiteCheckpointRepository)(nil)
