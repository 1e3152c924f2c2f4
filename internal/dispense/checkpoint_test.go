package dispense

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glueworks/glue-cell-core/internal/glue"
	"github.com/glueworks/glue-cell-core/internal/infrastructure/database"
)

const checkpointsDDL = `
CREATE TABLE checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    state TEXT NOT NULL,
    path_index INTEGER NOT NULL,
    point_index INTEGER NOT NULL,
    spray_on INTEGER NOT NULL,
    is_resuming INTEGER NOT NULL,
    pump_started INTEGER NOT NULL,
    generator_started INTEGER NOT NULL,
    settings TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

func newCheckpointRepo(t *testing.T) *SQLiteCheckpointRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "cell.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(context.Background(), checkpointsDDL); err != nil {
		t.Fatalf("creating checkpoints table: %v", err)
	}
	return NewSQLiteCheckpointRepository(db)
}

func TestCheckpointSaveAndRecent(t *testing.T) {
	repo := newCheckpointRepo(t)
	ctx := context.Background()

	seg := testSegment()
	states := []State{StateStarting, StateSendingPoints, StateCompleted}
	for i, state := range states {
		err := repo.Save(ctx, Checkpoint{
			RunID:       "run-a",
			State:       state,
			PathIndex:   0,
			PointIndex:  i,
			SprayOn:     true,
			PumpStarted: state != StateStarting,
			Settings:    &seg,
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("saving checkpoint %d: %v", i, err)
		}
	}
	if err := repo.Save(ctx, Checkpoint{RunID: "run-b", State: StateStarting}); err != nil {
		t.Fatalf("saving other-run checkpoint: %v", err)
	}

	got, err := repo.Recent(ctx, "run-a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d checkpoints, want 3", len(got))
	}

	// Newest first.
	if got[0].State != StateCompleted || got[2].State != StateStarting {
		t.Fatalf("order wrong: first %s, last %s", got[0].State, got[2].State)
	}
	if got[0].PointIndex != 2 {
		t.Fatalf("newest point index = %d, want 2", got[0].PointIndex)
	}
	if got[0].Settings == nil || got[0].Settings.Speed != seg.Speed {
		t.Fatal("settings did not round-trip")
	}
	if !got[0].SprayOn || !got[0].PumpStarted {
		t.Fatal("boolean flags did not round-trip")
	}
}

func TestCheckpointRecentHonoursLimit(t *testing.T) {
	repo := newCheckpointRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Save(ctx, Checkpoint{RunID: "run", State: StatePaused, PointIndex: i}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := repo.Recent(ctx, "run", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(got))
	}
	if got[0].PointIndex != 4 {
		t.Fatalf("newest point index = %d, want 4", got[0].PointIndex)
	}
}

func TestCheckpointRecentEmptyRun(t *testing.T) {
	repo := newCheckpointRepo(t)

	got, err := repo.Recent(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d checkpoints for unknown run, want 0", len(got))
	}
}

func TestSnapshotCopiesSettings(t *testing.T) {
	ec := NewExecutionContext(nil, nil)
	ec.Reset("run", []glue.Path{{}}, true)

	seg := testSegment()
	ec.Apply(Delta{Settings: &seg})

	cp := ec.Snapshot(StateSendingPoints)
	if cp.Settings == nil {
		t.Fatal("snapshot has no settings")
	}

	cp.Settings.Speed = 1
	current, _ := ec.Settings()
	if current.Speed == 1 {
		t.Fatal("mutating the snapshot leaked into the live context")
	}
}
