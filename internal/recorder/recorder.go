// Package recorder captures per-stage pipeline snapshots for later
// inspection. Recording is strictly best-effort: a failed or slow write
// never blocks or fails the run it observes.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/resilience"
	"github.com/henrikfb/mailsift/internal/store"
)

// Recorder receives stage snapshots during a pipeline run.
type Recorder interface {
	Record(runID, stage string, payload any)
	// Flush blocks until all pending writes have been attempted.
	Flush()
}

// Nop discards everything. Used when no store is configured.
type Nop struct{}

func (Nop) Record(string, string, any) {}
func (Nop) Flush()                     {}

const writeTimeout = 5 * time.Second

// StoreRecorder writes snapshots to a store asynchronously. Transient store
// errors get one quick retry before the write is given up on.
type StoreRecorder struct {
	store store.Store
	retry resilience.RetryConfig
	wg    sync.WaitGroup
}

func NewStoreRecorder(s store.Store) *StoreRecorder {
	return &StoreRecorder{
		store: s,
		retry: resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond},
	}
}

// Record queues the snapshot write and returns immediately. Payloads are
// captured as-is; callers must not mutate them afterwards.
func (r *StoreRecorder) Record(runID, stage string, payload any) {
	snap := &model.StageSnapshot{
		ID:         uuid.NewString(),
		RunID:      runID,
		Stage:      stage,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
			return r.store.AddSnapshot(ctx, snap)
		})
		if err != nil {
			zap.L().Warn("recorder: snapshot write failed",
				zap.String("run_id", runID),
				zap.String("stage", stage),
				zap.Error(err),
			)
		}
	}()
}

// Flush waits for in-flight writes. Call before process shutdown.
func (r *StoreRecorder) Flush() {
	r.wg.Wait()
}
