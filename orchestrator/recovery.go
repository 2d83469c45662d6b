package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonwraymond/svcops/observe"
	"github.com/jonwraymond/svcops/resilience"
)

// SnapshotHook lets the embedding application capture in-flight state for a
// service about to be recovered. It is called with a skeleton snapshot
// (service id, snapshot id, timestamp, and a reason in Context) and may fill
// in StateData, PendingTasks, and additional Context entries.
type SnapshotHook func(ctx context.Context, state *RecoveryState)

// RestoreHook hands a saved snapshot back to the application after its
// service recovered. A returned error is logged; the snapshot is consumed
// either way.
type RestoreHook func(ctx context.Context, state RecoveryState) error

// RecoveryManager drives backoff-paced recovery loops and owns the snapshot
// lifecycle around them.
type RecoveryManager struct {
	store *Store
	bus   *Bus
	log   observe.Logger

	snapshotHook SnapshotHook
	restoreHook  RestoreHook

	// check runs one probe against the service and folds the result into
	// its tracker. Wired by the orchestrator.
	check func(ctx context.Context, entry *serviceEntry)
}

func newRecoveryManager(store *Store, bus *Bus, log observe.Logger) *RecoveryManager {
	if log == nil {
		log = observe.NoopLogger()
	}
	return &RecoveryManager{
		store: store,
		bus:   bus,
		log:   log,
	}
}

// SaveSnapshot captures and stores a recovery snapshot for the service.
// The reason ("failover", "shutdown") is recorded in the snapshot context.
func (rm *RecoveryManager) SaveSnapshot(ctx context.Context, serviceID, reason string) RecoveryState {
	state := RecoveryState{
		ServiceID:  serviceID,
		SnapshotID: uuid.NewString(),
		SavedAt:    time.Now(),
		Context:    map[string]any{"reason": reason},
	}
	if rm.snapshotHook != nil {
		rm.snapshotHook(ctx, &state)
	}
	rm.store.Save(state)

	rm.log.Info(ctx, "recovery snapshot saved",
		observe.Field{Key: "service.id", Value: serviceID},
		observe.Field{Key: "snapshot.id", Value: state.SnapshotID},
		observe.Field{Key: "reason", Value: reason},
	)
	return state
}

// RestoreSnapshot hands the stored snapshot for the service back through
// the restore hook, deletes it, and emits state_restored. Returns
// ErrSnapshotNotFound when no snapshot exists.
func (rm *RecoveryManager) RestoreSnapshot(ctx context.Context, serviceID string) error {
	state, ok := rm.store.Load(serviceID)
	if !ok {
		return ErrSnapshotNotFound
	}

	if rm.restoreHook != nil {
		if err := rm.restoreHook(ctx, state); err != nil {
			rm.log.Warn(ctx, "restore hook failed",
				observe.Field{Key: "service.id", Value: serviceID},
				observe.Field{Key: "snapshot.id", Value: state.SnapshotID},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	rm.store.Delete(serviceID)

	rm.bus.Emit(ctx, Event{
		Type:      EventStateRestored,
		ServiceID: serviceID,
		SavedAt:   state.SavedAt,
	})
	return nil
}

// Recover runs the backoff-paced recovery loop for an unhealthy service.
//
// Each round waits RetryDelay doubled per attempt, asks the circuit breaker
// for permission, and probes. A round the breaker denies still consumes an
// attempt; the wait is what gives the service room to come back. The loop
// ends when the service reaches healthy, the context is cancelled, or
// MaxRetries rounds are spent, at which point the service is failed.
//
// Recovery is single-flight per service: a second call while one loop is
// running returns immediately.
func (rm *RecoveryManager) Recover(ctx context.Context, entry *serviceEntry) {
	if !entry.tracker.setRecovering(ctx) {
		return
	}

	cfg := entry.cfg
	sched := resilience.NewSchedule(cfg.RetryDelay, 2.0)

	rm.log.Info(ctx, "recovery started",
		observe.Field{Key: "service.id", Value: cfg.ID},
		observe.Field{Key: "max_retries", Value: cfg.MaxRetries},
	)

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		entry.tracker.setRecoveryAttempt(attempt + 1)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sched.Delay(attempt)):
		}

		if !entry.tracker.allowCheck() {
			rm.log.Debug(ctx, "recovery probe blocked by circuit breaker",
				observe.Field{Key: "service.id", Value: cfg.ID},
				observe.Field{Key: "attempt", Value: attempt + 1},
			)
			continue
		}

		rm.check(ctx, entry)

		if entry.tracker.State() == StateHealthy {
			if err := rm.RestoreSnapshot(ctx, cfg.ID); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
				rm.log.Warn(ctx, "snapshot restore failed after recovery",
					observe.Field{Key: "service.id", Value: cfg.ID},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
			rm.log.Info(ctx, "recovery succeeded",
				observe.Field{Key: "service.id", Value: cfg.ID},
				observe.Field{Key: "attempts", Value: attempt + 1},
			)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	rm.log.Error(ctx, "recovery exhausted",
		observe.Field{Key: "service.id", Value: cfg.ID},
		observe.Field{Key: "attempts", Value: cfg.MaxRetries},
	)
	entry.tracker.setFailed(ctx, cfg.MaxRetries)
}
