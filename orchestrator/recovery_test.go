package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/svcops/health"
)

func newTestEntry(cfg ServiceConfig, bus *Bus) *serviceEntry {
	cfg = cfg.withDefaults()
	return &serviceEntry{
		cfg:     cfg,
		tracker: newTracker(cfg, bus, nil),
	}
}

func TestRecoveryManager_SaveAndRestoreSnapshot(t *testing.T) {
	store := NewStore()
	bus := NewBus(nil)
	events := recordEvents(bus)
	rm := newRecoveryManager(store, bus, nil)

	var hookCalled bool
	rm.snapshotHook = func(ctx context.Context, state *RecoveryState) {
		hookCalled = true
		state.StateData = map[string]any{"sessions": 3}
	}

	ctx := context.Background()
	saved := rm.SaveSnapshot(ctx, "auth", "failover")

	if !hookCalled {
		t.Error("snapshot hook was not called")
	}
	if saved.SnapshotID == "" {
		t.Error("SnapshotID is empty, want a generated id")
	}
	if saved.Context["reason"] != "failover" {
		t.Errorf("Context[reason] = %v, want failover", saved.Context["reason"])
	}
	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", store.Len())
	}

	var restored RecoveryState
	rm.restoreHook = func(ctx context.Context, state RecoveryState) error {
		restored = state
		return nil
	}

	if err := rm.RestoreSnapshot(ctx, "auth"); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	if restored.StateData["sessions"] != 3 {
		t.Errorf("restored StateData[sessions] = %v, want 3", restored.StateData["sessions"])
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() after restore = %d, want 0 (snapshot consumed)", store.Len())
	}

	got := eventsOfType(*events, EventStateRestored)
	if len(got) != 1 {
		t.Fatalf("state_restored events = %d, want 1", len(got))
	}
	if !got[0].SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got[0].SavedAt, saved.SavedAt)
	}
}

func TestRecoveryManager_RestoreMissingSnapshot(t *testing.T) {
	rm := newRecoveryManager(NewStore(), NewBus(nil), nil)

	err := rm.RestoreSnapshot(context.Background(), "auth")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("RestoreSnapshot() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestRecoveryManager_RestoreHookErrorStillConsumes(t *testing.T) {
	store := NewStore()
	rm := newRecoveryManager(store, NewBus(nil), nil)
	rm.restoreHook = func(ctx context.Context, state RecoveryState) error {
		return errors.New("cannot apply")
	}

	ctx := context.Background()
	rm.SaveSnapshot(ctx, "auth", "failover")

	if err := rm.RestoreSnapshot(ctx, "auth"); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v, want nil despite hook error", err)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestRecoveryManager_RecoverSucceeds(t *testing.T) {
	store := NewStore()
	bus := NewBus(nil)
	events := recordEvents(bus)
	rm := newRecoveryManager(store, bus, nil)

	entry := newTestEntry(ServiceConfig{
		ID:                "auth",
		FailureThreshold:  1,
		RecoveryThreshold: 2,
		RetryDelay:        time.Millisecond,
		MaxRetries:        3,
	}, bus)

	ctx := context.Background()
	entry.tracker.Apply(ctx, health.Unhealthy("down", nil))
	rm.SaveSnapshot(ctx, "auth", "failover")

	// Every recovery probe succeeds.
	rm.check = func(ctx context.Context, e *serviceEntry) {
		e.tracker.Apply(ctx, health.Healthy("ok"))
	}

	rm.Recover(ctx, entry)

	if entry.tracker.State() != StateHealthy {
		t.Fatalf("state = %v, want healthy", entry.tracker.State())
	}

	// RecoveryThreshold 2 means two passing probes, so two attempts.
	recovered := eventsOfType(*events, EventServiceRecovered)
	if len(recovered) != 1 {
		t.Fatalf("service_recovered events = %d, want 1", len(recovered))
	}
	if recovered[0].PrevState != StateRecovering {
		t.Errorf("PrevState = %v, want recovering", recovered[0].PrevState)
	}

	// The snapshot is handed back and consumed.
	if got := eventsOfType(*events, EventStateRestored); len(got) != 1 {
		t.Errorf("state_restored events = %d, want 1", len(got))
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestRecoveryManager_RecoverWithoutSnapshot(t *testing.T) {
	bus := NewBus(nil)
	events := recordEvents(bus)
	rm := newRecoveryManager(NewStore(), bus, nil)

	entry := newTestEntry(ServiceConfig{
		ID:                "auth",
		FailureThreshold:  1,
		RecoveryThreshold: 1,
		RetryDelay:        time.Millisecond,
	}, bus)

	ctx := context.Background()
	entry.tracker.Apply(ctx, health.Unhealthy("down", nil))
	rm.check = func(ctx context.Context, e *serviceEntry) {
		e.tracker.Apply(ctx, health.Healthy("ok"))
	}

	rm.Recover(ctx, entry)

	if entry.tracker.State() != StateHealthy {
		t.Fatalf("state = %v, want healthy", entry.tracker.State())
	}
	// No snapshot existed; nothing to restore, and that is not an error.
	if got := eventsOfType(*events, EventStateRestored); len(got) != 0 {
		t.Errorf("state_restored events = %d, want 0", len(got))
	}
}

func TestRecoveryManager_RecoverExhaustsAndFails(t *testing.T) {
	bus := NewBus(nil)
	events := recordEvents(bus)
	rm := newRecoveryManager(NewStore(), bus, nil)

	entry := newTestEntry(ServiceConfig{
		ID:               "auth",
		FailureThreshold: 1,
		RetryDelay:       time.Millisecond,
		MaxRetries:       3,
	}, bus)

	ctx := context.Background()
	entry.tracker.Apply(ctx, health.Unhealthy("down", nil))

	var probes int
	rm.check = func(ctx context.Context, e *serviceEntry) {
		probes++
		e.tracker.Apply(ctx, health.Unhealthy("still down", nil))
	}

	rm.Recover(ctx, entry)

	if entry.tracker.State() != StateFailed {
		t.Fatalf("state = %v, want failed", entry.tracker.State())
	}
	failed := eventsOfType(*events, EventRecoveryFailed)
	if len(failed) != 1 {
		t.Fatalf("recovery_failed events = %d, want 1", len(failed))
	}
	if failed[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", failed[0].Attempts)
	}
	if probes == 0 {
		t.Error("no recovery probes ran")
	}
}

func TestRecoveryManager_RecoverIsSingleFlight(t *testing.T) {
	bus := NewBus(nil)
	rm := newRecoveryManager(NewStore(), bus, nil)

	entry := newTestEntry(ServiceConfig{
		ID:               "auth",
		FailureThreshold: 1,
		RetryDelay:       time.Millisecond,
	}, bus)

	ctx := context.Background()
	entry.tracker.Apply(ctx, health.Unhealthy("down", nil))
	if !entry.tracker.setRecovering(ctx) {
		t.Fatal("setRecovering() = false, want true")
	}

	var probes int
	rm.check = func(ctx context.Context, e *serviceEntry) { probes++ }

	// A loop is notionally in flight; a second Recover must bail out
	// without probing.
	rm.Recover(ctx, entry)

	if probes != 0 {
		t.Errorf("probes = %d, want 0", probes)
	}
	if entry.tracker.State() != StateRecovering {
		t.Errorf("state = %v, want recovering", entry.tracker.State())
	}
}

func TestRecoveryManager_RecoverStopsOnCancel(t *testing.T) {
	bus := NewBus(nil)
	events := recordEvents(bus)
	rm := newRecoveryManager(NewStore(), bus, nil)

	entry := newTestEntry(ServiceConfig{
		ID:               "auth",
		FailureThreshold: 1,
		RetryDelay:       time.Hour,
		MaxRetries:       3,
	}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	entry.tracker.Apply(ctx, health.Unhealthy("down", nil))

	rm.check = func(ctx context.Context, e *serviceEntry) {
		t.Error("probe ran despite cancelled context")
	}

	done := make(chan struct{})
	go func() {
		rm.Recover(ctx, entry)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Recover did not return after cancel")
	}

	// A cancelled loop does not fail the service.
	if got := eventsOfType(*events, EventRecoveryFailed); len(got) != 0 {
		t.Errorf("recovery_failed events = %d, want 0", len(got))
	}
	if entry.tracker.State() != StateRecovering {
		t.Errorf("state = %v, want recovering", entry.tracker.State())
	}
}
