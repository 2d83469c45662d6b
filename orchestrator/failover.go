package orchestrator

import (
	"context"

	"github.com/jonwraymond/svcops/observe"
)

// FailoverCoordinator hands traffic off to a configured fallback when a
// service goes unhealthy: it snapshots the failing service, announces the
// handoff, and leaves routing to the failover_triggered handlers.
type FailoverCoordinator struct {
	recovery *RecoveryManager
	bus      *Bus
	log      observe.Logger

	// lookup resolves a registered service by id. Wired by the orchestrator.
	lookup func(id string) (*serviceEntry, bool)
}

func newFailoverCoordinator(recovery *RecoveryManager, bus *Bus, log observe.Logger) *FailoverCoordinator {
	if log == nil {
		log = observe.NoopLogger()
	}
	return &FailoverCoordinator{
		recovery: recovery,
		bus:      bus,
		log:      log,
	}
}

// Trigger performs the failover for the service and reports whether it
// happened. The fallback must be a registered service; an unknown fallback
// is logged and skipped, leaving the failing service under scheduled
// supervision with no recovery loop.
func (fc *FailoverCoordinator) Trigger(ctx context.Context, entry *serviceEntry) bool {
	fallbackID := entry.cfg.FallbackServiceID
	if _, ok := fc.lookup(fallbackID); !ok {
		fc.log.Warn(ctx, "fallback service not registered, skipping failover",
			observe.Field{Key: "service.id", Value: entry.cfg.ID},
			observe.Field{Key: "fallback.id", Value: fallbackID},
		)
		return false
	}

	fc.recovery.SaveSnapshot(ctx, entry.cfg.ID, "failover")

	fc.log.Info(ctx, "failing over",
		observe.Field{Key: "service.id", Value: entry.cfg.ID},
		observe.Field{Key: "fallback.id", Value: fallbackID},
	)

	fc.bus.Emit(ctx, Event{
		Type:       EventFailoverTriggered,
		ServiceID:  entry.cfg.ID,
		FallbackID: fallbackID,
	})
	return true
}
