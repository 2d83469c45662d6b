package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/svcops/health"
	"github.com/jonwraymond/svcops/observe"
)

// serviceEntry bundles everything the orchestrator holds per service.
type serviceEntry struct {
	cfg     ServiceConfig
	checker health.Checker
	tracker *tracker
	meta    observe.CheckMeta
	log     observe.Logger

	// checkMu serializes probe plus apply, so a scheduled round and a
	// recovery round never interleave for the same service.
	checkMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log observe.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op metrics.
func WithMetrics(m observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the check-span tracer. Defaults to a no-op tracer.
func WithTracer(t observe.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithSnapshotHook sets the hook that captures application state into
// recovery snapshots.
func WithSnapshotHook(hook SnapshotHook) Option {
	return func(o *Orchestrator) {
		o.snapshotHook = hook
	}
}

// WithRestoreHook sets the hook that receives snapshots back after a
// successful recovery.
func WithRestoreHook(hook RestoreHook) Option {
	return func(o *Orchestrator) {
		o.restoreHook = hook
	}
}

// Orchestrator supervises registered services: it schedules health checks,
// runs each service's state machine, and drives failover and recovery when
// a service crosses its failure threshold.
//
// All methods are safe for concurrent use.
type Orchestrator struct {
	log     observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer

	bus      *Bus
	store    *Store
	recovery *RecoveryManager
	failover *FailoverCoordinator

	snapshotHook SnapshotHook
	restoreHook  RestoreHook

	mu       sync.Mutex
	services map[string]*serviceEntry
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group

	// wg tracks goroutines spawned outside the Start batch: escalation
	// paths and schedulers for services registered while running.
	wg sync.WaitGroup
}

// New creates an orchestrator with no registered services.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      observe.NoopLogger(),
		metrics:  observe.NoopMetrics(),
		tracer:   observe.NewNoopTracer(),
		services: make(map[string]*serviceEntry),
	}

	o.store = NewStore()

	for _, opt := range opts {
		opt(o)
	}

	o.bus = NewBus(o.log)
	o.recovery = newRecoveryManager(o.store, o.bus, o.log)
	o.recovery.snapshotHook = o.snapshotHook
	o.recovery.restoreHook = o.restoreHook
	o.recovery.check = o.performCheck
	o.failover = newFailoverCoordinator(o.recovery, o.bus, o.log)
	o.failover.lookup = o.lookup

	return o
}

// Register adds a service to supervision. The config must carry an id and
// exactly one probe target. If the orchestrator is already running, checks
// for the new service begin immediately.
func (o *Orchestrator) Register(cfg ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	entry := &serviceEntry{
		cfg:     cfg,
		checker: newChecker(cfg),
		meta: observe.CheckMeta{
			ServiceID: cfg.ID,
			Name:      cfg.Name,
			Mode:      cfg.probeMode(),
			Critical:  cfg.IsCritical,
		},
	}
	entry.log = o.log.WithService(entry.meta)
	entry.tracker = newTracker(cfg, o.bus, o.metrics)
	entry.tracker.onUnhealthy = func() { o.escalate(entry) }

	o.mu.Lock()
	if _, exists := o.services[cfg.ID]; exists {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateService, cfg.ID)
	}
	o.services[cfg.ID] = entry

	if o.running {
		ctx := o.runCtx
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runScheduler(ctx, entry)
		}()
	}
	o.mu.Unlock()

	entry.log.Info(context.Background(), "service registered",
		observe.Field{Key: "interval", Value: cfg.HealthCheckInterval.String()},
		observe.Field{Key: "failure_threshold", Value: cfg.FailureThreshold},
	)
	return nil
}

// Unregister removes a service from supervision. Its scheduler exits on the
// next round and its recovery snapshot, if any, is discarded.
func (o *Orchestrator) Unregister(serviceID string) error {
	o.mu.Lock()
	entry, ok := o.services[serviceID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}
	delete(o.services, serviceID)
	o.mu.Unlock()

	entry.tracker.setStopped()
	o.store.Delete(serviceID)

	entry.log.Info(context.Background(), "service unregistered")
	return nil
}

// Start launches a check scheduler per registered service. The first check
// of each service runs immediately; subsequent checks follow its interval.
// Start on a running orchestrator is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	o.runCtx, o.cancel = context.WithCancel(ctx)
	o.group = &errgroup.Group{}
	o.running = true

	for _, entry := range o.services {
		o.group.Go(func() error {
			o.runScheduler(o.runCtx, entry)
			return nil
		})
	}

	o.log.Info(ctx, "orchestrator started",
		observe.Field{Key: "services", Value: len(o.services)},
	)
	return nil
}

// Stop halts all schedulers and in-flight recovery loops, saves a shutdown
// snapshot per service, and marks every service stopped. Safe to call more
// than once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	o.cancel()

	entries := make([]*serviceEntry, 0, len(o.services))
	for _, entry := range o.services {
		entries = append(entries, entry)
	}
	o.mu.Unlock()

	_ = o.group.Wait()
	o.wg.Wait()

	for _, entry := range entries {
		if entry.tracker.State() != StateStopped {
			o.recovery.SaveSnapshot(ctx, entry.cfg.ID, "shutdown")
		}
		entry.tracker.setStopped()
	}

	o.log.Info(ctx, "orchestrator stopped",
		observe.Field{Key: "services", Value: len(entries)},
	)
	return nil
}

// Running reports whether the orchestrator has been started and not stopped.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// On registers an event handler. Handlers run synchronously on the emitting
// path, in registration order.
func (o *Orchestrator) On(eventType EventType, handler Handler) {
	o.bus.On(eventType, handler)
}

// Status returns the supervision record for one service.
func (o *Orchestrator) Status(serviceID string) (ServiceStatus, error) {
	o.mu.Lock()
	entry, ok := o.services[serviceID]
	o.mu.Unlock()
	if !ok {
		return ServiceStatus{}, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}
	return entry.tracker.Status(), nil
}

// AllStatuses returns the supervision records of every registered service.
func (o *Orchestrator) AllStatuses() map[string]ServiceStatus {
	o.mu.Lock()
	entries := make([]*serviceEntry, 0, len(o.services))
	for _, entry := range o.services {
		entries = append(entries, entry)
	}
	o.mu.Unlock()

	statuses := make(map[string]ServiceStatus, len(entries))
	for _, entry := range entries {
		statuses[entry.cfg.ID] = entry.tracker.Status()
	}
	return statuses
}

// Summary is an aggregate health report across all registered services.
type Summary struct {
	// Overall is healthy when every service is healthy, unhealthy when
	// none are, degraded otherwise.
	Overall          health.Status
	ServicesHealthy  int
	ServicesTotal    int
	HealthPercentage float64
	CriticalHealthy  int
	CriticalTotal    int
	Running          bool
}

// Summary aggregates the current state of all registered services. An
// orchestrator with no services reports healthy.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	entries := make([]*serviceEntry, 0, len(o.services))
	for _, entry := range o.services {
		entries = append(entries, entry)
	}
	running := o.running
	o.mu.Unlock()

	s := Summary{
		ServicesTotal: len(entries),
		Running:       running,
	}
	for _, entry := range entries {
		healthy := entry.tracker.State() == StateHealthy
		if healthy {
			s.ServicesHealthy++
		}
		if entry.cfg.IsCritical {
			s.CriticalTotal++
			if healthy {
				s.CriticalHealthy++
			}
		}
	}

	switch {
	case s.ServicesTotal == 0:
		// Vacuously healthy, but there is nothing to count.
		s.Overall = health.StatusHealthy
		s.HealthPercentage = 0
	case s.ServicesHealthy == s.ServicesTotal:
		s.Overall = health.StatusHealthy
		s.HealthPercentage = 100.0
	case s.ServicesHealthy == 0:
		s.Overall = health.StatusUnhealthy
	default:
		s.Overall = health.StatusDegraded
		pct := float64(s.ServicesHealthy) / float64(s.ServicesTotal) * 100
		s.HealthPercentage = math.Round(pct*10) / 10
	}
	return s
}

// lookup resolves a registered service by id.
func (o *Orchestrator) lookup(serviceID string) (*serviceEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.services[serviceID]
	return entry, ok
}

// runScheduler drives the check cadence for one service until the context
// is cancelled or the service reaches a terminal state.
func (o *Orchestrator) runScheduler(ctx context.Context, entry *serviceEntry) {
	if !o.checkRound(ctx, entry) {
		return
	}

	ticker := time.NewTicker(entry.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.checkRound(ctx, entry) {
				return
			}
		}
	}
}

// checkRound runs one scheduled round. It reports false when the scheduler
// should exit.
func (o *Orchestrator) checkRound(ctx context.Context, entry *serviceEntry) bool {
	switch entry.tracker.State() {
	case StateFailed, StateStopped:
		return false
	case StateRecovering:
		// The recovery loop paces its own probes.
		return true
	}

	if !entry.tracker.allowCheck() {
		entry.log.Debug(ctx, "check skipped, circuit open")
		return true
	}

	o.performCheck(ctx, entry)
	return true
}

// performCheck runs one probe and folds the result into the service's state
// machine. A result that lands after the context was cancelled is discarded
// so shutdown never races a transition.
func (o *Orchestrator) performCheck(ctx context.Context, entry *serviceEntry) {
	entry.checkMu.Lock()
	defer entry.checkMu.Unlock()

	ctx, span := o.tracer.StartSpan(ctx, entry.meta)
	res := entry.checker.Check(ctx)
	o.tracer.EndSpan(span, res.Error)
	o.metrics.RecordCheck(ctx, entry.meta, res.Duration, res.Error)

	if ctx.Err() != nil {
		return
	}
	entry.tracker.Apply(ctx, res)
}

// escalate handles a service crossing its failure threshold. Failover and
// the recovery loop run only for services with a configured fallback; a
// service without one stays under scheduled checks and can work its way
// back to healthy through the normal success path. Runs off the check path.
func (o *Orchestrator) escalate(entry *serviceEntry) {
	if entry.cfg.FallbackServiceID == "" {
		return
	}

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	ctx := o.runCtx
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if o.failover.Trigger(ctx, entry) {
			o.recovery.Recover(ctx, entry)
		}
	}()
}

// newChecker builds the probe for a service config.
func newChecker(cfg ServiceConfig) health.Checker {
	if cfg.HealthURL != "" {
		return health.NewHTTPChecker(health.HTTPCheckerConfig{
			Name:    cfg.ID,
			URL:     cfg.HealthURL,
			Timeout: cfg.HealthCheckTimeout,
		})
	}
	return health.NewTCPChecker(health.TCPCheckerConfig{
		Name:    cfg.ID,
		Host:    cfg.Host,
		Port:    cfg.Port,
		Timeout: cfg.HealthCheckTimeout,
	})
}
