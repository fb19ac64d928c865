package sync

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/store"
)

// ErrSyncInProgress is returned when a cycle is requested while one is
// already running. The caller can treat it as a no-op.
var ErrSyncInProgress = errors.New("sync already in progress")

// Engine orchestrates sync cycles: drain the outbox first, then pull
// each enabled entity type. Cycles run on an interval while online, on
// the offline to online transition, and on manual trigger. Only one
// cycle runs at a time.
type Engine struct {
	cfg      *config.SyncConfig
	store    *store.Store
	outbox   *outbox.Outbox
	pusher   *Pusher
	puller   *Puller
	registry *Registry
	monitor  *Monitor
	notifier Notifier

	mu         sync.Mutex
	state      string
	inProgress bool
	lastSyncAt *time.Time
	lastResult *SyncResult

	syncChan chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEngine wires the orchestrator
func NewEngine(cfg *config.SyncConfig, st *store.Store, ob *outbox.Outbox,
	pusher *Pusher, puller *Puller, registry *Registry, monitor *Monitor, notifier Notifier) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		outbox:   ob,
		pusher:   pusher,
		puller:   puller,
		registry: registry,
		monitor:  monitor,
		notifier: notifier,
		state:    StateIdle,
		syncChan: make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start begins background operation: connectivity monitoring, the
// auto-sync loop, and an optional startup cycle.
func (e *Engine) Start() {
	if !e.cfg.Enabled {
		log.Println("Sync disabled by configuration")
		return
	}

	e.monitor.Subscribe(func(online bool) {
		if e.notifier != nil {
			e.notifier.Notify(EventConnectivityChanged, map[string]bool{"online": online})
		}
		if online {
			// Catch up as soon as connectivity returns
			e.TriggerSync()
		}
	})
	e.monitor.Start()

	go e.autoSyncLoop()

	if e.cfg.SyncOnStartup {
		e.TriggerSync()
	}

	log.Println("🔄 Sync engine started")
}

// Stop ends background operation. A cycle already underway finishes;
// committed work is never rolled back.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.monitor.Stop()
}

// TriggerSync requests a cycle without waiting for it
func (e *Engine) TriggerSync() {
	select {
	case e.syncChan <- struct{}{}:
	default:
		// A request is already queued
	}
}

func (e *Engine) autoSyncLoop() {
	interval := time.Duration(e.cfg.AutoSyncInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.cfg.AutoSyncEnabled || !e.monitor.IsOnline() {
				continue
			}
			e.runCycle()
		case <-e.syncChan:
			e.runCycle()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) runCycle() {
	ctx := context.Background()
	if e.cfg.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.SyncTimeout)*time.Second)
		defer cancel()
	}
	if _, err := e.Sync(ctx); err != nil && err != ErrSyncInProgress {
		log.Printf("Sync cycle failed: %v", err)
	}
}

// Sync runs one full cycle: push, then pull. Re-entrant calls return
// ErrSyncInProgress without side effects. Offline, the cycle fails
// fast and local state stays untouched.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	e.inProgress = true
	e.state = StateSyncing
	e.mu.Unlock()

	result := &SyncResult{StartedAt: time.Now().UTC()}
	defer func() {
		result.FinishedAt = time.Now().UTC()
		e.mu.Lock()
		e.inProgress = false
		e.state = StateIdle
		e.lastResult = result
		if result.Success {
			t := result.FinishedAt
			e.lastSyncAt = &t
		}
		e.mu.Unlock()

		if e.notifier != nil {
			e.notifier.Notify(EventSyncCompleted, result)
		}
	}()

	if !e.monitor.IsOnline() {
		result.Errors = append(result.Errors, SyncError{Message: "remote API unreachable"})
		result.FailedCount = 1
		return result, nil
	}

	log.Println("🔄 Sync cycle starting")

	pushed, pushErrs := e.pusher.Run(ctx)
	result.SyncedCount += pushed
	result.Errors = append(result.Errors, pushErrs...)

	pulled, pullErrs := e.puller.Run(ctx, e.enabledTypes())
	result.SyncedCount += pulled
	result.Errors = append(result.Errors, pullErrs...)

	result.FailedCount = len(result.Errors)
	result.Success = len(result.Errors) == 0

	if result.Success {
		log.Printf("✅ Sync cycle complete: %d records", result.SyncedCount)
	} else {
		log.Printf("⚠️ Sync cycle finished with %d errors", result.FailedCount)
	}
	return result, nil
}

// enabledTypes returns the entity types to pull, highest priority
// first. Types absent from the config sync with defaults.
func (e *Engine) enabledTypes() []string {
	type entry struct {
		name     string
		priority int
		ordinal  int
	}
	var entries []entry
	for i, et := range AllEntityTypes {
		ec, configured := e.cfg.Entities[et]
		if configured && !ec.Enabled {
			continue
		}
		priority := 0
		if configured {
			priority = ec.Priority
		}
		entries = append(entries, entry{name: et, priority: priority, ordinal: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].ordinal < entries[j].ordinal
	})
	out := make([]string, len(entries))
	for i, en := range entries {
		out[i] = en.name
	}
	return out
}

// Status returns the engine snapshot for the UI. Works offline.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		State:      e.state,
		LastSyncAt: e.lastSyncAt,
		LastResult: e.lastResult,
	}
	e.mu.Unlock()

	st.Online = e.monitor.IsOnline()
	if n, err := e.outbox.PendingCount(); err == nil {
		st.PendingCount = n
	}
	if n, err := e.outbox.StalledCount(); err == nil {
		st.StalledCount = n
	}
	if n, err := e.registry.Count(); err == nil {
		st.ConflictCount = n
	}
	return st
}
