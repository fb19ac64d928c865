package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tracevia/cmmsgo/internal/remote"
)

// Monitor tracks reachability of the remote API with periodic health
// probes. Subscribers get told on every online/offline transition; the
// orchestrator uses the offline to online edge to trigger a catch-up
// cycle.
type Monitor struct {
	client   *remote.Client
	interval time.Duration

	mu               sync.RWMutex
	online           bool
	lastChecked      time.Time
	lastLatency      time.Duration
	consecutiveFails int
	subscribers      []func(online bool)

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a connectivity monitor probing every interval
func NewMonitor(client *remote.Client, interval time.Duration) *Monitor {
	return &Monitor{
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start probes once immediately, then keeps probing in the background
func (m *Monitor) Start() {
	m.Probe()
	go m.loop()
}

// Stop ends the probe loop
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Probe()
		case <-m.stopChan:
			return
		}
	}
}

// Probe runs one health check and updates the online state
func (m *Monitor) Probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := m.client.Health(ctx)
	latency := time.Since(start)

	m.mu.Lock()
	m.lastChecked = time.Now().UTC()
	m.lastLatency = latency
	if err != nil {
		m.consecutiveFails++
	} else {
		m.consecutiveFails = 0
	}
	online := err == nil
	changed := online != m.online
	m.online = online
	subs := append([]func(bool){}, m.subscribers...)
	m.mu.Unlock()

	if changed {
		if online {
			log.Printf("🌐 Remote API reachable (latency %v)", latency)
		} else {
			log.Printf("📴 Remote API unreachable: %v", err)
		}
		for _, fn := range subs {
			fn(online)
		}
	}
	return online
}

// IsOnline returns the last known reachability state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline forces the state, notifying subscribers on change. Used
// when an API call already proved reachability either way, and in
// tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	subs := append([]func(bool){}, m.subscribers...)
	m.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(online)
		}
	}
}

// Subscribe registers a callback for online/offline transitions
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Health reports probe bookkeeping for the status endpoint
func (m *Monitor) Health() (online bool, lastChecked time.Time, latency time.Duration, fails int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online, m.lastChecked, m.lastLatency, m.consecutiveFails
}
