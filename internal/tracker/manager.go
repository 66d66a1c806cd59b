package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

var ErrTrackerNotFound = errors.New("tracker not found")

// Manager holds one Tracker per client device.
type Manager struct {
	mu       sync.Mutex
	trackers map[string]*Tracker

	saver       Saver
	opts        []Option
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// NewManager starts a cleanup loop that evicts trackers idle for longer than
// idleTimeout. A non-positive timeout disables eviction.
func NewManager(saver Saver, idleTimeout time.Duration, opts ...Option) *Manager {
	m := &Manager{
		trackers:    make(map[string]*Tracker),
		saver:       saver,
		opts:        opts,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}

	if idleTimeout > 0 {
		go m.cleanupLoop()
	}

	return m
}

func (m *Manager) cleanupLoop() {
	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := m.CleanupIdle(now); n > 0 {
				glog.Infof("tracker manager: evicted %d idle trackers", n)
			}
		case <-m.done:
			return
		}
	}
}

// CleanupIdle drops idle trackers whose last activity is older than the idle
// timeout. Trackers that are still tracking are kept.
func (m *Manager) CleanupIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.idleTimeout)
	evicted := 0
	for id, t := range m.trackers {
		if t.State() == Idle && t.LastActivity().Before(cutoff) {
			delete(m.trackers, id)
			evicted++
		}
	}
	return evicted
}

// Get returns the tracker for a device, if any.
func (m *Manager) Get(id string) (*Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trackers[id]
	return t, ok
}

// GetOrCreate returns the device's tracker, creating an idle one on first use.
func (m *Manager) GetOrCreate(id string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trackers[id]
	if !ok {
		t = New(m.saver, m.opts...)
		t.lastActivity = time.Now()
		m.trackers[id] = t
	}
	return t
}

func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trackers[id]; !ok {
		return ErrTrackerNotFound
	}
	delete(m.trackers, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trackers)
}

// Close stops the cleanup loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
