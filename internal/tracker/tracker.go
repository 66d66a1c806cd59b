package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/hperssn/cadence/internal/domain"
)

type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

var errNoSaver = errors.New("no saver configured")

// Saver receives finished sessions. storage.Repository and client.Client
// both satisfy it.
type Saver interface {
	Create(ctx context.Context, in domain.SessionInput) (domain.SessionRecord, error)
}

// Finalized is the payload emitted when a tracking cycle stops.
type Finalized struct {
	Timestamp      time.Time
	AverageCadence float64
	TotalSteps     int
	Duration       time.Duration
}

func (f Finalized) Input() domain.SessionInput {
	return domain.NewSessionInput(f.Timestamp, f.AverageCadence, f.TotalSteps, f.Duration.Seconds())
}

// SaveResult reports the outcome of handing a finished session to the Saver.
type SaveResult struct {
	Session Finalized
	Record  domain.SessionRecord
	Err     error
}

// Snapshot is what a passive observer sees.
type Snapshot struct {
	State          string                  `json:"state"`
	IsTracking     bool                    `json:"isTracking"`
	CurrentCadence float64                 `json:"currentCadence"`
	AverageCadence float64                 `json:"averageCadence"`
	TotalSteps     int                     `json:"totalSteps"`
	StartedAt      *time.Time              `json:"startedAt,omitempty"`
	Readings       []domain.CadenceReading `json:"readings"`
}

type Option func(*Tracker)

// WithSaveTimeout bounds each save attempt.
func WithSaveTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.saveTimeout = d }
}

// WithWindowSize overrides the smoothing window capacity.
func WithWindowSize(n int) Option {
	return func(t *Tracker) { t.window = domain.NewWindow(n) }
}

// Tracker is the live cadence state machine. Every transition holds mu, so
// updates from Run and direct calls never interleave.
type Tracker struct {
	mu sync.Mutex

	state          State
	startTime      time.Time
	window         *domain.Window
	currentCadence float64
	averageCadence float64
	totalSteps     int
	lastActivity   time.Time

	saver       Saver
	saveTimeout time.Duration

	subscribers map[chan Snapshot]struct{}
}

func New(saver Saver, opts ...Option) *Tracker {
	t := &Tracker{
		window:      domain.NewWindow(domain.WindowSize),
		saver:       saver,
		saveTimeout: 10 * time.Second,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a tracking cycle. It reports false when already tracking.
func (t *Tracker) Start(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Tracking {
		return false
	}

	t.state = Tracking
	t.startTime = now
	t.lastActivity = now
	t.window.Reset()
	t.totalSteps = 0
	t.currentCadence = 0

	t.publishLocked()
	return true
}

// OnStepCount applies a cumulative step count. Updates while idle, or at or
// before the start instant, are discarded and reported as false.
func (t *Tracker) OnStepCount(steps int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Tracking || steps < 0 {
		return false
	}
	elapsed := now.Sub(t.startTime)
	if elapsed <= 0 {
		return false
	}

	t.currentCadence = float64(steps) / elapsed.Seconds() * 60
	t.window.Push(domain.CadenceReading{
		TimestampMillis: now.UnixMilli(),
		Cadence:         t.currentCadence,
	})
	t.totalSteps = steps
	t.lastActivity = now

	t.publishLocked()
	return true
}

// Stop ends the cycle and hands the finished session to the Saver in the
// background. The returned channel yields exactly one SaveResult. ok is
// false, and the channel nil, when the tracker was already idle.
func (t *Tracker) Stop(now time.Time) (result <-chan SaveResult, ok bool) {
	t.mu.Lock()
	if t.state != Tracking {
		t.mu.Unlock()
		return nil, false
	}

	t.state = Idle
	if mean, ok := t.window.PositiveMean(); ok {
		t.averageCadence = mean
	}
	duration := now.Sub(t.startTime)
	if duration < 0 {
		duration = 0
	}
	t.lastActivity = now

	final := Finalized{
		Timestamp:      now,
		AverageCadence: t.averageCadence,
		TotalSteps:     t.totalSteps,
		Duration:       duration,
	}
	t.publishLocked()
	t.mu.Unlock()

	out := make(chan SaveResult, 1)
	go t.save(final, out)
	return out, true
}

func (t *Tracker) save(final Finalized, out chan<- SaveResult) {
	defer close(out)

	res := SaveResult{Session: final}
	if t.saver == nil {
		res.Err = &domain.NetworkSaveError{Err: errNoSaver}
		glog.Errorf("tracker: %v", res.Err)
		out <- res
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.saveTimeout)
	defer cancel()

	rec, err := t.saver.Create(ctx, final.Input())
	if err != nil {
		res.Err = &domain.NetworkSaveError{Err: err}
		glog.Errorf("tracker: %v", res.Err)
	} else {
		res.Record = rec
		glog.Infof("tracker: saved session %s (avg %.1f spm, %d steps, %.0fs)",
			rec.ID, rec.AverageCadence, rec.TotalSteps, rec.Duration)
	}
	out <- res
}

// SensorError records a failure reported by the motion feed. The tracker
// state is left alone.
func (t *Tracker) SensorError(err error) {
	glog.Warningf("tracker: dropping update: %v", &domain.SensorUpdateError{Err: err})
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastActivity is the time of the most recent transition or accepted update.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          t.state.String(),
		IsTracking:     t.state == Tracking,
		CurrentCadence: t.currentCadence,
		AverageCadence: t.averageCadence,
		TotalSteps:     t.totalSteps,
		Readings:       t.window.Readings(),
	}
	if t.state == Tracking {
		started := t.startTime
		s.StartedAt = &started
	}
	return s
}

// Subscribe returns a channel that receives a snapshot after every state
// change. Slow subscribers miss snapshots rather than block the tracker.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, ch)
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (t *Tracker) publishLocked() {
	if len(t.subscribers) == 0 {
		return
	}
	snap := t.snapshotLocked()
	for ch := range t.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
