package tracker

import (
	"context"
	"time"
)

type EventKind int

const (
	EventSteps EventKind = iota
	EventStart
	EventStop
)

// Event is one message from a sensor feed or control surface.
type Event struct {
	Kind  EventKind
	Steps int
	At    time.Time
	Err   error
}

// Run is the single consumer of a feed. It applies events in order until the
// channel closes or ctx is done. Save results of stops issued here are only
// logged.
func (t *Tracker) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.apply(ev)
		}
	}
}

func (t *Tracker) apply(ev Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case EventStart:
		t.Start(at)
	case EventStop:
		t.Stop(at)
	default:
		if ev.Err != nil {
			t.SensorError(ev.Err)
			return
		}
		t.OnStepCount(ev.Steps, at)
	}
}
