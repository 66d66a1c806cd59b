package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/hperssn/cadence/internal/tracker"
)

const feedReadTimeout = 60 * time.Second

type feedMessage struct {
	Type      string     `json:"type"`
	Steps     int        `json:"steps"`
	Timestamp *time.Time `json:"timestamp"`
	Error     string     `json:"error"`
}

func (m feedMessage) event(now time.Time) tracker.Event {
	at := now
	if m.Timestamp != nil {
		at = *m.Timestamp
	}

	switch m.Type {
	case "start":
		return tracker.Event{Kind: tracker.EventStart, At: at}
	case "stop":
		return tracker.Event{Kind: tracker.EventStop, At: at}
	}
	ev := tracker.Event{Kind: tracker.EventSteps, Steps: m.Steps, At: at}
	if m.Error != "" {
		ev.Err = errors.New(m.Error)
	}
	return ev
}

// feed ingests a sensor stream over a websocket. Messages are queued on a
// channel that the tracker consumes in order.
func (h *TrackerHandler) feed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "device")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("feed %s: upgrade failed: %v", id, err)
		return
	}
	defer conn.Close()

	t := h.manager.GetOrCreate(id)
	events := make(chan tracker.Event, 32)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx, events)
	}()

	conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})

	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("feed %s: read: %v", id, err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		events <- msg.event(h.now())
	}

	close(events)
	<-done
}
