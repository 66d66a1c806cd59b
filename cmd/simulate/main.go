// Command simulate drives a local cadence tracker with a synthetic pedometer
// and saves the finished session to a running cadence server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"

	"github.com/hperssn/cadence/internal/client"
	"github.com/hperssn/cadence/internal/config"
	"github.com/hperssn/cadence/internal/tracker"
)

var (
	duration  = flag.Duration("duration", 30*time.Second, "length of the simulated session")
	rate      = flag.Float64("rate", 165, "target cadence in steps per minute")
	interval  = flag.Duration("interval", time.Second, "time between pedometer samples")
	errorRate = flag.Float64("error-rate", 0, "probability that a sample is a sensor error")
	baseURL   = flag.String("api", "", "cadence server base url (defaults to API_BASE_URL)")
)

var errSensorGlitch = errors.New("pedometer read failed")

func main() {
	flag.Parse()
	defer glog.Flush()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("failed to load configuration: %v", err)
	}
	if *baseURL != "" {
		cfg.APIBaseURL = *baseURL
	}

	api := client.New(cfg.APIBaseURL, nil)
	t := tracker.New(api, tracker.WithSaveTimeout(cfg.SaveTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan tracker.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx, events)
	}()

	updates, cancel := t.Subscribe()
	go func() {
		for snap := range updates {
			if snap.IsTracking {
				fmt.Printf("\rcadence %6.1f spm  steps %5d", snap.CurrentCadence, snap.TotalSteps)
			}
		}
	}()

	glog.Infof("pedometer available, simulating %s at %.0f spm", *duration, *rate)
	simulate(ctx, events, *duration, *interval, *rate, *errorRate)
	close(events)
	<-done
	cancel()
	fmt.Println()

	result, ok := t.Stop(time.Now())
	if !ok {
		glog.Exitf("tracker was not running")
	}
	res := <-result
	if res.Err != nil {
		glog.Exitf("session not saved: %v", res.Err)
	}

	fmt.Printf("saved session %s\n", res.Record.ID)
	fmt.Printf("  average cadence  %.1f spm\n", res.Record.AverageCadence)
	fmt.Printf("  total steps      %d\n", res.Record.TotalSteps)
	fmt.Printf("  duration         %s\n", res.Record.FormattedDuration())

	sctx, scancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
	defer scancel()
	summary, err := api.Summary(sctx)
	if err != nil {
		glog.Warningf("fetch summary: %v", err)
		return
	}
	fmt.Printf("all sessions: %d records, %.2f spm average, %d steps, %.0fs\n",
		summary.TotalRecords, summary.AverageCadence, summary.TotalSteps, summary.TotalDuration)
}

// simulate emits a start event followed by cumulative step counts near the
// target rate until the duration elapses or ctx is done.
func simulate(ctx context.Context, events chan<- tracker.Event, d, every time.Duration, spm, errRate float64) {
	send := func(ev tracker.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(tracker.Event{Kind: tracker.EventStart, At: time.Now()}) {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	deadline := time.NewTimer(d)
	defer deadline.Stop()

	steps := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case now := <-ticker.C:
			ev := tracker.Event{Err: errSensorGlitch, At: now}
			if rand.Float64() >= errRate {
				steps += spm * every.Minutes() * (0.9 + rand.Float64()*0.2)
				ev = tracker.Event{Steps: int(steps), At: now}
			}
			if !send(ev) {
				return
			}
		}
	}
}
