package domain

// WindowSize is the number of readings kept for smoothing.
const WindowSize = 10

// CadenceReading is one instantaneous cadence sample.
type CadenceReading struct {
	TimestampMillis int64   `json:"timestampMillis"`
	Cadence         float64 `json:"instantaneousCadence"`
}

// Window keeps the most recent readings, oldest first. Pushing past capacity
// drops the oldest entry.
type Window struct {
	readings []CadenceReading
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowSize
	}
	return &Window{
		readings: make([]CadenceReading, 0, capacity),
		capacity: capacity,
	}
}

func (w *Window) Push(r CadenceReading) {
	if len(w.readings) == w.capacity {
		copy(w.readings, w.readings[1:])
		w.readings[len(w.readings)-1] = r
		return
	}
	w.readings = append(w.readings, r)
}

func (w *Window) Len() int { return len(w.readings) }

func (w *Window) Reset() { w.readings = w.readings[:0] }

// Readings returns a copy of the window contents.
func (w *Window) Readings() []CadenceReading {
	out := make([]CadenceReading, len(w.readings))
	copy(out, w.readings)
	return out
}

// PositiveMean averages the readings above zero. ok is false when there are
// none.
func (w *Window) PositiveMean() (mean float64, ok bool) {
	var sum float64
	var n int
	for _, r := range w.readings {
		if r.Cadence > 0 {
			sum += r.Cadence
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
