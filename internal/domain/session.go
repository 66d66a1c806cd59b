package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the ISO-8601 form every stored timestamp uses.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// SessionRecord is one finished session as persisted by a store.
type SessionRecord struct {
	ID             string  `json:"id"`
	Timestamp      string  `json:"timestamp"`
	AverageCadence float64 `json:"averageCadence"`
	TotalSteps     int     `json:"totalSteps"`
	Duration       float64 `json:"duration"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
}

// FormattedDuration renders the duration as mm:ss.
func (r SessionRecord) FormattedDuration() string {
	total := int(r.Duration)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// SessionFields holds the user-settable fields of a session. A nil field was
// not supplied.
type SessionFields struct {
	Timestamp      *time.Time
	AverageCadence *float64
	TotalSteps     *int
	Duration       *float64

	invalid []string
}

// SessionInput is the payload accepted by Create.
type SessionInput struct {
	SessionFields
}

// SessionPatch names every field Update may overwrite.
type SessionPatch struct {
	SessionFields
}

// NewSessionInput builds a fully populated create payload.
func NewSessionInput(ts time.Time, averageCadence float64, totalSteps int, duration float64) SessionInput {
	return SessionInput{SessionFields{
		Timestamp:      &ts,
		AverageCadence: &averageCadence,
		TotalSteps:     &totalSteps,
		Duration:       &duration,
	}}
}

// Float returns a pointer to v for building SessionFields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v for building SessionFields.
func Int(v int) *int { return &v }

// Time returns a pointer to v for building SessionFields.
func Time(v time.Time) *time.Time { return &v }

// FormatTime renders t in TimeLayout, always in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 variants clients send.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON coerces numeric strings and epoch milliseconds into the
// declared field types. Fields that cannot be coerced are remembered and
// reported by Validate.
func (f *SessionFields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = SessionFields{}

	if v, ok := present(raw, "timestamp"); ok {
		if t, ok := coerceTime(v); ok {
			f.Timestamp = &t
		} else {
			f.invalid = append(f.invalid, "timestamp")
		}
	}
	if v, ok := present(raw, "averageCadence"); ok {
		if n, ok := coerceFloat(v); ok {
			f.AverageCadence = &n
		} else {
			f.invalid = append(f.invalid, "averageCadence")
		}
	}
	if v, ok := present(raw, "totalSteps"); ok {
		if n, ok := coerceFloat(v); ok {
			steps := int(math.Trunc(n))
			f.TotalSteps = &steps
		} else {
			f.invalid = append(f.invalid, "totalSteps")
		}
	}
	if v, ok := present(raw, "duration"); ok {
		if n, ok := coerceFloat(v); ok {
			f.Duration = &n
		} else {
			f.invalid = append(f.invalid, "duration")
		}
	}
	return nil
}

// MarshalJSON writes only the supplied fields.
func (f SessionFields) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4)
	if f.Timestamp != nil {
		out["timestamp"] = FormatTime(*f.Timestamp)
	}
	if f.AverageCadence != nil {
		out["averageCadence"] = *f.AverageCadence
	}
	if f.TotalSteps != nil {
		out["totalSteps"] = *f.TotalSteps
	}
	if f.Duration != nil {
		out["duration"] = *f.Duration
	}
	return json.Marshal(out)
}

func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func coerceFloat(v json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func coerceTime(v json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		t, err := ParseTimestamp(s)
		return t, err == nil && inLayoutRange(t)
	}
	var ms float64
	if err := json.Unmarshal(v, &ms); err == nil {
		if math.IsNaN(ms) || math.Abs(ms) > maxEpochMillis {
			return time.Time{}, false
		}
		t := time.UnixMilli(int64(ms)).UTC()
		return t, inLayoutRange(t)
	}
	return time.Time{}, false
}

// maxEpochMillis keeps the int64 conversion exact.
const maxEpochMillis = 1 << 53

// inLayoutRange reports whether t renders as a four-digit year in TimeLayout.
func inLayoutRange(t time.Time) bool {
	return t.Year() >= 0 && t.Year() <= 9999
}

// checkRanges reports supplied fields whose value is out of range.
func (f SessionFields) checkRanges() []string {
	var bad []string
	if f.AverageCadence != nil && (*f.AverageCadence < 0 || math.IsNaN(*f.AverageCadence)) {
		bad = append(bad, "averageCadence")
	}
	if f.TotalSteps != nil && *f.TotalSteps < 0 {
		bad = append(bad, "totalSteps")
	}
	if f.Duration != nil && (*f.Duration < 0 || math.IsNaN(*f.Duration)) {
		bad = append(bad, "duration")
	}
	return bad
}

// Validate checks that every required field is present and well formed.
func (in SessionInput) Validate() error {
	var missing []string
	if in.Timestamp == nil && !contains(in.invalid, "timestamp") {
		missing = append(missing, "timestamp")
	}
	if in.AverageCadence == nil && !contains(in.invalid, "averageCadence") {
		missing = append(missing, "averageCadence")
	}
	if in.TotalSteps == nil && !contains(in.invalid, "totalSteps") {
		missing = append(missing, "totalSteps")
	}
	if in.Duration == nil && !contains(in.invalid, "duration") {
		missing = append(missing, "duration")
	}

	invalid := append(append([]string(nil), in.invalid...), in.checkRanges()...)
	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	return &ValidationError{Missing: missing, Invalid: invalid}
}

// NewRecord validates in and builds the record a store appends.
func NewRecord(in SessionInput, now time.Time) (SessionRecord, error) {
	if err := in.Validate(); err != nil {
		return SessionRecord{}, err
	}
	return SessionRecord{
		ID:             uuid.NewString(),
		Timestamp:      FormatTime(*in.Timestamp),
		AverageCadence: *in.AverageCadence,
		TotalSteps:     *in.TotalSteps,
		Duration:       *in.Duration,
		CreatedAt:      FormatTime(now),
	}, nil
}

// Validate rejects malformed or negative values. Absent fields are fine.
func (p SessionPatch) Validate() error {
	invalid := append(append([]string(nil), p.invalid...), p.checkRanges()...)
	if len(invalid) == 0 {
		return nil
	}
	return &ValidationError{Invalid: invalid}
}

// Apply overwrites the supplied fields of rec and stamps UpdatedAt. ID and
// CreatedAt are never touched.
func (p SessionPatch) Apply(rec SessionRecord, now time.Time) (SessionRecord, error) {
	if err := p.Validate(); err != nil {
		return rec, err
	}
	if p.Timestamp != nil {
		rec.Timestamp = FormatTime(*p.Timestamp)
	}
	if p.AverageCadence != nil {
		rec.AverageCadence = *p.AverageCadence
	}
	if p.TotalSteps != nil {
		rec.TotalSteps = *p.TotalSteps
	}
	if p.Duration != nil {
		rec.Duration = *p.Duration
	}
	rec.UpdatedAt = FormatTime(now)
	return rec, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
