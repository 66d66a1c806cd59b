package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no record carries the requested id.
var ErrNotFound = errors.New("cadence record not found")

// ValidationError lists the fields that were missing or could not be coerced.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Fields returns every offending field name.
func (e *ValidationError) Fields() []string {
	return append(append([]string(nil), e.Missing...), e.Invalid...)
}

// PersistenceError wraps a failure of the underlying storage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SensorUpdateError is reported by the motion feed. The tracker drops the
// update that carried it.
type SensorUpdateError struct {
	Err error
}

func (e *SensorUpdateError) Error() string {
	return fmt.Sprintf("sensor update: %v", e.Err)
}

func (e *SensorUpdateError) Unwrap() error { return e.Err }

// NetworkSaveError is the failure of handing a finished session to the store.
type NetworkSaveError struct {
	Err error
}

func (e *NetworkSaveError) Error() string {
	return fmt.Sprintf("save session: %v", e.Err)
}

func (e *NetworkSaveError) Unwrap() error { return e.Err }
