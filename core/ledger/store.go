// Package ledger defines persistence for chargers and their append-only
// activity log.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/dobi/core/model"
)

// MaxLogs caps every log read.
const MaxLogs = 500

var (
	// ErrNotFound is returned for unknown charger ids.
	ErrNotFound = errors.New("charger not found")
	// ErrExists is returned when registering an id twice.
	ErrExists = errors.New("charger already exists")
)

// LogQuery filters log reads. Results are newest first.
type LogQuery struct {
	ChargerID string
	// Limit defaults to MaxLogs and is clamped to it.
	Limit int
}

// EffectiveLimit applies the default and the cap.
func (q LogQuery) EffectiveLimit() int {
	if q.Limit <= 0 || q.Limit > MaxLogs {
		return MaxLogs
	}
	return q.Limit
}

// Store persists chargers and logs. Methods that write a log entry do so in
// the same transaction as the charger update: either both happen or
// neither does.
type Store interface {
	CreateCharger(ctx context.Context, c model.Charger) error
	GetCharger(ctx context.Context, id string) (model.Charger, error)
	ListChargers(ctx context.Context) ([]model.Charger, error)
	// SetStatus updates the status without logging.
	SetStatus(ctx context.Context, id string, status model.Status) error
	// Transition updates the status and logs msg with the current totals.
	Transition(ctx context.Context, id string, status model.Status, msg string, at time.Time) (model.LogEntry, error)
	// ApplyTotals replaces the totals and logs msg with the new snapshot.
	ApplyTotals(ctx context.Context, id string, totals model.Totals, msg string, at time.Time) (model.LogEntry, error)
	// AppendLog logs msg with the current totals.
	AppendLog(ctx context.Context, id string, msg string, at time.Time) (model.LogEntry, error)
	Logs(ctx context.Context, q LogQuery) ([]model.LogEntry, error)
	Close() error
}
