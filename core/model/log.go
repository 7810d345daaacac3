package model

import "time"

// LogEntry is one row of the append-only activity log.
type LogEntry struct {
	ID        int64     `json:"id"`
	ChargerID string    `json:"charger_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Totals
}
