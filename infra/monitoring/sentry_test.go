package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dobi/config"
	coremon "github.com/kilianp07/dobi/core/monitoring"
)

func TestEmptyDSNDisablesReporting(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestInvalidDSNRejected(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestSentryMonitorCapture(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{DSN: "https://public@127.0.0.1:1/1", Environment: "test"})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.CaptureException(nil, nil)
		m.CaptureException(errors.New("boom"), nil)
		m.CaptureException(errors.New("boom"), map[string]string{"module": "scheduler", "charger_id": "C1"})
		m.Flush(10 * time.Millisecond)
	})
}
