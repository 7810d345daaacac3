package metrics

// MultiSink fans events out to several sinks. Optional recorder
// interfaces are forwarded only to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDeposit forwards the deposit to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDeposit(ev DepositEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDeposit(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordFire forwards scheduler outcomes.
func (m *MultiSink) RecordFire(ev FireEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FireRecorder); ok {
			if err := rec.RecordFire(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAction forwards action events.
func (m *MultiSink) RecordAction(ev ActionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ActionRecorder); ok {
			if err := rec.RecordAction(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleet forwards fleet snapshots.
func (m *MultiSink) RecordFleet(ev FleetEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetRecorder); ok {
			if err := rec.RecordFleet(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
