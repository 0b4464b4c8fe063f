package metrics

import coremetrics "github.com/minefleet/minefleet/core/metrics"

// MultiSink fans every event out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink over the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordTick(e coremetrics.TickEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTick(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordFrame(e coremetrics.FrameEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordFrame(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordCommand(e coremetrics.CommandEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommand(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordDrop(e coremetrics.DropEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDrop(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordRoster(e coremetrics.RosterEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRoster(e); err != nil {
			return err
		}
	}
	return nil
}
