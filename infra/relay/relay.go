// Package relay bridges the bus to processes that can only speak through
// the filesystem. Outbound records dropped into a directory are published
// and deleted; inbound bus traffic is persisted as one JSON file per
// message for the other process to pick up.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/internal/clock"
)

// Record is the file format of one relayed message.
type Record struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Config holds the relay directories and scan cadence.
type Config struct {
	// ToBusDir is scanned for records to publish.
	ToBusDir string `json:"to_bus_dir"`
	// FromBusDir receives a file per message observed on Topics.
	FromBusDir string `json:"from_bus_dir"`
	ScanMS     int    `json:"scan_ms"`
	// Topics are the bus subscriptions mirrored into FromBusDir.
	Topics []string `json:"topics"`
}

// SetDefaults mirrors the full truck topic family at a 100ms scan.
func (c *Config) SetDefaults() {
	if c.ToBusDir == "" {
		c.ToBusDir = "relay/to_bus"
	}
	if c.FromBusDir == "" {
		c.FromBusDir = "relay/from_bus"
	}
	if c.ScanMS <= 0 {
		c.ScanMS = 100
	}
	if len(c.Topics) == 0 {
		c.Topics = []string{bus.AllSensors, bus.AllState, bus.AllCommands}
	}
}

// ScanPeriod returns the directory scan cadence.
func (c Config) ScanPeriod() time.Duration {
	return time.Duration(c.ScanMS) * time.Millisecond
}

// Writer persists bus messages as relay records, one file per message.
type Writer struct {
	dir string
}

// NewWriter creates the directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("relay: create %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Write stores one record. The file appears atomically under its final
// name so a concurrent reader never sees a half-written record.
func (w *Writer) Write(topic string, payload []byte, now time.Time) error {
	rec := Record{Topic: topic, Payload: payload, Timestamp: now.UnixMilli()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("relay: encode record: %w", err)
	}
	name := uuid.NewString() + ".json"
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("relay: write record: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name)); err != nil {
		return fmt.Errorf("relay: publish record: %w", err)
	}
	return nil
}

// Reader consumes relay records from a directory, deleting each file once
// read. It tolerates files disappearing mid-scan and malformed content.
type Reader struct {
	dir string
	log logger.Logger
}

// NewReader creates the directory if needed so the first scan cannot fail.
func NewReader(dir string, log logger.Logger) (*Reader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("relay: create %s: %w", dir, err)
	}
	return &Reader{dir: dir, log: log}, nil
}

// Consume reads and removes every complete record currently in the
// directory. A malformed file is deleted and skipped so it cannot wedge
// the scan forever.
func (r *Reader) Consume() []Record {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.Warnf("relay: scan %s: %v", r.dir, err)
		return nil
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(r.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				r.log.Warnf("relay: read %s: %v", path, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.Warnf("relay: remove %s: %v", path, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.Topic == "" {
			r.log.Warnf("relay: malformed record %s dropped", name)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Bridge runs both relay directions against the bus.
type Bridge struct {
	cfg    Config
	bus    bus.Bus
	clk    clock.Clock
	log    logger.Logger
	writer *Writer
	reader *Reader
}

// NewBridge wires a bridge; directories are created here.
func NewBridge(cfg Config, b bus.Bus, clk clock.Clock, log logger.Logger) (*Bridge, error) {
	w, err := NewWriter(cfg.FromBusDir)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(cfg.ToBusDir, log)
	if err != nil {
		return nil, err
	}
	return &Bridge{cfg: cfg, bus: b, clk: clk, log: log, writer: w, reader: r}, nil
}

// Run mirrors bus traffic to files and publishes filed records until the
// context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for _, topic := range b.cfg.Topics {
		if err := b.bus.Subscribe(topic, b.onMessage); err != nil {
			return fmt.Errorf("relay: subscribe %s: %w", topic, err)
		}
	}
	b.log.Infof("relay bridge running: %s -> bus, bus -> %s", b.cfg.ToBusDir, b.cfg.FromBusDir)

	ticker := b.clk.NewTicker(b.cfg.ScanPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			b.pump()
		}
	}
}

func (b *Bridge) onMessage(topic string, payload []byte) {
	if err := b.writer.Write(topic, payload, b.clk.Now()); err != nil {
		b.log.Warnf("relay: persist %s: %v", topic, err)
	}
}

// pump publishes everything waiting in the to-bus directory.
func (b *Bridge) pump() {
	for _, rec := range b.reader.Consume() {
		if err := b.bus.Publish(rec.Topic, rec.Payload); err != nil {
			b.log.Warnf("relay: publish %s: %v", rec.Topic, err)
		}
	}
}
