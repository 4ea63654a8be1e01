package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"usnwatch/internal/collector"
	"usnwatch/internal/config"
	"usnwatch/internal/recorder"
	"usnwatch/internal/state"
	"usnwatch/internal/usn"
)

// WatchApp is the application layer between the CLI and the Collector.
// It constructs all dependencies from config and manages their lifecycle
// on Close. The caller must call Close when done.
type WatchApp struct {
	cfg       *config.Config
	collector *collector.Collector
	recorder  collector.Recorder
	store     collector.StateStore
	logger    collector.Logger
	logFile   *os.File
}

// NewWatchApp creates a fully wired WatchApp from the given config.
// runID identifies the CLI invocation and is threaded into every log line.
// Opening the volume devices requires administrator privileges on Windows
// and fails everywhere else.
func NewWatchApp(cfg *config.Config, runID string) (*WatchApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, runID, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store := newStateStore(cfg, logger)

	rec, err := recorder.NewRecorderFromConfig(cfg.Recorder, collector.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating recorder: %w", err)
	}

	readers, err := openReaders(cfg.Volumes)
	if err != nil {
		rec.Close()
		logFile.Close()
		return nil, err
	}

	coll, err := collector.NewCollector(cfg.ProviderID, cfg.Volumes, readers, cfg.MaxRecordsPerCycle, store, rec, logger, collector.RealClock{})
	if err != nil {
		for _, r := range readers {
			r.Close()
		}
		rec.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating collector: %w", err)
	}

	return &WatchApp{
		cfg:       cfg,
		collector: coll,
		recorder:  rec,
		store:     store,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// newStateStore builds the cursor store from config: a JSON file when
// persistence is enabled, memory-only otherwise.
func newStateStore(cfg *config.Config, logger collector.Logger) collector.StateStore {
	if cfg.State.Enabled {
		return state.NewFileStore(cfg.State.Path, cfg.ProviderID, logger)
	}
	return state.NewMemoryStore()
}

// openReaders opens a journal reader per configured volume. On failure,
// already opened readers are closed before returning.
func openReaders(volumes []string) (map[string]collector.BatchReader, error) {
	readers := make(map[string]collector.BatchReader, len(volumes))
	for _, v := range volumes {
		dev, err := usn.NewDevice(v)
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, fmt.Errorf("opening volume %s: %w", v, err)
		}
		rd, err := usn.NewReader(v, dev)
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, err
		}
		readers[v] = rd
	}
	return readers, nil
}

// CollectOnce runs a single collection cycle and returns the activities.
func (a *WatchApp) CollectOnce() ([]*collector.Activity, error) {
	return a.collector.CollectActivities()
}

// Run polls collection cycles until ctx is cancelled. The in-flight
// cycle always completes before Run returns.
func (a *WatchApp) Run(ctx context.Context) error {
	interval := time.Duration(a.cfg.PollIntervalSeconds) * time.Second
	a.logger.Info("collector running", "volumes", len(a.cfg.Volumes), "interval", interval)
	return a.collector.Run(ctx, interval)
}

// Cursors returns the collector's current per-volume cursors.
func (a *WatchApp) Cursors() map[string]int64 {
	return a.collector.Cursors()
}

// ResetState clears in-memory and persisted cursors.
func (a *WatchApp) ResetState() error {
	return a.collector.ResetState()
}

// RecentActivities returns the most recently recorded activities, newest
// first. Only available with the sqlite recorder.
func (a *WatchApp) RecentActivities(limit int) ([]*recorder.RecentActivity, error) {
	sq, ok := a.recorder.(*recorder.SQLiteRecorder)
	if !ok {
		return nil, fmt.Errorf("recent activities require the sqlite recorder (configured: %s)", a.cfg.Recorder.Type)
	}
	return sq.Recent(limit)
}

// Close releases all resources: volume readers, the recorder, and the
// log file. The first error is returned; everything is closed regardless.
func (a *WatchApp) Close() error {
	var firstErr error

	if err := a.collector.Close(); err != nil {
		firstErr = err
	}

	if err := a.recorder.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing recorder: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// JournalInfo opens the given volume and returns its journal metadata
// snapshot. This is a standalone query: it does not need a configured
// collector, only device access.
func JournalInfo(volume string) (usn.JournalInfo, error) {
	dev, err := usn.NewDevice(volume)
	if err != nil {
		return usn.JournalInfo{}, err
	}
	defer dev.Close()

	return dev.Query()
}
