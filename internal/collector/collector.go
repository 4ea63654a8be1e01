package collector

import (
	"context"
	"fmt"
	"time"
)

// Collector drives the polling cycle across configured volumes: read a
// batch per volume, normalize, deliver to the recorder, then commit and
// persist cursors. It is single-threaded and pull-based; an external
// scheduler (Run, or a host application) invokes CollectActivities on an
// interval. Calls must be serialized by the owner.
type Collector struct {
	providerID string
	volumes    []string
	readers    map[string]BatchReader
	maxRecords int
	store      StateStore
	recorder   Recorder
	logger     Logger
	clock      Clock

	// cursors holds the last processed USN per volume. A missing entry
	// reads as zero, which the reader resolves to the journal's lowest
	// valid position on the first cycle.
	cursors map[string]int64
}

// NewCollector creates a Collector over the given per-volume readers.
// volumes fixes the processing order. Cursors are loaded from the state
// store; a cold store starts every volume from the journal's current
// window. recorder may be nil when the caller consumes the returned
// activities directly.
func NewCollector(providerID string, volumes []string, readers map[string]BatchReader, maxRecords int, store StateStore, recorder Recorder, logger Logger, clock Clock) (*Collector, error) {
	for _, v := range volumes {
		if _, ok := readers[v]; !ok {
			return nil, fmt.Errorf("no reader for configured volume %s", v)
		}
	}

	cursors, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading collector state: %w", err)
	}

	return &Collector{
		providerID: providerID,
		volumes:    volumes,
		readers:    readers,
		maxRecords: maxRecords,
		store:      store,
		recorder:   recorder,
		logger:     logger,
		clock:      clock,
		cursors:    cursors,
	}, nil
}

// Cursors returns a copy of the current in-memory cursor map.
func (c *Collector) Cursors() map[string]int64 {
	out := make(map[string]int64, len(c.cursors))
	for v, u := range c.cursors {
		out[v] = u
	}
	return out
}

// CollectActivities runs one polling cycle and returns the combined
// normalized activities across all volumes, in volume order.
//
// Delivery is at-least-once: cursors are committed and persisted only
// after the recorder has accepted the whole batch, so a failed delivery
// redelivers the same records on the next cycle. A read failure on one
// volume is fatal for that volume's cycle only (its cursor is untouched
// and retried next cycle); other volumes still collect.
func (c *Collector) CollectActivities() ([]*Activity, error) {
	var activities []*Activity
	pending := make(map[string]int64)

	for _, volume := range c.volumes {
		cursor := c.cursors[volume]

		records, next, err := c.readers[volume].ReadNextBatch(cursor, c.maxRecords)
		if err != nil {
			// Journal reads are non-destructive: keeping the old cursor
			// and retrying next cycle loses nothing.
			c.logger.Error("journal read failed, will retry next cycle",
				"volume", volume, "cursor", cursor, "error", err)
			continue
		}

		for i := range records {
			activities = append(activities, ConvertRecord(&records[i], volume, c.providerID))
		}

		if next != cursor {
			c.logger.Debug("volume cycle complete",
				"volume", volume, "records", len(records), "cursor", cursor, "next", next)
		}
		pending[volume] = next
	}

	if c.recorder != nil && len(activities) > 0 {
		ids, err := c.recorder.RecordBatch(activities)
		if err != nil {
			// Cursors deliberately not committed: the next cycle re-reads
			// and redelivers the same records.
			return nil, fmt.Errorf("recording %d activities: %w", len(activities), err)
		}
		c.logger.Debug("batch recorded", "activities", len(activities), "ids", len(ids))
	}

	for volume, next := range pending {
		c.cursors[volume] = next
	}

	if err := c.store.Save(c.cursors, c.clock.Now()); err != nil {
		// In-memory cursors already advanced; a stale state file only
		// causes redelivery after a restart, which the output contract
		// allows.
		c.logger.Warn("persisting collector state failed", "error", err)
	}

	if c.recorder != nil {
		if purged, err := c.recorder.PurgeExpired(c.clock.Now()); err != nil {
			c.logger.Warn("purging expired activities failed", "error", err)
		} else if purged > 0 {
			c.logger.Debug("expired activities purged", "count", purged)
		}
	}

	return activities, nil
}

// Run polls CollectActivities on the given interval until ctx is
// cancelled. Cancellation is cooperative: the in-flight cycle, including
// state persistence, always completes before Run returns.
func (c *Collector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.CollectActivities(); err != nil {
			c.logger.Error("collection cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResetState clears the in-memory cursors and the persisted state. Meant
// for operator use after an unrecoverable rotation storm.
func (c *Collector) ResetState() error {
	c.cursors = make(map[string]int64)
	if err := c.store.Reset(); err != nil {
		return fmt.Errorf("resetting state store: %w", err)
	}
	return nil
}

// Close releases every volume reader. The first error is returned; all
// readers are closed regardless.
func (c *Collector) Close() error {
	var firstErr error
	for _, volume := range c.volumes {
		if err := c.readers[volume].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing reader for %s: %w", volume, err)
		}
	}
	return firstErr
}
