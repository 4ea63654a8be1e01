package collector_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"usnwatch/internal/collector"
	"usnwatch/internal/recorder"
	"usnwatch/internal/state"
	"usnwatch/internal/testutil"
	"usnwatch/internal/usn"
)

// captureStore records every Save so tests can assert on commit order.
type captureStore struct {
	initial map[string]int64
	saved   []map[string]int64
	resets  int
	saveErr error
}

func (s *captureStore) Load() (map[string]int64, error) {
	out := make(map[string]int64)
	for k, v := range s.initial {
		out[k] = v
	}
	return out, nil
}

func (s *captureStore) Save(positions map[string]int64, _ time.Time) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	snap := make(map[string]int64)
	for k, v := range positions {
		snap[k] = v
	}
	s.saved = append(s.saved, snap)
	return nil
}

func (s *captureStore) Reset() error {
	s.resets++
	return nil
}

// failingRecorder rejects every batch.
type failingRecorder struct{}

func (failingRecorder) RecordBatch([]*collector.Activity) ([]string, error) {
	return nil, errors.New("hot tier unavailable")
}
func (failingRecorder) PurgeExpired(time.Time) (int64, error) { return 0, nil }
func (failingRecorder) Close() error                          { return nil }

func rawRecord(frn uint64, u int64, reason uint32, name string) usn.RawRecord {
	return usn.RawRecord{
		RecordLength:  64,
		FileRefNumber: frn,
		Usn:           u,
		Timestamp:     usn.TimeToFiletime(time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)),
		Reason:        reason,
		FileName:      name,
	}
}

func TestCollector_CollectActivities(t *testing.T) {
	t.Run("collects and normalizes across volumes in order", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewFakeReader()
		d := testutil.NewFakeReader()
		c.QueueBatch([]usn.RawRecord{rawRecord(1, 100, usn.ReasonFileCreate, "a.txt")}, 164)
		d.QueueBatch([]usn.RawRecord{rawRecord(2, 500, usn.ReasonFileDelete, "b.txt")}, 564)

		store := &captureStore{}
		rec := recorder.NewMemoryRecorder(time.Hour)
		coll, err := collector.NewCollector("p", []string{"C:", "D:"},
			map[string]collector.BatchReader{"C:": c, "D:": d},
			100, store, rec, collector.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		activities, err := coll.CollectActivities()
		if err != nil {
			t.Fatalf("CollectActivities() error = %v", err)
		}

		if len(activities) != 2 {
			t.Fatalf("got %d activities, want 2", len(activities))
		}
		if activities[0].Volume != "C:" || activities[1].Volume != "D:" {
			t.Errorf("volume order = %s, %s; want C:, D:", activities[0].Volume, activities[1].Volume)
		}
		if activities[0].Type != collector.ActivityCreate {
			t.Errorf("activities[0].Type = %s, want CREATE", activities[0].Type)
		}

		cursors := coll.Cursors()
		if cursors["C:"] != 164 || cursors["D:"] != 564 {
			t.Errorf("cursors = %v, want C:164 D:564", cursors)
		}

		if len(store.saved) != 1 {
			t.Fatalf("state saved %d times, want 1", len(store.saved))
		}
		if got := len(rec.Activities()); got != 2 {
			t.Errorf("recorder holds %d activities, want 2", got)
		}
	})

	t.Run("cursors are non-decreasing across cycles", func(t *testing.T) {
		t.Parallel()

		r := testutil.NewFakeReader()
		r.QueueBatch([]usn.RawRecord{rawRecord(1, 100, usn.ReasonDataExtend, "f")}, 164)
		r.QueueBatch(nil, 164)
		r.QueueBatch([]usn.RawRecord{rawRecord(1, 164, usn.ReasonClose, "f")}, 228)

		store := &captureStore{}
		coll, err := collector.NewCollector("p", []string{"C:"},
			map[string]collector.BatchReader{"C:": r},
			100, store, nil, collector.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		var last int64
		for i := 0; i < 3; i++ {
			if _, err := coll.CollectActivities(); err != nil {
				t.Fatalf("cycle %d error = %v", i, err)
			}
			cur := coll.Cursors()["C:"]
			if cur < last {
				t.Fatalf("cycle %d cursor %d went backwards from %d", i, cur, last)
			}
			last = cur
		}
		if last != 228 {
			t.Errorf("final cursor = %d, want 228", last)
		}
	})

	t.Run("read failure on one volume leaves its cursor and the rest of the cycle intact", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewFakeReader()
		d := testutil.NewFakeReader()
		c.QueueError(errors.New("device i/o error"))
		d.QueueBatch([]usn.RawRecord{rawRecord(2, 500, usn.ReasonFileCreate, "ok")}, 564)

		store := &captureStore{initial: map[string]int64{"C:": 100, "D:": 500}}
		coll, err := collector.NewCollector("p", []string{"C:", "D:"},
			map[string]collector.BatchReader{"C:": c, "D:": d},
			100, store, nil, collector.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		activities, err := coll.CollectActivities()
		if err != nil {
			t.Fatalf("CollectActivities() error = %v", err)
		}
		if len(activities) != 1 {
			t.Fatalf("got %d activities, want 1 (healthy volume still collects)", len(activities))
		}

		cursors := coll.Cursors()
		if cursors["C:"] != 100 {
			t.Errorf("failed volume cursor = %d, want unchanged 100", cursors["C:"])
		}
		if cursors["D:"] != 564 {
			t.Errorf("healthy volume cursor = %d, want 564", cursors["D:"])
		}
	})

	t.Run("recorder failure redelivers: cursors stay uncommitted", func(t *testing.T) {
		t.Parallel()

		r := testutil.NewFakeReader()
		r.QueueBatch([]usn.RawRecord{rawRecord(1, 100, usn.ReasonFileCreate, "f")}, 164)

		store := &captureStore{initial: map[string]int64{"C:": 100}}
		coll, err := collector.NewCollector("p", []string{"C:"},
			map[string]collector.BatchReader{"C:": r},
			100, store, failingRecorder{}, collector.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		if _, err := coll.CollectActivities(); err == nil {
			t.Fatal("expected error from failing recorder")
		}

		if got := coll.Cursors()["C:"]; got != 100 {
			t.Errorf("cursor = %d, want pre-cycle 100", got)
		}
		if len(store.saved) != 0 {
			t.Errorf("state saved %d times, want 0", len(store.saved))
		}
	})

	t.Run("respects max records per cycle", func(t *testing.T) {
		t.Parallel()

		r := testutil.NewFakeReader()
		r.QueueBatch([]usn.RawRecord{
			rawRecord(1, 100, usn.ReasonFileCreate, "a"),
			rawRecord(2, 164, usn.ReasonFileCreate, "b"),
			rawRecord(3, 228, usn.ReasonFileCreate, "c"),
		}, 292)

		coll, err := collector.NewCollector("p", []string{"C:"},
			map[string]collector.BatchReader{"C:": r},
			2, &captureStore{}, nil, collector.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		activities, err := coll.CollectActivities()
		if err != nil {
			t.Fatalf("CollectActivities() error = %v", err)
		}
		if len(activities) != 2 {
			t.Errorf("got %d activities, want 2", len(activities))
		}
	})

	t.Run("missing reader for a configured volume is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := collector.NewCollector("p", []string{"C:", "D:"},
			map[string]collector.BatchReader{"C:": testutil.NewFakeReader()},
			100, &captureStore{}, nil, collector.NewNopLogger(), testutil.FixedClock())
		if err == nil {
			t.Fatal("expected error for missing reader")
		}
	})
}

func TestCollector_ResumesFromPersistedState(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "state.json")
	logger := collector.NewNopLogger()

	// Cycle 1: a fresh collector persists cursor 1000 for C:.
	{
		r := testutil.NewFakeReader()
		r.QueueBatch([]usn.RawRecord{rawRecord(1, 900, usn.ReasonDataExtend, "f")}, 1000)

		store := state.NewFileStore(statePath, "p", logger)
		coll, err := collector.NewCollector("p", []string{"C:"},
			map[string]collector.BatchReader{"C:": r},
			100, store, nil, logger, collector.RealClock{})
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		if _, err := coll.CollectActivities(); err != nil {
			t.Fatalf("cycle 1 error = %v", err)
		}
	}

	// Cycle 2: a new process resumes from 1000, not from scratch.
	r := testutil.NewFakeReader()
	store := state.NewFileStore(statePath, "p", logger)
	coll, err := collector.NewCollector("p", []string{"C:"},
		map[string]collector.BatchReader{"C:": r},
		100, store, nil, logger, collector.RealClock{})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if _, err := coll.CollectActivities(); err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}

	if len(r.StartUsns) != 1 || r.StartUsns[0] != 1000 {
		t.Errorf("resumed read started at %v, want [1000]", r.StartUsns)
	}
}

func TestCollector_ResetState(t *testing.T) {
	t.Parallel()

	store := &captureStore{initial: map[string]int64{"C:": 1234}}
	coll, err := collector.NewCollector("p", []string{"C:"},
		map[string]collector.BatchReader{"C:": testutil.NewFakeReader()},
		100, store, nil, collector.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	if err := coll.ResetState(); err != nil {
		t.Fatalf("ResetState() error = %v", err)
	}
	if len(coll.Cursors()) != 0 {
		t.Errorf("cursors = %v, want empty", coll.Cursors())
	}
	if store.resets != 1 {
		t.Errorf("store resets = %d, want 1", store.resets)
	}
}

func TestCollector_RunFinishesCycleOnCancel(t *testing.T) {
	t.Parallel()

	r := testutil.NewFakeReader()
	r.QueueBatch([]usn.RawRecord{rawRecord(1, 100, usn.ReasonFileCreate, "f")}, 164)

	store := &captureStore{}
	rec := recorder.NewMemoryRecorder(time.Hour)
	coll, err := collector.NewCollector("p", []string{"C:"},
		map[string]collector.BatchReader{"C:": r},
		100, store, rec, collector.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := coll.Run(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	// The cycle that was in flight at cancellation completed fully:
	// delivery happened and the cursors were persisted.
	if got := len(rec.Activities()); got != 1 {
		t.Errorf("recorder holds %d activities, want 1", got)
	}
	if len(store.saved) != 1 {
		t.Errorf("state saved %d times, want 1", len(store.saved))
	}
}

func TestCollector_Close(t *testing.T) {
	t.Parallel()

	c := testutil.NewFakeReader()
	d := testutil.NewFakeReader()
	coll, err := collector.NewCollector("p", []string{"C:", "D:"},
		map[string]collector.BatchReader{"C:": c, "D:": d},
		100, &captureStore{}, nil, collector.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	if err := coll.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !c.Closed || !d.Closed {
		t.Error("expected both readers closed")
	}
}
