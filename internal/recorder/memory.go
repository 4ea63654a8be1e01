package recorder

import (
	"fmt"
	"sync"
	"time"

	"usnwatch/internal/collector"
)

// MemoryRecorder is an in-memory implementation of the Recorder
// interface, useful for tests and for running the collector without a
// database. Safe for concurrent use.
type MemoryRecorder struct {
	mu       sync.Mutex
	entities map[string]string // "volume/frn" -> entity id
	recorded []*recordedActivity
	ttl      time.Duration
	nextID   int
}

type recordedActivity struct {
	id        string
	entityID  string
	activity  *collector.Activity
	expiresAt time.Time
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder(ttl time.Duration) *MemoryRecorder {
	return &MemoryRecorder{
		entities: make(map[string]string),
		ttl:      ttl,
	}
}

// RecordBatch stores the batch and returns sequential storage IDs.
func (m *MemoryRecorder) RecordBatch(activities []*collector.Activity) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		key := fmt.Sprintf("%s/%d", a.Volume, a.FileRefNumber)
		entityID, ok := m.entities[key]
		if !ok {
			entityID = fmt.Sprintf("entity-%d", len(m.entities)+1)
			m.entities[key] = entityID
		}

		m.nextID++
		id := fmt.Sprintf("activity-%d", m.nextID)
		m.recorded = append(m.recorded, &recordedActivity{
			id:        id,
			entityID:  entityID,
			activity:  a,
			expiresAt: now.Add(m.ttl),
		})
		ids = append(ids, id)
	}
	return ids, nil
}

// PurgeExpired drops activities whose retention has lapsed.
func (m *MemoryRecorder) PurgeExpired(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.recorded[:0]
	var purged int64
	for _, r := range m.recorded {
		if r.expiresAt.After(now) {
			kept = append(kept, r)
		} else {
			purged++
		}
	}
	m.recorded = kept
	return purged, nil
}

// Activities returns all recorded activities, in record order.
func (m *MemoryRecorder) Activities() []*collector.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*collector.Activity, len(m.recorded))
	for i, r := range m.recorded {
		out[i] = r.activity
	}
	return out
}

// EntityFor returns the entity ID assigned to (volume, frn), or "".
func (m *MemoryRecorder) EntityFor(volume string, frn uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities[fmt.Sprintf("%s/%d", volume, frn)]
}

// Close is a no-op.
func (m *MemoryRecorder) Close() error { return nil }
