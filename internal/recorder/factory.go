package recorder

import (
	"fmt"
	"path/filepath"
	"time"

	"usnwatch/internal/collector"
	"usnwatch/internal/config"
)

// NewRecorderFromConfig creates a Recorder implementation based on the
// recorder config type.
func NewRecorderFromConfig(cfg config.RecorderConfig, clock collector.Clock) (collector.Recorder, error) {
	ttl := time.Duration(cfg.TTLDays) * 24 * time.Hour

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite recorder")
		}
		return NewSQLiteRecorder(filepath.Join(cfg.DataDir, "activity.db"), ttl, clock)
	case "memory":
		return NewMemoryRecorder(ttl), nil
	default:
		return nil, fmt.Errorf("unknown recorder type: %s", cfg.Type)
	}
}
