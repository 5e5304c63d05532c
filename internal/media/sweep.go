package media

import (
	"os"
	"path/filepath"
	"time"

	logx "newsroom/pkg/logx"
)

// SweepStale removes staging files older than the retention window that no
// live pending article references. This is a backstop against crashed
// schedule attempts, not the primary cleanup path (Promote and ReleaseStaged
// are).
//
// inUse reports whether a staging filename belongs to a live pending
// article.
func (s *Stager) SweepStale(now time.Time, retention time.Duration, inUse func(name string) bool) (int, error) {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	cutoff := now.Add(-retention)

	entries, err := os.ReadDir(s.staging)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if inUse != nil && inUse(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.staging, name)
		if err := os.Remove(path); err != nil {
			s.log.Warn("stale staging file not removed", logx.String("path", path), logx.Err(err))
			continue
		}
		s.log.Info("removed stale staging file", logx.String("name", name), logx.Time("mtime", info.ModTime()))
		removed++
	}
	return removed, nil
}
