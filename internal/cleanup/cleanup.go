// Package cleanup retires finished terminals past the retention window
// and reconciles orphaned log files.
package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-conductor/conductord/internal/store"
)

// Terminals is the slice of the terminal manager the sweeper needs.
type Terminals interface {
	Delete(id string) error
}

type Sweeper struct {
	store     *store.Store
	terminals Terminals
	logDir    string
	retention time.Duration
}

func NewSweeper(st *store.Store, terminals Terminals, logDir string, retention time.Duration) *Sweeper {
	return &Sweeper{store: st, terminals: terminals, logDir: logDir, retention: retention}
}

// PurgeTerminals deletes COMPLETED and ERROR terminals older than the
// retention window. Per-terminal failures are logged and skipped.
func (s *Sweeper) PurgeTerminals(now time.Time) (purged int, err error) {
	cutoff := now.Add(-s.retention)
	stale, err := s.store.ListPurgeableTerminals(cutoff)
	if err != nil {
		return 0, err
	}
	for _, t := range stale {
		if err := s.terminals.Delete(t.ID); err != nil {
			log.Printf("cleanup: purging terminal %s: %v", t.ID, err)
			continue
		}
		purged++
	}
	return purged, nil
}

// PurgeOrphanLogs removes terminal log files whose terminal record is
// gone.
func (s *Sweeper) PurgeOrphanLogs() (removed int, err error) {
	ids, err := s.store.ListTerminalIDs()
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		id := strings.TrimSuffix(name, ".log")
		if ids[id] {
			continue
		}
		if err := os.Remove(filepath.Join(s.logDir, name)); err != nil {
			log.Printf("cleanup: removing orphan log %s: %v", name, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Run performs one full cleanup sweep.
func (s *Sweeper) Run(now time.Time) {
	if n, err := s.PurgeTerminals(now); err != nil {
		log.Printf("cleanup: terminal purge: %v", err)
	} else if n > 0 {
		log.Printf("cleanup: purged %d terminals", n)
	}
	if n, err := s.PurgeOrphanLogs(); err != nil {
		log.Printf("cleanup: orphan log purge: %v", err)
	} else if n > 0 {
		log.Printf("cleanup: removed %d orphan logs", n)
	}
}
