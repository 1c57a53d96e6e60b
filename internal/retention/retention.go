// Package retention implements the fixed-interval expiry sweep of
// spec.md §4.K. Grounded on the teacher's internal/database.CronDB /
// cleanupIdleGroups (database.go): a time.Sleep-loop cron running in
// its own goroutine, here driving purge_group_before, Expires: header
// expiry, and purge_orphan_messages instead of the teacher's idle
// per-group database handle eviction.
package retention

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/store"
)

// DefaultInterval matches the teacher's CronDB cadence order of
// magnitude, scaled up since expiry sweeps are far cheaper to run less
// often than the teacher's idle-handle eviction.
const DefaultInterval = 10 * time.Minute

// Sweeper runs the retention sweep on a fixed interval until stopped.
type Sweeper struct {
	store    *store.Store
	cfg      *config.Cell
	interval time.Duration
	shutdown chan struct{}
	wg       *sync.WaitGroup
}

// NewSweeper builds a Sweeper. A non-positive interval falls back to
// DefaultInterval.
func NewSweeper(st *store.Store, cfg *config.Cell, interval time.Duration, wg *sync.WaitGroup) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: st, cfg: cfg, interval: interval, shutdown: make(chan struct{}), wg: wg}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit after its current sweep completes.
func (s *Sweeper) Stop() {
	close(s.shutdown)
}

func (s *Sweeper) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce implements spec.md §4.K: per-group purge_group_before
// using the resolved retention window, then an Expires: header scan
// across every remaining article, then a final orphan-message purge.
func (s *Sweeper) sweepOnce() {
	cfg := s.cfg.Snapshot()
	now := time.Now()

	groups, err := s.store.ListGroups()
	if err != nil {
		log.Printf("retention: list groups: %v", err)
		return
	}

	for _, group := range groups {
		window := cfg.ResolveRetentionSeconds(group)
		if window > 0 {
			cutoff := now.Add(-time.Duration(window) * time.Second)
			n, err := s.store.PurgeGroupBefore(group, cutoff)
			if err != nil {
				log.Printf("retention: purge %s before %s: %v", group, cutoff, err)
				continue
			}
			if n > 0 {
				log.Printf("retention: purged %d article(s) from %s older than %s", n, group, cutoff)
			}
		}

		s.expireHeaders(group, now)
	}

	if n, err := s.store.PurgeOrphanMessages(); err != nil {
		log.Printf("retention: purge orphan messages: %v", err)
	} else if n > 0 {
		log.Printf("retention: purged %d orphan message(s)", n)
	}
}

// expireHeaders scans group's remaining articles for an Expires:
// header and deletes any whose deadline has passed.
func (s *Sweeper) expireHeaders(group string, now time.Time) {
	ids, err := s.store.ListArticleIDs(group)
	if err != nil {
		log.Printf("retention: list articles in %s: %v", group, err)
		return
	}
	for _, nid := range ids {
		msg, err := s.store.GetArticleByID(nid.MessageID)
		if err != nil {
			continue
		}
		raw, ok := msg.Get("Expires")
		if !ok {
			continue
		}
		expires, err := parseHeaderDate(raw)
		if err != nil {
			continue
		}
		if !expires.After(now) {
			if err := s.store.DeleteArticleByID(nid.MessageID); err != nil {
				log.Printf("retention: delete expired %s: %v", nid.MessageID, err)
			}
		}
	}
}

// parseHeaderDate parses an Expires: value as RFC-2822 (the Usenet
// Date: header format) or RFC-3339, per spec.md §4.K.
func parseHeaderDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC1123Z, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC822Z, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, &parseDateError{raw}
}

type parseDateError struct{ raw string }

func (e *parseDateError) Error() string { return "unparsable date: " + strconv.Quote(e.raw) }
