// Package peering implements the outbound federation scheduler of
// spec.md §4.J: one independently scheduled job per configured peer,
// each running sync_peer_once against a watermark of the last
// successful run. Grounded on the teacher's internal/nntp/
// nntp-peering.go (Peer struct, pattern-based send/accept filtering,
// TLS dial) generalized from the teacher's ACL/DNS-heavy inbound peer
// model to newsd's simpler outbound-only transfer job, and on
// nntp-client.go's BackendConn for the raw dial/greeting/auth shape
// reused here as a one-shot transfer connection instead of a pooled
// backend.
package peering

import (
	"log"
	"sync"
	"time"

	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/wildmat"
	"github.com/nntpcore/newsd/internal/wire"
)

// Deps are the collaborators a sync job needs.
type Deps struct {
	Store  *store.Store
	Config *config.Cell
}

// Scheduler runs one goroutine per configured peer. Each goroutine
// fires sync_peer_once on its own ticker, matching spec.md's "one task
// per peer job" concurrency note.
type Scheduler struct {
	deps     Deps
	wg       *sync.WaitGroup
	shutdown chan struct{}

	mu       sync.Mutex
	lastSync map[string]time.Time // keyed by peer Addr; zero value means "never"
}

// NewScheduler builds a Scheduler. wg is the externally owned
// waitgroup every peer goroutine registers against, matching the
// session package's Server/wg contract.
func NewScheduler(deps Deps, wg *sync.WaitGroup) *Scheduler {
	return &Scheduler{
		deps:     deps,
		wg:       wg,
		shutdown: make(chan struct{}),
		lastSync: make(map[string]time.Time),
	}
}

// Start launches one job goroutine per peer in the current config
// snapshot. Peers added by a later config reload are not picked up;
// a full scheduler restart is required, same posture as the session
// server's listener configuration.
func (s *Scheduler) Start() {
	cfg := s.deps.Config.Snapshot()
	for _, pc := range cfg.Peers {
		pc := pc
		s.wg.Add(1)
		go s.runPeer(pc)
	}
}

// Stop signals every peer goroutine to exit after its current sync
// completes.
func (s *Scheduler) Stop() {
	close(s.shutdown)
}

func (s *Scheduler) runPeer(pc config.PeerConfig) {
	defer s.wg.Done()

	interval, err := time.ParseDuration(pc.Schedule)
	if err != nil || interval <= 0 {
		interval = 5 * time.Minute
		log.Printf("peering: peer %s has no usable schedule (%q), defaulting to %s", pc.SiteName, pc.Schedule, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.syncPeerOnce(pc)
		}
	}
}

func (s *Scheduler) getLastSync(addr string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync[addr]
}

func (s *Scheduler) setLastSync(addr string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[addr] = t
}

// syncPeerOnce implements spec.md §4.J's five-step algorithm. A failure
// opening the connection, or a failure listing a group's articles,
// aborts the whole job without advancing the watermark, so the next
// tick retries from the same point. A failure transferring one article
// is logged and skipped; it never aborts the job.
func (s *Scheduler) syncPeerOnce(pc config.PeerConfig) {
	cfg := s.deps.Config.Snapshot()
	last := s.getLastSync(pc.Addr)

	groups, err := s.deps.Store.ListGroups()
	if err != nil {
		log.Printf("peering: peer %s: list groups: %v", pc.SiteName, err)
		return
	}
	var matched []string
	for _, g := range groups {
		if wildmat.MatchAny(g, pc.Patterns) {
			matched = append(matched, g)
		}
	}
	if len(matched) == 0 {
		s.setLastSync(pc.Addr, time.Now())
		return
	}

	conn, err := dialPeer(pc)
	if err != nil {
		log.Printf("peering: peer %s: dial: %v", pc.SiteName, err)
		return
	}
	defer conn.close()

	if err := conn.readGreeting(); err != nil {
		log.Printf("peering: peer %s: greeting: %v", pc.SiteName, err)
		return
	}
	if pc.Streaming {
		conn.sendModeStream() // response ignored per spec.md §4.J step 4
	}

	aborted := false
	sent := 0
	for _, group := range matched {
		nids, err := s.deps.Store.ListArticleIDsSince(group, last)
		if err != nil {
			log.Printf("peering: peer %s: list articles in %s: %v", pc.SiteName, group, err)
			aborted = true
			break
		}
		for _, nid := range nids {
			if err := s.transferOne(conn, pc, cfg.SiteName, nid.MessageID); err != nil {
				log.Printf("peering: peer %s: transfer %s: %v", pc.SiteName, nid.MessageID, err)
				continue
			}
			sent++
		}
	}

	if !aborted {
		s.setLastSync(pc.Addr, time.Now())
	}
	log.Printf("peering: peer %s: sent %d article(s), aborted=%v", pc.SiteName, sent, aborted)
}

// transferOne fetches one article, applies Path-based loop suppression,
// and streams it to the peer via IHAVE or TAKETHIS depending on
// the peer's streaming mode (spec.md §4.J step 3-4).
func (s *Scheduler) transferOne(conn *peerConn, pc config.PeerConfig, localSite, id string) error {
	msg, err := s.deps.Store.GetArticleByID(id)
	if err != nil {
		return err
	}
	if pathHasToken(msg, pc.SiteName) {
		return nil // loop suppression: the peer already has this article
	}
	prependPath(msg, localSite)

	if pc.Streaming {
		return conn.takeThis(id, msg)
	}
	return conn.iHave(id, msg)
}

func pathHasToken(msg *wire.Message, token string) bool {
	if token == "" {
		return false
	}
	path, ok := msg.Get("Path")
	if !ok {
		return false
	}
	for _, part := range splitBang(path) {
		if part == token {
			return true
		}
	}
	return false
}

func prependPath(msg *wire.Message, localSite string) {
	if localSite == "" {
		return
	}
	path, ok := msg.Get("Path")
	if !ok || path == "" {
		msg.Set("Path", localSite)
		return
	}
	msg.Set("Path", localSite+"!"+path)
}

func splitBang(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '!' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
