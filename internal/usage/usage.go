// Package usage implements the process-wide, concurrency-safe live
// connection and bandwidth tracker of spec.md §4.E. Grounded on the
// teacher's internal/nntp/nntp-server-statistics.go (atomic counters
// guarded minimally, read without blocking writers) generalized from
// server-wide counters to per-user state, and on
// internal/database/database.go's groupDBs map (a shared map guarded by
// a RWMutex, with per-entry state that itself needs its own lock so a
// lock can be taken without holding the map's lock across a suspension
// point — spec.md §4.E's "deadlock avoidance" note).
package usage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/nntperr"
)

// Decision is the outcome of a gating check.
type Decision int

const (
	Allowed Decision = iota
	DeniedConnectionLimit
	DeniedPostingDisabled
	DeniedBandwidth
)

// Limits is the effective, resolved-from-cache-or-store limit set for
// one user (spec.md §3 UserLimits, with infinities represented as nil).
type Limits = auth.Limits

// bandwidthState is one user's live bandwidth counters, guarded by its
// own mutex so the tracker's outer map lock need not be held while a
// caller awaits anything (spec.md §4.E "deadlock avoidance").
type bandwidthState struct {
	mu              sync.RWMutex
	bytesUploaded   int64
	bytesDownloaded int64
	windowStart     time.Time
}

// Tracker is the process-wide singleton usage tracker.
type Tracker struct {
	authStore *auth.Store
	defaults  atomic.Value // auth.Limits

	connCounts sync.Map // username -> *int64 (atomic)

	bwMu sync.RWMutex
	bw   map[string]*bandwidthState

	limitsCacheMu sync.RWMutex
	limitsCache   map[string]auth.Limits
}

// New creates a Tracker backed by authStore, with the given process-wide defaults.
func New(authStore *auth.Store, defaults auth.Limits) *Tracker {
	t := &Tracker{
		authStore:   authStore,
		bw:          make(map[string]*bandwidthState),
		limitsCache: make(map[string]auth.Limits),
	}
	t.defaults.Store(defaults)
	return t
}

// SetDefaults hot-swaps the process-wide default limits.
func (t *Tracker) SetDefaults(d auth.Limits) { t.defaults.Store(d) }

// InvalidateLimitsCache drops username's cached limits after an
// external update (spec.md §4.E invalidate_limits_cache).
func (t *Tracker) InvalidateLimitsCache(username string) {
	t.limitsCacheMu.Lock()
	delete(t.limitsCache, username)
	t.limitsCacheMu.Unlock()
}

// effectiveLimits resolves cache -> auth store -> defaults.
func (t *Tracker) effectiveLimits(username string) auth.Limits {
	t.limitsCacheMu.RLock()
	if l, ok := t.limitsCache[username]; ok {
		t.limitsCacheMu.RUnlock()
		return l
	}
	t.limitsCacheMu.RUnlock()

	l, err := t.authStore.GetLimits(username)
	if err != nil {
		l = auth.Limits{}
	}
	l = mergeDefaults(l, t.defaults.Load().(auth.Limits))

	t.limitsCacheMu.Lock()
	t.limitsCache[username] = l
	t.limitsCacheMu.Unlock()
	return l
}

func mergeDefaults(l, d auth.Limits) auth.Limits {
	if l.PostingAllowed == nil {
		l.PostingAllowed = d.PostingAllowed
	}
	if l.MaxConnections == nil {
		l.MaxConnections = d.MaxConnections
	}
	if l.BandwidthCapBytes == nil {
		l.BandwidthCapBytes = d.BandwidthCapBytes
	}
	if l.BandwidthWindowSeconds == nil {
		l.BandwidthWindowSeconds = d.BandwidthWindowSeconds
	}
	return l
}

// TryConnect attempts to register a new connection for username,
// enforcing the effective max-connections ceiling (spec.md §4.E
// try_connect).
func (t *Tracker) TryConnect(username string) Decision {
	limits := t.effectiveLimits(username)
	if limits.MaxConnections == nil {
		t.incrConn(username)
		return Allowed
	}
	ceiling := *limits.MaxConnections
	for {
		v, _ := t.connCounts.LoadOrStore(username, new(int64))
		counter := v.(*int64)
		cur := atomic.LoadInt64(counter)
		if cur >= ceiling {
			return DeniedConnectionLimit
		}
		if atomic.CompareAndSwapInt64(counter, cur, cur+1) {
			return Allowed
		}
	}
}

func (t *Tracker) incrConn(username string) {
	v, _ := t.connCounts.LoadOrStore(username, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// Disconnect decrements username's connection count; when it reaches
// zero the map entry is dropped, restored if a racing connect re-added
// references in between (spec.md §4.E disconnect).
func (t *Tracker) Disconnect(username string) {
	v, ok := t.connCounts.Load(username)
	if !ok {
		return
	}
	counter := v.(*int64)
	if atomic.AddInt64(counter, -1) > 0 {
		return
	}
	if !t.connCounts.CompareAndDelete(username, v) {
		return
	}
	// A TryConnect that raced the delete may have bumped this counter
	// again; put its references back into the map.
	if n := atomic.LoadInt64(counter); n > 0 {
		if actual, loaded := t.connCounts.LoadOrStore(username, counter); loaded {
			atomic.AddInt64(actual.(*int64), n)
		}
	}
}

// CanPost reports whether username is currently allowed to post.
func (t *Tracker) CanPost(username string) Decision {
	limits := t.effectiveLimits(username)
	if limits.PostingAllowed != nil && !*limits.PostingAllowed {
		return DeniedPostingDisabled
	}
	return Allowed
}

// getBandwidthState clones out the per-user bandwidth state pointer,
// creating it if absent, then releases the map lock before the caller
// takes the per-entry lock.
func (t *Tracker) getBandwidthState(username string) *bandwidthState {
	t.bwMu.RLock()
	st, ok := t.bw[username]
	t.bwMu.RUnlock()
	if ok {
		return st
	}
	t.bwMu.Lock()
	defer t.bwMu.Unlock()
	if st, ok = t.bw[username]; ok {
		return st
	}
	st = &bandwidthState{windowStart: time.Now()}
	t.bw[username] = st
	return st
}

// CheckBandwidth resets the window if it has elapsed, then reports
// whether adding n bytes would exceed the cap (spec.md §4.E
// check_bandwidth). It does not record the bytes; call RecordBandwidth
// after a successful transfer.
func (t *Tracker) CheckBandwidth(username string, n int64) Decision {
	limits := t.effectiveLimits(username)
	if limits.BandwidthCapBytes == nil {
		return Allowed
	}
	st := t.getBandwidthState(username)
	st.mu.Lock()
	defer st.mu.Unlock()

	t.resetWindowLocked(st, limits)

	if st.bytesUploaded+st.bytesDownloaded+n > *limits.BandwidthCapBytes {
		return DeniedBandwidth
	}
	return Allowed
}

// resetWindowLocked must be called with st.mu held.
func (t *Tracker) resetWindowLocked(st *bandwidthState, limits auth.Limits) {
	if limits.BandwidthWindowSeconds == nil || *limits.BandwidthWindowSeconds <= 0 {
		return // lifetime/absolute cap, no reset
	}
	window := time.Duration(*limits.BandwidthWindowSeconds) * time.Second
	if time.Since(st.windowStart) >= window {
		st.bytesUploaded = 0
		st.bytesDownloaded = 0
		st.windowStart = time.Now()
	}
}

// RecordBandwidth saturating-adds n bytes to username's live counters
// (spec.md §4.E record_bandwidth).
func (t *Tracker) RecordBandwidth(username string, n int64, isUpload bool) {
	st := t.getBandwidthState(username)
	st.mu.Lock()
	defer st.mu.Unlock()
	if isUpload {
		st.bytesUploaded = saturatingAdd(st.bytesUploaded, n)
	} else {
		st.bytesDownloaded = saturatingAdd(st.bytesDownloaded, n)
	}
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if sum < a { // overflow
		return int64(^uint64(0) >> 1)
	}
	return sum
}

// Persist iterates the live bandwidth map and upserts each user's usage
// into the auth store, logging and continuing on individual failures
// (spec.md §4.E persist). It returns the number of users persisted.
func (t *Tracker) Persist(logf func(format string, args ...interface{})) int {
	t.bwMu.RLock()
	snapshot := make(map[string]*bandwidthState, len(t.bw))
	for k, v := range t.bw {
		snapshot[k] = v
	}
	t.bwMu.RUnlock()

	n := 0
	for username, st := range snapshot {
		st.mu.RLock()
		u := auth.Usage{
			BytesUploaded:   st.bytesUploaded,
			BytesDownloaded: st.bytesDownloaded,
			WindowStart:     st.windowStart.Unix(),
		}
		st.mu.RUnlock()

		if err := t.authStore.SetUsage(username, u); err != nil {
			if logf != nil {
				logf("Usage: failed to persist usage for %s: %v", username, err)
			}
			continue
		}
		n++
	}
	return n
}

// LoadUser fetches persisted usage into memory on demand (spec.md §4.E
// load_user), e.g. right after a user's first connection of a new process.
func (t *Tracker) LoadUser(username string) error {
	u, err := t.authStore.GetUsage(username)
	if err != nil {
		return nntperr.Wrap(nntperr.KindDatabase, "load user usage", err)
	}
	st := t.getBandwidthState(username)
	st.mu.Lock()
	st.bytesUploaded = u.BytesUploaded
	st.bytesDownloaded = u.BytesDownloaded
	if u.WindowStart > 0 {
		st.windowStart = time.Unix(u.WindowStart, 0)
	}
	st.mu.Unlock()
	return nil
}
