// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Provides caching flow owners and process identities and looking them up
// again.

package namon

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/siemens/namon/api"
	"github.com/siemens/namon/resolver"
	log "github.com/sirupsen/logrus"
)

// ResolutionCache caches the owning processes of flows as well as the
// application identities of processes. Both caches are bounded and evict
// their least recently used entries. A ResolutionCache can safely be accessed
// simultaneously by multiple go routines.
//
// "No owner" and "empty identity" are valid results and get cached as such.
//
// When given a start timer, the cache remembers the start time of each cached
// process. Looking up an entry whose process has terminated or whose PID has
// been recycled for a different process then misses and evicts the stale
// entry. The start time of a cached process gets checked again at most once
// per recheck interval, so a recycled PID might still hit within this
// interval.
type ResolutionCache struct {
	pids    *lru.Cache // api.FlowKey -> *pidEntry
	apps    *lru.Cache // int -> *appEntry
	starts  resolver.StartTimer
	recheck time.Duration
}

// started tells when a cached process was started and when this was last
// checked.
type started struct {
	start   uint64       // 0 if unknown.
	checked atomic.Int64 // unix nanoseconds.
}

// pidEntry is the cached owner of a flow.
type pidEntry struct {
	pid int
	started
}

// appEntry is the cached identity of a process.
type appEntry struct {
	app string
	started
}

// NewResolutionCache returns a new resolution cache holding at most size flow
// entries and size process entries. A non-positive size selects
// DefaultCacheSize. If starts is nil, cached entries aren't checked for
// recycled PIDs.
func NewResolutionCache(size int, starts resolver.StartTimer) *ResolutionCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New fails only for non-positive sizes.
	pids, _ := lru.New(size)
	apps, _ := lru.New(size)
	return &ResolutionCache{
		pids:    pids,
		apps:    apps,
		starts:  starts,
		recheck: recycleRecheckInterval,
	}
}

// LookupPid returns the cached owning process ID of the flow with the specified
// key, and true if there was a valid cache entry.
func (rc *ResolutionCache) LookupPid(key api.FlowKey) (int, bool) {
	v, ok := rc.pids.Get(key)
	if !ok {
		return 0, false
	}
	entry := v.(*pidEntry)
	if !rc.current(entry.pid, &entry.started) {
		log.Debugf("owner PID %d of flow %s has gone", entry.pid, key.Local)
		rc.pids.Remove(key)
		return 0, false
	}
	return entry.pid, true
}

// StorePid caches the owning process ID of the flow with the specified key. A
// zero pid caches the finding that the flow has no owner.
func (rc *ResolutionCache) StorePid(key api.FlowKey, pid int) {
	entry := &pidEntry{pid: pid}
	rc.stamp(&entry.started, pid)
	rc.pids.Add(key, entry)
}

// LookupApp returns the cached application identity of the process with the
// specified PID, and true if there was a valid cache entry.
func (rc *ResolutionCache) LookupApp(pid int) (string, bool) {
	v, ok := rc.apps.Get(pid)
	if !ok {
		return "", false
	}
	entry := v.(*appEntry)
	if !rc.current(pid, &entry.started) {
		log.Debugf("process PID %d has gone", pid)
		rc.apps.Remove(pid)
		return "", false
	}
	return entry.app, true
}

// StoreApp caches the application identity of the process with the specified
// PID. An empty identity gets cached too.
func (rc *ResolutionCache) StoreApp(pid int, app string) {
	entry := &appEntry{app: app}
	rc.stamp(&entry.started, pid)
	rc.apps.Add(pid, entry)
}

// Len returns the number of cached flow and process entries.
func (rc *ResolutionCache) Len() (flows int, procs int) {
	return rc.pids.Len(), rc.apps.Len()
}

// Clear the cached entries.
func (rc *ResolutionCache) Clear() {
	rc.pids.Purge()
	rc.apps.Purge()
}

// stamp records the current start time of the process with the specified PID,
// if known.
func (rc *ResolutionCache) stamp(s *started, pid int) {
	if rc.starts == nil || pid <= 0 {
		return
	}
	start, err := rc.starts.StartTime(pid)
	if err != nil {
		return
	}
	s.start = start
	s.checked.Store(time.Now().UnixNano())
}

// current returns true if the process with the specified PID still is the
// process that was started at the recorded time. Entries without owner or
// without a known start time are always current. Within the recheck interval
// after the last successful check, entries are considered current without
// asking for the start time again.
func (rc *ResolutionCache) current(pid int, s *started) bool {
	if rc.starts == nil || pid <= 0 || s.start == 0 {
		return true
	}
	now := time.Now()
	if now.Sub(time.Unix(0, s.checked.Load())) < rc.recheck {
		return true
	}
	start, err := rc.starts.StartTime(pid)
	if err != nil || start != s.start {
		return false
	}
	s.checked.Store(now.UnixNano())
	return true
}
