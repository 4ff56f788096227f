// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siemens/namon/api"
	log "github.com/sirupsen/logrus"
)

// Resolver resolves flows to their owning processes and processes to their
// application identities; see also [resolver.Resolver].
type Resolver interface {
	OwningPid(flow api.Flow) (int, error)
	AppIdentity(ctx context.Context, pid int) (string, error)
}

// Attributor attributes flows to their owning processes, consulting its
// resolution cache first and its resolver only on cache misses. Resolution
// failures are never cached, so they will be retried with the next packet of
// the same flow.
//
// Owner resolution and identity queries together are waited for only up to
// the resolve timeout; slower resolutions continue in the background and store
// their results in the cache when done. There is at most one owner resolution
// per flow and one identity query per PID in flight.
type Attributor struct {
	res        Resolver
	cache      *ResolutionCache
	timeout    time.Duration
	identities bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	m       sync.Mutex
	pending map[int]chan struct{}
	owners  map[api.FlowKey]chan struct{}

	unresolved atomic.Uint64
}

// NewAttributor returns a new Attributor using the specified resolver and
// cache. If identities is false, then flows are only attributed to process
// IDs without application identities. A non-positive timeout selects
// DefaultResolveTimeout.
func NewAttributor(res Resolver, cache *ResolutionCache, timeout time.Duration, identities bool) *Attributor {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Attributor{
		res:        res,
		cache:      cache,
		timeout:    timeout,
		identities: identities,
		ctx:        ctx,
		cancel:     cancel,
		pending:    map[int]chan struct{}{},
		owners:     map[api.FlowKey]chan struct{}{},
	}
}

// Attribute returns the identity of the process owning the specified flow.
// The returned identity has a zero PID if the flow has no owner, and
// api.UnknownPid if the owner could not be resolved (yet).
func (a *Attributor) Attribute(flow api.Flow) api.ProcessIdentity {
	deadline := time.Now().Add(a.timeout)
	key := flow.Key()
	pid, ok := a.cache.LookupPid(key)
	if !ok {
		if pid, ok = a.owner(flow, deadline); !ok {
			return api.ProcessIdentity{Pid: api.UnknownPid}
		}
	}
	if pid <= 0 || !a.identities {
		return api.ProcessIdentity{Pid: pid}
	}
	app, ok := a.cache.LookupApp(pid)
	if !ok {
		app = a.identity(pid, deadline)
	}
	return api.ProcessIdentity{Pid: pid, AppName: app}
}

// owner resolves the owning process of the specified flow, waiting at most
// until the deadline. It returns false if the resolution fails or is still in
// progress.
func (a *Attributor) owner(flow api.Flow, deadline time.Time) (int, bool) {
	key := flow.Key()
	a.m.Lock()
	done, busy := a.owners[key]
	if !busy {
		done = make(chan struct{})
		a.owners[key] = done
		a.wg.Add(1)
		go a.resolve(flow, done)
	}
	a.m.Unlock()

	if !wait(done, deadline) {
		log.Debugf("owner resolution for flow %s continues in background", flow)
		return 0, false
	}
	return a.cache.LookupPid(key)
}

// resolve runs a single owner resolution for the specified flow, caching its
// result on success. It closes done when finished.
func (a *Attributor) resolve(flow api.Flow, done chan struct{}) {
	key := flow.Key()
	defer a.wg.Done()
	defer func() {
		a.m.Lock()
		delete(a.owners, key)
		a.m.Unlock()
		close(done)
	}()
	pid, err := a.res.OwningPid(flow)
	if err != nil {
		a.failed("cannot resolve owner of flow %s: %s", flow, err.Error())
		return
	}
	a.cache.StorePid(key, pid)
}

// identity queries the application identity of the process with the specified
// PID, waiting at most until the deadline. It returns an empty identity if the
// query fails or is still in progress.
func (a *Attributor) identity(pid int, deadline time.Time) string {
	a.m.Lock()
	done, busy := a.pending[pid]
	if !busy {
		done = make(chan struct{})
		a.pending[pid] = done
		a.wg.Add(1)
		go a.query(pid, done)
	}
	a.m.Unlock()

	if !wait(done, deadline) {
		log.Debugf("identity query for PID %d continues in background", pid)
		return ""
	}
	app, _ := a.cache.LookupApp(pid)
	return app
}

// wait returns true if done gets closed before the deadline.
func wait(done <-chan struct{}, deadline time.Time) bool {
	select {
	case <-done:
		return true
	default:
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// query runs a single identity query for the specified PID, caching its result
// on success. It closes done when finished.
func (a *Attributor) query(pid int, done chan struct{}) {
	defer a.wg.Done()
	defer func() {
		a.m.Lock()
		delete(a.pending, pid)
		a.m.Unlock()
		close(done)
	}()
	ctx, cancel := context.WithTimeout(a.ctx, identityQueryLimit)
	defer cancel()
	app, err := a.res.AppIdentity(ctx, pid)
	if err != nil {
		a.failed("cannot query identity of PID %d: %s", pid, err.Error())
		return
	}
	a.cache.StoreApp(pid, app)
	log.Debugf("PID %d identity: %q", pid, app)
}

// failed counts and logs a resolution failure.
func (a *Attributor) failed(format string, args ...interface{}) {
	a.unresolved.Add(1)
	log.Debugf(format, args...)
}

// Unresolved returns the number of resolution failures so far.
func (a *Attributor) Unresolved() uint64 {
	return a.unresolved.Load()
}

// Close cancels any identity queries still running in the background and
// waits for them as well as for any owner resolutions to finish.
func (a *Attributor) Close() {
	a.cancel()
	a.wg.Wait()
}
