// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/siemens/namon/api"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedFlow signals a flow that is neither TCP nor UDP over
	// either IPv4 or IPv6.
	ErrUnsupportedFlow = errors.New("unsupported flow")
	// ErrTableUnavailable signals that an OS connection table could not be
	// fetched.
	ErrTableUnavailable = errors.New("connection table unavailable")
	// ErrSessionFailure signals that the process introspection session could
	// not be established or failed to answer a query in time.
	ErrSessionFailure = errors.New("process introspection session failure")
	// ErrSessionClosed signals an identity query without an open session.
	ErrSessionClosed = errors.New("process introspection session not open")
)

// Session is a connection to an out-of-process introspection service telling
// the application identity of processes. Sessions are opened once, queried
// many times, and then closed once.
type Session interface {
	// Open establishes the session; it must release everything partially
	// acquired if it fails.
	Open(ctx context.Context) error
	// Identity returns the command line or executable path of the process
	// with the specified PID. If the process has no discoverable identity (such
	// as when it already has exited), Identity returns an empty identity, but
	// no error.
	Identity(ctx context.Context, pid int) (string, error)
	// Close ends the session, releasing its resources in reverse acquisition
	// order.
	Close() error
}

// StartTimer tells when a process was started, in some OS-specific monotonic
// unit. Start times allow detecting PIDs recycled for different processes.
type StartTimer interface {
	StartTime(pid int) (uint64, error)
}

// Resolver resolves flows to their owning processes, and processes to their
// application identities.
type Resolver struct {
	tables  TableSource
	session Session
	starts  StartTimer
	m       sync.Mutex
	open    bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTableSource sets the source of connection table snapshots, replacing the
// platform's OS connection tables.
func WithTableSource(ts TableSource) Option {
	return func(r *Resolver) { r.tables = ts }
}

// WithSession sets the process introspection session, replacing the
// platform's introspection service.
func WithSession(s Session) Option {
	return func(r *Resolver) { r.session = s }
}

// WithStartTimer sets the source of process start times.
func WithStartTimer(st StartTimer) Option {
	return func(r *Resolver) { r.starts = st }
}

// New returns a new Resolver, by default using the connection tables,
// introspection service, and process start times of the platform.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		tables:  PlatformTables(),
		session: PlatformSession(),
		starts:  PlatformStartTimer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OwningPid returns the ID of the process owning the local endpoint of the
// specified flow, based on a fresh snapshot of the connection table matching
// the flow's IP version and transport protocol. OwningPid returns 0 if no
// socket matches the flow. It returns an error wrapping ErrUnsupportedFlow for
// flows other than TCP and UDP over IPv4 and IPv6, and an error wrapping
// ErrTableUnavailable if the connection table cannot be fetched.
func (r *Resolver) OwningPid(flow api.Flow) (int, error) {
	kind, err := KindOf(flow.IPVersion(), flow.Protocol())
	if err != nil {
		return 0, err
	}
	if owners, ok := r.tables.(OwnerSource); ok {
		pid, found, err := owners.Owner(kind, flow.Local())
		if err != nil {
			return 0, unavailable(kind, err)
		}
		if !found {
			log.Debugf("no owner for flow %s in %s table", flow, kind)
			return 0, nil
		}
		return pid, nil
	}
	table, err := r.Table(kind)
	if err != nil {
		return 0, err
	}
	pid, ok := table.Match(flow.Local())
	if !ok {
		log.Debugf("no owner for flow %s in %d %s rows", flow, len(table), kind)
		return 0, nil
	}
	return pid, nil
}

// Table returns a fresh snapshot of the specified connection table.
func (r *Resolver) Table(kind Kind) (Table, error) {
	table, err := r.tables.Table(kind)
	if err != nil {
		return nil, unavailable(kind, err)
	}
	return table, nil
}

// unavailable wraps the specified table error into an ErrTableUnavailable
// error, unless it already is one.
func unavailable(kind Kind, err error) error {
	if errors.Is(err, ErrTableUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %s", ErrTableUnavailable, kind, err.Error())
}

// Open opens the process introspection session. Opening an already open
// Resolver is a no-op.
func (r *Resolver) Open(ctx context.Context) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.open {
		return nil
	}
	if err := r.session.Open(ctx); err != nil {
		if errors.Is(err, ErrSessionFailure) {
			return err
		}
		return fmt.Errorf("%w: %s", ErrSessionFailure, err.Error())
	}
	r.open = true
	log.Debug("process introspection session opened")
	return nil
}

// Close closes the process introspection session. It is idempotent.
func (r *Resolver) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	if !r.open {
		return nil
	}
	r.open = false
	log.Debug("closing process introspection session")
	return r.session.Close()
}

// AppIdentity returns the application identity of the process with the
// specified PID, which may be empty if the process has no discoverable
// identity. It returns an error wrapping ErrSessionFailure if the query fails
// or the context expires, and ErrSessionClosed if the Resolver hasn't been
// opened.
func (r *Resolver) AppIdentity(ctx context.Context, pid int) (string, error) {
	r.m.Lock()
	open := r.open
	r.m.Unlock()
	if !open {
		return "", ErrSessionClosed
	}
	app, err := r.session.Identity(ctx, pid)
	if err != nil {
		if errors.Is(err, ErrSessionFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: pid %d: %s", ErrSessionFailure, pid, err.Error())
	}
	return app, nil
}

// StartTime returns the start time of the process with the specified PID, or
// an error if the process doesn't exist (anymore) or cannot be inspected.
func (r *Resolver) StartTime(pid int) (uint64, error) {
	return r.starts.StartTime(pid)
}

// queryWithContext runs the blocking query q in a separate go routine and
// waits for it to complete or for the context to be done, whichever comes
// first. The query keeps running in the background when the context is done
// first; its result then gets discarded.
func queryWithContext(ctx context.Context, q func() (string, error)) (string, error) {
	type result struct {
		app string
		err error
	}
	done := make(chan result, 1)
	go func() {
		app, err := q()
		done <- result{app: app, err: err}
	}()
	select {
	case res := <-done:
		return res.app, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s", ErrSessionFailure, ctx.Err().Error())
	}
}
