// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Declares the interfaces to packet sources as well as to the individual
// captures.

package namon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/siemens/namon/api"
	"github.com/siemens/namon/pcapng"
	"github.com/siemens/namon/resolver"
	"github.com/siemens/namon/ringbuf"
	log "github.com/sirupsen/logrus"
)

// PacketSource delivers captured packets, such as from a live network
// interface or from a capture file.
//
// ReadPacketData returns io.EOF when the source has run dry. When a source
// temporarily has no packet to deliver, it should return an error with a
// Timeout() method returning true, so that the capture gets a chance to check
// for being stopped.
type PacketSource interface {
	gopacket.PacketDataSource
	// Link-layer type of the packets delivered.
	LinkType() layers.LinkType
	// Close the packet source.
	Close()
}

// SessionResolver resolves flows to owning processes within a process
// introspection session that gets opened for a capture and closed afterwards.
type SessionResolver interface {
	Resolver
	Open(ctx context.Context) error
	Close() error
}

// CaptureStreamer gives control over an individual network packet capture.
type CaptureStreamer interface {
	// Stop this capture in an orderly manner. This operation will block until
	// the capture has finally terminated and all packets captured so far have
	// been written. It is also idempotent.
	Stop()
	// Wait for the capture to terminate, but do not initiate the termination.
	// Returns the error which terminated the capture, if any.
	Wait() error
	// StopAfter waits the specified duration for the capture to terminate, and
	// terminates it after the duration if necessary.
	StopAfter(d time.Duration)
	// Stats returns the capture statistics so far.
	Stats() Stats
}

// Stats are the statistics of a capture.
type Stats struct {
	// Number of packets read from the packet source.
	Captured uint64 `json:"captured" yaml:"captured"`
	// Number of packets written to the capture file.
	Written uint64 `json:"written" yaml:"written"`
	// Number of packets dropped because the ring buffer was full.
	Dropped uint64 `json:"dropped" yaml:"dropped"`
	// Number of failed flow owner and process identity resolutions.
	Unresolved uint64 `json:"unresolved" yaml:"unresolved"`
}

// captureStreamer is the implementation of the CaptureStreamer interface.
type captureStreamer struct {
	src  PacketSource
	res  SessionResolver
	attr *Attributor
	ring *ringbuf.Ring[api.PacketRecord]
	fw   *FileWriter
	opts CaptureOptions

	// Requests the capture to stop.
	stop     chan struct{}
	stopOnce sync.Once
	// Signals that the capture finally has ended, including writing.
	done chan struct{}
	err  error

	m        sync.Mutex
	captured uint64
}

// Stop the packet capture and waits for the capture to gracefully terminate.
// See also Wait() for the usecase where a go routine needs to wait for the
// capture to terminate, but will not initiate the termination itself.
func (cs *captureStreamer) Stop() {
	cs.stopOnce.Do(func() { close(cs.stop) })
	<-cs.done
}

// Wait for the packet capture to terminate, without initiating it. See also
// Stop().
func (cs *captureStreamer) Wait() error {
	<-cs.done
	return cs.err
}

// StopAfter waits for the packet capture to terminate and terminates it after
// the specified duration if necessary.
func (cs *captureStreamer) StopAfter(d time.Duration) {
	select {
	case <-cs.done:
		// We're toast.
	case <-time.After(d):
		cs.Stop()
	}
}

// Stats returns the capture statistics so far.
func (cs *captureStreamer) Stats() Stats {
	cs.m.Lock()
	captured := cs.captured
	cs.m.Unlock()
	_, dropped := cs.ring.Stats()
	return Stats{
		Captured:   captured,
		Written:    cs.fw.Written(),
		Dropped:    dropped,
		Unresolved: cs.attr.Unresolved(),
	}
}

// StartCapture starts capturing packets from the specified packet source,
// attributing the packets to their owning processes using the resolver res,
// and writing them in pcapng format to w. StartCapture writes the capture
// file headers before returning; failing to write them fails the capture.
//
// The capture takes ownership of the packet source and closes it when the
// capture terminates. The capture opens the resolver's introspection session
// and closes it when the capture terminates; if the session cannot be opened,
// packets get attributed only to process IDs.
func StartCapture(w io.Writer, src PacketSource, res SessionResolver, opts *CaptureOptions) (CaptureStreamer, error) {
	o := opts.withDefaults()
	pw, err := pcapng.NewWriter(w, &pcapng.SessionInfo{
		OS:             OSDescription(),
		Application:    "namon " + SemVersion,
		Interface:      o.Interface,
		LinkType:       src.LinkType(),
		SnapLen:        o.SnapLen,
		CaptureFilter:  o.Filter,
		NoProm:         o.AvoidPromiscuousMode,
		BufferCapacity: o.BufferCapacity,
	})
	if err != nil {
		src.Close()
		return nil, err
	}

	identities := true
	if err := res.Open(context.Background()); err != nil {
		log.Warnf("process identities unavailable: %s", err.Error())
		identities = false
	}
	var starts resolver.StartTimer
	if st, ok := res.(resolver.StartTimer); ok {
		starts = st
	}

	ring := ringbuf.New[api.PacketRecord](o.BufferCapacity)
	cs := &captureStreamer{
		src:  src,
		res:  res,
		attr: NewAttributor(res, NewResolutionCache(o.CacheSize, starts), o.ResolveTimeout, identities),
		ring: ring,
		fw:   StartFileWriter(ring, pw),
		opts: o,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	log.Infof("capturing from %q, link type %s, snap length %d",
		o.Interface, src.LinkType(), o.SnapLen)
	go cs.capture()
	return cs, nil
}

// timeout is implemented by errors signalling that there is nothing to read
// yet.
type timeout interface {
	Timeout() bool
}

// capture reads packets from the packet source until either the source runs
// dry, the capture is stopped, or the file writer fails. Each packet gets
// attributed and pushed into the ring buffer. Finally, capture waits for the
// file writer to drain the ring buffer and releases the capture's resources.
func (cs *captureStreamer) capture() {
	defer close(cs.done)
	defer cs.res.Close()
	defer cs.attr.Close()
	defer cs.src.Close()

	linktype := cs.src.LinkType()
	var srcerr error
loop:
	for {
		select {
		case <-cs.stop:
			log.Debug("capture stopped")
			break loop
		case <-cs.fw.Done():
			break loop
		default:
		}
		data, ci, err := cs.src.ReadPacketData()
		if err != nil {
			var to timeout
			if errors.As(err, &to) && to.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) {
				srcerr = fmt.Errorf("cannot read packets: %w", err)
				log.Errorf("packet source failed: %s", err.Error())
			} else {
				log.Debug("packet source exhausted")
			}
			break loop
		}
		cs.m.Lock()
		cs.captured++
		cs.m.Unlock()

		rec := api.PacketRecord{
			CapturedLength: uint32(len(data)),
			OriginalLength: uint32(ci.Length),
			Timestamp:      api.Microseconds(ci.Timestamp),
			Data:           data,
		}
		if rec.OriginalLength < rec.CapturedLength {
			rec.OriginalLength = rec.CapturedLength
		}
		if flow, ok := FlowOf(data, linktype, cs.opts.LocalAddrs); ok {
			rec.Owner = cs.attr.Attribute(flow)
			rec.Attributed = true
		}
		if !cs.ring.Push(rec) {
			if _, dropped := cs.ring.Stats(); dropped == 1 || dropped%1000 == 0 {
				log.Warnf("capture file writer falling behind, %d packets dropped so far", dropped)
			}
		}
	}

	cs.ring.Close()
	fwerr := cs.fw.Wait()
	switch {
	case fwerr != nil:
		cs.err = fwerr
	case srcerr != nil:
		cs.err = srcerr
	}
	stats := cs.Stats()
	log.Infof("capture ended: %d packets captured, %d written, %d dropped, %d unresolved",
		stats.Captured, stats.Written, stats.Dropped, stats.Unresolved)
}
