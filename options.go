// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import "time"

// CaptureOptions describe a set of options giving more detailed control over
// a capture session. Zero values select the corresponding defaults.
type CaptureOptions struct {
	// Name of the network interface captured from, or the name of the capture
	// file replayed. Informational only; it gets recorded in the capture file.
	Interface string
	// Packet capture filter expression, if any. Informational only: the packet
	// source applies the filter. For its syntax, please refer to:
	// https://www.tcpdump.org/manpages/pcap-filter.7.html
	Filter string
	// Maximum number of octets captured per packet; defaults to
	// DefaultSnapLen.
	SnapLen uint32
	// If true, the packet source avoided switching into promiscuous mode.
	// Informational only.
	AvoidPromiscuousMode bool
	// Capacity of the ring buffer between capture and file writing; defaults
	// to DefaultBufferCapacity.
	BufferCapacity int
	// Maximum number of entries in each of the flow and the process
	// resolution caches; defaults to DefaultCacheSize.
	CacheSize int
	// Time limit for waiting on a process identity query; defaults to
	// DefaultResolveTimeout.
	ResolveTimeout time.Duration
	// Addresses of the local host, telling the local side of flows. If empty,
	// the source address of a packet is considered to be local.
	LocalAddrs LocalAddrs
}

// withDefaults returns a copy of the options with the defaults filled in for
// unset options. A nil opts returns all defaults.
func (o *CaptureOptions) withDefaults() CaptureOptions {
	var opts CaptureOptions
	if o != nil {
		opts = *o
	}
	if opts.SnapLen == 0 {
		opts.SnapLen = DefaultSnapLen
	}
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = DefaultBufferCapacity
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	return opts
}
