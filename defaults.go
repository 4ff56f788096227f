// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import "time"

const (
	// DefaultBufferCapacity specifies the number of packet records the ring
	// buffer between capture and file writing can hold.
	DefaultBufferCapacity = 4096

	// DefaultCacheSize specifies the maximum number of flow and process
	// entries each kept in the resolution cache.
	DefaultCacheSize = 4096

	// DefaultResolveTimeout specifies how long the capture waits for a process
	// identity query before writing a packet without application identity.
	DefaultResolveTimeout = 250 * time.Millisecond

	// DefaultSnapLen specifies the maximum number of octets captured from each
	// packet.
	DefaultSnapLen = 262144
)

// identityQueryLimit caps identity queries that continue in the background
// after the resolve timeout has passed.
const identityQueryLimit = 10 * time.Second

// recycleRecheckInterval specifies how long a cached process is trusted before
// its start time gets checked again for a recycled PID.
const recycleRecheckInterval = time.Second
