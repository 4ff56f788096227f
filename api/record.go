// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// UnknownPid marks a packet record whose owning process could not be resolved
// because resolution failed (as opposed to no owner existing, which is PID 0).
const UnknownPid = -1

// ProcessIdentity tells which process owns a flow, and the application
// identity (command line or executable path) of that process.
type ProcessIdentity struct {
	// Owning process ID; 0 if no owner was found, UnknownPid if resolution
	// failed.
	Pid int `json:"pid" yaml:"pid"`
	// Application command line or executable path, empty if not resolvable.
	AppName string `json:"app,omitempty" yaml:"app,omitempty"`
}

// Resolved returns true if the identity refers to an owning process.
func (p ProcessIdentity) Resolved() bool {
	return p.Pid > 0
}

// String returns the identity in the form used for packet block comments,
// such as `pid=42 app="/usr/bin/curl -s example.org"`.
func (p ProcessIdentity) String() string {
	switch {
	case p.Pid < 0:
		return "pid=unknown"
	case p.AppName == "":
		return fmt.Sprintf("pid=%d", p.Pid)
	}
	return fmt.Sprintf("pid=%d app=%q", p.Pid, p.AppName)
}

// Comment returns the identity in the same form as String, but at most limit
// octets long. Overlong application identities get cut at a UTF-8 rune
// boundary, so that the result still parses.
func (p ProcessIdentity) Comment(limit int) string {
	s := p.String()
	for len(s) > limit && p.AppName != "" {
		cut := len(p.AppName) - (len(s) - limit)
		if cut < 0 {
			cut = 0
		}
		for cut > 0 && !utf8.RuneStart(p.AppName[cut]) {
			cut--
		}
		p.AppName = p.AppName[:cut]
		s = p.String()
	}
	return s
}

// ParseProcessIdentity parses an identity in the form returned by
// ProcessIdentity.String. It returns false if s isn't a process identity.
func ParseProcessIdentity(s string) (ProcessIdentity, bool) {
	pidf, appf, hasApp := strings.Cut(s, " ")
	pids, ok := strings.CutPrefix(pidf, "pid=")
	if !ok {
		return ProcessIdentity{}, false
	}
	var id ProcessIdentity
	if pids == "unknown" {
		if hasApp {
			return ProcessIdentity{}, false
		}
		return ProcessIdentity{Pid: UnknownPid}, true
	}
	pid, err := strconv.Atoi(pids)
	if err != nil || pid < 0 {
		return ProcessIdentity{}, false
	}
	id.Pid = pid
	if hasApp {
		quoted, ok := strings.CutPrefix(appf, "app=")
		if !ok {
			return ProcessIdentity{}, false
		}
		app, err := strconv.Unquote(quoted)
		if err != nil {
			return ProcessIdentity{}, false
		}
		id.AppName = app
	}
	return id, true
}

// PacketRecord is a single captured packet on its way from the capture path to
// the capture file. The Data slice is owned by the record; whoever creates a
// record must not reuse the underlying array afterwards.
type PacketRecord struct {
	CapturedLength uint32
	OriginalLength uint32
	// Capture timestamp in microseconds since the Unix epoch.
	Timestamp uint64
	Data      []byte
	// Owner attribution of the packet's flow; zero value if the packet does
	// not belong to a TCP or UDP flow.
	Owner ProcessIdentity
	// true if Owner carries an attribution.
	Attributed bool
}

// Microseconds converts a time into microseconds since the Unix epoch, as used
// by PacketRecord.Timestamp.
func Microseconds(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

// Time returns the record's timestamp as a time value.
func (r *PacketRecord) Time() time.Time {
	return time.UnixMicro(int64(r.Timestamp))
}
