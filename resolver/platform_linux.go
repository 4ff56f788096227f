// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build linux

package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vishvananda/netlink"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// procRoot is where procfs is mounted.
const procRoot = "/proc"

// PlatformTables returns the Linux connection tables, fetched via sock_diag
// netlink queries.
func PlatformTables() TableSource {
	return &netlinkTables{procRoot: procRoot}
}

// PlatformSession returns a procfs introspection session.
func PlatformSession() Session {
	return &procSession{root: procRoot}
}

// PlatformStartTimer returns the procfs-based process start times.
func PlatformStartTimer() StartTimer {
	return procStartTimer(procRoot)
}

// netlinkTables fetches connection tables using sock_diag and then attributes
// sockets to processes using their inode numbers.
type netlinkTables struct {
	procRoot string
}

var _ OwnerSource = (*netlinkTables)(nil)

// Table returns a snapshot of the specified connection table, with all rows
// attributed to their owning processes.
func (nt *netlinkTables) Table(kind Kind) (Table, error) {
	table, err := nt.snapshot(kind)
	if err != nil {
		return nil, err
	}
	owners := socketOwners(nt.procRoot)
	for idx := range table {
		table[idx].Pid = owners[table[idx].Inode]
	}
	return table, nil
}

// Owner returns the PID of the process owning the socket bound to the
// specified local endpoint. Only the matching socket gets attributed to its
// process, and only if there is a matching socket at all.
func (nt *netlinkTables) Owner(kind Kind, local netip.AddrPort) (int, bool, error) {
	table, err := nt.snapshot(kind)
	if err != nil {
		return 0, false, err
	}
	row := table.Lookup(local)
	if row == nil {
		return 0, false, nil
	}
	return socketOwner(nt.procRoot, row.Inode), true, nil
}

// snapshot returns the sockets of the specified kind with their inode
// numbers, but without their owners.
func (nt *netlinkTables) snapshot(kind Kind) (Table, error) {
	family := uint8(unix.AF_INET)
	if kind.AddrLen() == 16 {
		family = unix.AF_INET6
	}
	var socks []*netlink.Socket
	var err error
	switch kind {
	case TCP4, TCP6:
		socks, err = netlink.SocketDiagTCP(family)
	case UDP4, UDP6:
		socks, err = netlink.SocketDiagUDP(family)
	default:
		return nil, fmt.Errorf("%w: table kind %s", ErrUnsupportedFlow, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s sock_diag query failed: %s",
			ErrTableUnavailable, kind, err.Error())
	}
	table := make(Table, 0, len(socks))
	for _, sock := range socks {
		local, ok := addrFrom(kind, sock.ID.Source)
		if !ok {
			continue
		}
		remote, _ := addrFrom(kind, sock.ID.Destination)
		table = append(table, Row{
			Local:  netip.AddrPortFrom(local, sock.ID.SourcePort),
			Remote: netip.AddrPortFrom(remote, sock.ID.DestinationPort),
			Inode:  uint64(sock.INode),
		})
	}
	return table, nil
}

// socketOwners returns a map from socket inode numbers to the PIDs of the
// processes having file descriptors referencing these sockets. Processes we
// aren't allowed to inspect are silently skipped. When multiple processes
// share the same socket, the first process found wins.
func socketOwners(root string) map[uint64]int {
	owners := map[uint64]int{}
	walkSockets(root, func(pid int, ino uint64) bool {
		if _, ok := owners[ino]; !ok {
			owners[ino] = pid
		}
		return true
	})
	return owners
}

// socketOwner returns the PID of the first process found having a file
// descriptor referencing the socket with the specified inode number, or 0.
func socketOwner(root string, inode uint64) int {
	if inode == 0 {
		return 0
	}
	owner := 0
	walkSockets(root, func(pid int, ino uint64) bool {
		if ino != inode {
			return true
		}
		owner = pid
		return false
	})
	return owner
}

// walkSockets calls fn for each socket file descriptor of each process, with
// the PID and the socket's inode number, until fn returns false.
func walkSockets(root string, fn func(pid int, ino uint64) bool) {
	procs, err := os.ReadDir(root)
	if err != nil {
		log.Debugf("cannot read %s: %s", root, err.Error())
		return
	}
	for _, proc := range procs {
		pid, err := strconv.Atoi(proc.Name())
		if err != nil || pid <= 0 {
			continue
		}
		fddir := filepath.Join(root, proc.Name(), "fd")
		fds, err := os.ReadDir(fddir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fddir, fd.Name()))
			if err != nil || !strings.HasPrefix(link, "socket:[") || !strings.HasSuffix(link, "]") {
				continue
			}
			ino, err := strconv.ParseUint(link[len("socket:["):len(link)-1], 10, 64)
			if err != nil {
				continue
			}
			if !fn(pid, ino) {
				return
			}
		}
	}
}

// procSession is a process introspection session on a procfs mount. The
// session keeps the procfs root directory open for its lifetime and opens
// per-process files relative to it.
type procSession struct {
	root string
	m    sync.Mutex
	dir  *os.File
}

// Open opens the procfs root directory and checks that it actually is procfs.
func (ps *procSession) Open(ctx context.Context) error {
	ps.m.Lock()
	defer ps.m.Unlock()
	if ps.dir != nil {
		return nil
	}
	dir, err := os.Open(ps.root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionFailure, err.Error())
	}
	var stfs unix.Statfs_t
	if err := unix.Fstatfs(int(dir.Fd()), &stfs); err != nil {
		dir.Close()
		return fmt.Errorf("%w: %s", ErrSessionFailure, err.Error())
	}
	if stfs.Type != unix.PROC_SUPER_MAGIC {
		dir.Close()
		return fmt.Errorf("%w: %s is not a procfs mount", ErrSessionFailure, ps.root)
	}
	ps.dir = dir
	return nil
}

// Close closes the procfs root directory.
func (ps *procSession) Close() error {
	ps.m.Lock()
	defer ps.m.Unlock()
	if ps.dir == nil {
		return nil
	}
	err := ps.dir.Close()
	ps.dir = nil
	return err
}

// Identity returns the command line of the process with the specified PID or,
// if the command line is empty (such as for kernel threads and zombies), the
// path of the process' executable. Reading a process' command line might
// block on the process' memory lock, so the read is bounded by the context.
func (ps *procSession) Identity(ctx context.Context, pid int) (string, error) {
	ps.m.Lock()
	dir := ps.dir
	ps.m.Unlock()
	if dir == nil {
		return "", ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSessionFailure, err.Error())
	}
	return queryWithContext(ctx, func() (string, error) {
		cmdline, err := readAt(dir, strconv.Itoa(pid)+"/cmdline")
		if err != nil {
			if isGone(err) {
				return "", nil
			}
			return "", err
		}
		cmdline = bytes.TrimRight(cmdline, "\x00")
		if len(cmdline) > 0 {
			return string(bytes.ReplaceAll(cmdline, []byte{0}, []byte{' '})), nil
		}
		exe, err := os.Readlink(filepath.Join(ps.root, strconv.Itoa(pid), "exe"))
		if err != nil {
			return "", nil
		}
		return exe, nil
	})
}

// readAt reads the file at the specified path relative to the directory dir.
func readAt(dir *os.File, path string) ([]byte, error) {
	fd, err := unix.Openat(int(dir.Fd()), path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "openat", Path: path, Err: err}
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()
	return io.ReadAll(f)
}

// isGone returns true if the error indicates a process that doesn't exist
// (anymore) or which we are not allowed to look at.
func isGone(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, unix.ESRCH)
}

// procStartTimer returns process start times in clock ticks since boot, taken
// from field 22 of /proc/[PID]/stat.
type procStartTimer string

// StartTime returns the start time of the process with the specified PID.
func (root procStartTimer) StartTime(pid int) (uint64, error) {
	stat, err := os.ReadFile(filepath.Join(string(root), strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	return parseStartTime(stat)
}

// parseStartTime returns the start time field from the contents of a
// /proc/[PID]/stat file. As the process name in the second field might contain
// spaces and parentheses, the fields get split only after the last closing
// parenthesis.
func parseStartTime(stat []byte) (uint64, error) {
	idx := bytes.LastIndexByte(stat, ')')
	if idx < 0 {
		return 0, errors.New("malformed process stat")
	}
	// The first field after the process name is field 3 (state), so field 22
	// is at index 19.
	fields := strings.Fields(string(stat[idx+1:]))
	if len(fields) < 20 {
		return 0, errors.New("truncated process stat")
	}
	return strconv.ParseUint(fields[19], 10, 64)
}
