// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build windows

package resolver

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows"
)

var (
	modiphlpapi             = windows.NewLazySystemDLL("iphlpapi.dll")
	procGetExtendedTcpTable = modiphlpapi.NewProc("GetExtendedTcpTable")
	procGetExtendedUdpTable = modiphlpapi.NewProc("GetExtendedUdpTable")
)

const (
	tcpTableOwnerPidAll = 5
	udpTableOwnerPid    = 1
)

// rowLayout describes the binary layout of the rows of a particular kind of
// connection table, as returned by GetExtendedTcpTable and
// GetExtendedUdpTable. Ports are stored in network byte order in the lower
// 16 bits of a DWORD; addresses in network byte order.
type rowLayout struct {
	size       int
	localAddr  int
	localPort  int
	remoteAddr int // -1 for UDP tables.
	remotePort int // -1 for UDP tables.
	pid        int
}

var layouts = map[Kind]rowLayout{
	// MIB_TCPROW_OWNER_PID: state, local addr, local port, remote addr, remote
	// port, owning PID.
	TCP4: {size: 24, localAddr: 4, localPort: 8, remoteAddr: 12, remotePort: 16, pid: 20},
	// MIB_UDPROW_OWNER_PID: local addr, local port, owning PID.
	UDP4: {size: 12, localAddr: 0, localPort: 4, remoteAddr: -1, remotePort: -1, pid: 8},
	// MIB_TCP6ROW_OWNER_PID: local addr[16], local scope, local port, remote
	// addr[16], remote scope, remote port, state, owning PID.
	TCP6: {size: 56, localAddr: 0, localPort: 20, remoteAddr: 24, remotePort: 44, pid: 52},
	// MIB_UDP6ROW_OWNER_PID: local addr[16], local scope, local port, owning
	// PID.
	UDP6: {size: 28, localAddr: 0, localPort: 20, remoteAddr: -1, remotePort: -1, pid: 24},
}

// PlatformTables returns the Windows connection tables from the IP helper
// API.
func PlatformTables() TableSource {
	return TableFunc(iphlpTable)
}

// PlatformSession returns a WMI introspection session.
func PlatformSession() Session {
	return &wmiSession{}
}

// PlatformStartTimer returns process creation times.
func PlatformStartTimer() StartTimer {
	return processTimes{}
}

// iphlpTable fetches a snapshot of the specified connection table. The table
// buffer is sized by a first call and then filled by a second call; as the
// table might grow in between, this is retried a few times.
func iphlpTable(kind Kind) (Table, error) {
	family := uintptr(windows.AF_INET)
	if kind.AddrLen() == 16 {
		family = uintptr(windows.AF_INET6)
	}
	proc, class := procGetExtendedTcpTable, uintptr(tcpTableOwnerPidAll)
	if kind == UDP4 || kind == UDP6 {
		proc, class = procGetExtendedUdpTable, uintptr(udpTableOwnerPid)
	}
	if err := proc.Find(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTableUnavailable, err.Error())
	}
	var size uint32
	for attempt := 0; attempt < 3; attempt++ {
		var buf []byte
		var bufp uintptr
		if size > 0 {
			buf = make([]byte, size)
			bufp = uintptr(unsafe.Pointer(&buf[0]))
		}
		ret, _, _ := proc.Call(bufp, uintptr(unsafe.Pointer(&size)), 0, family, class, 0)
		switch windows.Errno(ret) {
		case 0:
			if buf == nil {
				return Table{}, nil
			}
			return decodeTable(kind, buf[:size])
		case windows.ERROR_INSUFFICIENT_BUFFER:
			continue
		default:
			return nil, fmt.Errorf("%w: %s: %s", ErrTableUnavailable, kind, windows.Errno(ret).Error())
		}
	}
	return nil, fmt.Errorf("%w: %s table keeps growing", ErrTableUnavailable, kind)
}

// decodeTable decodes the rows of a raw connection table in buf, which starts
// with the number of rows, followed by the rows themselves.
func decodeTable(kind Kind, buf []byte) (Table, error) {
	layout := layouts[kind]
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: %s table truncated", ErrTableUnavailable, kind)
	}
	num := int(binary.LittleEndian.Uint32(buf[0:4]))
	table := make(Table, 0, num)
	alen := kind.AddrLen()
	for idx := 0; idx < num; idx++ {
		offset := 4 + idx*layout.size
		if offset+layout.size > len(buf) {
			log.Warnf("%s table truncated after %d of %d rows", kind, idx, num)
			break
		}
		row := buf[offset : offset+layout.size]
		local, ok := addrFrom(kind, row[layout.localAddr:layout.localAddr+alen])
		if !ok {
			continue
		}
		r := Row{
			Local: netip.AddrPortFrom(local,
				binary.BigEndian.Uint16(row[layout.localPort:layout.localPort+2])),
			Pid: int(binary.LittleEndian.Uint32(row[layout.pid : layout.pid+4])),
		}
		if layout.remoteAddr >= 0 {
			if remote, ok := addrFrom(kind, row[layout.remoteAddr:layout.remoteAddr+alen]); ok {
				r.Remote = netip.AddrPortFrom(remote,
					binary.BigEndian.Uint16(row[layout.remotePort:layout.remotePort+2]))
			}
		}
		table = append(table, r)
	}
	return table, nil
}

// win32Process receives the properties queried from WMI's Win32_Process
// class. Both properties might be NULL.
type win32Process struct {
	CommandLine    *string
	ExecutablePath *string
}

// wmiSession queries process command lines from the WMI root\cimv2
// namespace, connecting once and reusing the connection for all queries.
type wmiSession struct {
	m   sync.Mutex
	svc *wmi.SWbemServices
}

// Open connects to the WMI service.
func (ws *wmiSession) Open(ctx context.Context) error {
	ws.m.Lock()
	defer ws.m.Unlock()
	if ws.svc != nil {
		return nil
	}
	svc, err := wmi.InitializeSWbemServices(wmi.DefaultClient)
	if err != nil {
		return fmt.Errorf("%w: cannot connect to WMI: %s", ErrSessionFailure, err.Error())
	}
	ws.svc = svc
	return nil
}

// Close disconnects from the WMI service.
func (ws *wmiSession) Close() error {
	ws.m.Lock()
	defer ws.m.Unlock()
	if ws.svc == nil {
		return nil
	}
	err := ws.svc.Close()
	ws.svc = nil
	return err
}

// Identity queries the command line of the specified process, falling back to
// its executable path.
func (ws *wmiSession) Identity(ctx context.Context, pid int) (string, error) {
	ws.m.Lock()
	svc := ws.svc
	ws.m.Unlock()
	if svc == nil {
		return "", ErrSessionClosed
	}
	query := fmt.Sprintf(
		"SELECT CommandLine, ExecutablePath FROM Win32_Process WHERE ProcessId = %d", pid)
	return queryWithContext(ctx, func() (string, error) {
		var procs []win32Process
		if err := svc.Query(query, &procs); err != nil {
			return "", err
		}
		if len(procs) == 0 {
			return "", nil
		}
		if cmdline := procs[0].CommandLine; cmdline != nil && *cmdline != "" {
			return *cmdline, nil
		}
		if exe := procs[0].ExecutablePath; exe != nil {
			return *exe, nil
		}
		return "", nil
	})
}

// processTimes returns process creation times as FILETIME values.
type processTimes struct{}

// StartTime returns the creation time of the specified process.
func (processTimes) StartTime(pid int) (uint64, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(h)
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, err
	}
	return uint64(creation.HighDateTime)<<32 | uint64(creation.LowDateTime), nil
}
