// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package resolver maps observed flows to the processes owning their local
sockets, and processes to their application identities.

Owner resolution takes a fresh snapshot of the OS connection table matching
the flow's IP version and transport protocol and searches it for the flow's
local address and port. There are four kinds of tables: TCP and UDP, each for
IPv4 and IPv6. On Linux, tables are fetched using sock_diag netlink queries,
with socket inodes then mapped to processes via procfs. On Windows, tables are
fetched using GetExtendedTcpTable and GetExtendedUdpTable.

Application identities are queried through an introspection [Session] that is
opened once per monitoring run: on Windows this is a WMI session querying
Win32_Process, on Linux a session on the procfs mount.

Failures are reported as errors wrapping [ErrUnsupportedFlow],
[ErrTableUnavailable], or [ErrSessionFailure], so callers can tell them apart
from the valid "no owner" (PID 0) and "no identity" (empty) results.
*/
package resolver
