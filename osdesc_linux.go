// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build linux

package namon

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// OSDescription returns a description of the host's operating system in the
// style of "uname -srm", such as "Linux 6.1.0-13-amd64 x86_64".
func OSDescription() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "Linux " + runtime.GOARCH
	}
	return unix.ByteSliceToString(uts.Sysname[:]) + " " +
		unix.ByteSliceToString(uts.Release[:]) + " " +
		unix.ByteSliceToString(uts.Machine[:])
}
