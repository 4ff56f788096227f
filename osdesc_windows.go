// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build windows

package namon

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

// OSDescription returns a description of the host's operating system, such as
// "Windows 10.0 build 22631 amd64".
func OSDescription() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("Windows %d.%d build %d %s",
		v.MajorVersion, v.MinorVersion, v.BuildNumber, runtime.GOARCH)
}
