// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build !linux && !windows

package namon

import "runtime"

// OSDescription returns a description of the host's operating system.
func OSDescription() string {
	return runtime.GOOS + " " + runtime.GOARCH
}
