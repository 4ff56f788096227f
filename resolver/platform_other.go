// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build !linux && !windows

package resolver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

var errUnsupportedPlatform = errors.New("not supported on " + runtime.GOOS)

// PlatformTables returns a table source that always fails, as there is no
// connection table support for this platform.
func PlatformTables() TableSource {
	return TableFunc(func(kind Kind) (Table, error) {
		return nil, fmt.Errorf("%w: %s", ErrTableUnavailable, errUnsupportedPlatform.Error())
	})
}

// PlatformSession returns a session that cannot be opened.
func PlatformSession() Session {
	return unsupportedSession{}
}

// PlatformStartTimer returns a start timer that always fails.
func PlatformStartTimer() StartTimer {
	return unsupportedSession{}
}

type unsupportedSession struct{}

func (unsupportedSession) Open(context.Context) error {
	return fmt.Errorf("%w: %s", ErrSessionFailure, errUnsupportedPlatform.Error())
}

func (unsupportedSession) Identity(context.Context, int) (string, error) {
	return "", ErrSessionClosed
}

func (unsupportedSession) Close() error { return nil }

func (unsupportedSession) StartTime(int) (uint64, error) {
	return 0, errUnsupportedPlatform
}
