// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"errors"
	"syscall"
)

// A Category is the category of a particular transport error, as
// reported by function Categorize().
//
// The category Not means the error does not fall into any of the
// recognized transport failure classes. The operator maps every other
// category onto a distinct network error status, so that callers can
// tell a timeout from a refused connection without inspecting the
// underlying cause.
type Category int

const (
	// Not indicates an error which is not in any recognized category.
	Not Category = iota
	// Timeout indicates a client-side timeout. The server may be going
	// through a temporary period of slowness, or the client may succeed
	// on a future attempt waiting longer (increasing its timeout).
	//
	// Function Categorize() will return Timeout if the error or any of
	// its wrapped causes has a Timeout() function that reports true.
	Timeout
	// ConnRefused indicates the remote host refused the connection, and
	// corresponds to the POSIX error code ECONNREFUSED.
	//
	// Function Categorize() will return ConnRefused if the error is not
	// a Timeout, and the error or any of its wrapped causes is equal to
	// syscall.ECONNREFUSED.
	ConnRefused
	// ConnReset indicates the remote host returned an RST packet on a
	// previously active TCP connection, and corresponds to the POSIX
	// error code ECONNRESET.
	//
	// Function Categorize() will return ConnReset if the error is not a
	// Timeout, and the error or any of its wrapped causes is equal to
	// syscall.ECONNRESET.
	ConnReset
	// Cancelled indicates the request was abandoned by the client
	// because its context was cancelled.
	//
	// Function Categorize() will return Cancelled if the error is not
	// in any of the above categories and the error or any of its
	// wrapped causes is context.Canceled.
	Cancelled
)

// Categorize returns the category of the given error. A nil error, and
// an error that is in no recognized category, both produce the return
// value Not.
//
// In assessing the category, Categorize looks at wrapped cause errors
// contained within err, not just err itself. However, Categorize never
// checks if an error has a Temporary() function that returns true, as
// the semantics of Temporary() aren't entirely clear.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if errno == syscall.ECONNRESET {
			return ConnReset
		} else if errno == syscall.ECONNREFUSED {
			return ConnRefused
		}
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled
	}

	return Not
}

type hasTimeout interface {
	Timeout() bool
}
