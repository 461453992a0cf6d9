// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/netop/request"
	"github.com/gogama/netop/transient"
)

// A Decider decides if a retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
//
// Use the built-in constructors Times, StatusCode, and Before, and the
// built-in deciders Transient and TransientErr; or implement your
// Decider. Use DeciderFunc to convert an ordinary function into a
// Decider, and to compose deciders logically using DeciderFunc.And and
// DeciderFunc.Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface, and
// also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
type DeciderFunc func(e *request.Execution) bool

// TransientStatuses are the statuses retried by Transient: 429 (Too
// Many Requests) and 503 (Service Unavailable).
var TransientStatuses = []request.Status{http429, http503}

const (
	http429 request.Status = 429
	http503 request.Status = 503
)

// Transient is a decider that indicates a retry if the current error
// carries one of the TransientStatuses.
var Transient = StatusCode(http429, http503)

// TransientErr is a decider that indicates a retry if the current
// error is a transport failure categorized by transient.Categorize,
// other than a cancellation.
//
// TransientErr is not part of any built-in policy. Compose it with
// other deciders to also retry timeouts and connection failures.
var TransientErr DeciderFunc = transientErr

// Decide returns true if a retry should be done, and false otherwise,
// after examining the current execution state.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two retry deciders into a new decider which returns true
// if both sub-deciders return true, and false otherwise.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two retry deciders into a new decider which returns
// true if either of the two sub-deciders returns true, but false if
// they both return false.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times constructs a retry decider which allows up to n retries. The
// returned decider returns true while the execution attempt index
// e.Attempt is less than n, and false otherwise.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before constructs a retry decider allowing retries until a certain
// amount of time has elapsed since the start of the execution.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode constructs a retry decider allowing retries based on the
// status of the execution's current error. If the most recent attempt
// failed with a *request.NetworkError whose status is contained in the
// list ss, the decider returns true. Otherwise, it returns false.
//
// A response carrying a non-empty body is a success regardless of its
// HTTP status code, so it never matches.
func StatusCode(ss ...request.Status) DeciderFunc {
	ss2 := make([]request.Status, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		status := e.Status()
		if status == 0 {
			return false
		}
		for _, s := range ss2 {
			if status == s {
				return true
			}
		}
		return false
	}
}

func transientErr(e *request.Execution) bool {
	cat := transient.Categorize(e.Err)
	return cat != transient.Not && cat != transient.Cancelled
}
