// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/netop/request"
)

// A Policy controls if and how retries are done in a request execution.
// In particular, after every failed attempt, a Policy decides whether a
// retry should be done and, if so, how long the wait period should be
// before retrying the attempt.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	Decider
	Waiter
}

// DefaultPolicy retries up to request.DefaultRetryCount times on the
// transient statuses, waiting request.DefaultRetryInterval before each
// retry.
var DefaultPolicy = Fixed(request.DefaultRetryInterval, request.DefaultRetryCount)

// Never is a policy that never retries.
var Never Policy = policy{Times(0), NewFixedWaiter(0)}

type policy struct {
	decider Decider
	waiter  Waiter
}

// NewPolicy composes a Decider and a Waiter into a retry Policy.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil {
		panic("netop/retry: nil decider")
	}
	if w == nil {
		panic("netop/retry: nil waiter")
	}
	return policy{decider: d, waiter: w}
}

// Fixed constructs a policy which retries up to max times when an
// attempt fails with one of the TransientStatuses, waiting interval
// before each retry.
func Fixed(interval time.Duration, max int) Policy {
	return policy{
		decider: Times(max).And(Transient),
		waiter:  NewFixedWaiter(interval),
	}
}

// FromSettings returns the policy described by per-request retry
// settings. If r is nil, fallback is returned. A zero Interval means
// request.DefaultRetryInterval.
func FromSettings(r *request.Retry, fallback Policy) Policy {
	if r == nil {
		return fallback
	}
	if !r.Enabled || r.MaxCount <= 0 {
		return Never
	}
	interval := r.Interval
	if interval <= 0 {
		interval = request.DefaultRetryInterval
	}
	return Fixed(interval, r.MaxCount)
}

func (p policy) Decide(e *request.Execution) bool {
	return p.decider.Decide(e)
}

func (p policy) Wait(e *request.Execution) time.Duration {
	return p.waiter.Wait(e)
}
