// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies for retrying failed attempts during
// a request execution, and how long to wait before retrying.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter. For the common case of a bounded
// number of retries on transient statuses spaced by a constant
// interval, use Fixed:
//
//     policy := retry.Fixed(3*time.Second, 3)
//
// which is equivalent to:
//
//     decider := retry.Times(3).And(retry.StatusCode(429, 503))
//     waiter := retry.NewFixedWaiter(3 * time.Second)
//     policy := retry.NewPolicy(decider, waiter)
//
// Per-request retry settings carried on a request.Descriptor are turned
// into a Policy by FromSettings.
package retry
