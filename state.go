// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

// A State is the lifecycle state of a request identity, as reported by
// Operator.State.
type State int

const (
	// Untracked means the Operator knows nothing about the identity.
	// Identities rejected for lack of a session, or whose descriptor
	// failed to encode, are also Untracked.
	Untracked State = iota
	// Pending means the request is waiting for an execution slot.
	Pending
	// InFlight means a request attempt is underway.
	InFlight
	// Retrying means the request is waiting to retry a failed attempt.
	Retrying
	// Resolved means the request completed and its callback was
	// called.
	Resolved
	// Cancelled means the request was cancelled before it completed.
	Cancelled
)

var stateNames = []string{
	"Untracked",
	"Pending",
	"InFlight",
	"Retrying",
	"Resolved",
	"Cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions out of s can occur.
func (s State) Terminal() bool {
	return s == Resolved || s == Cancelled
}
