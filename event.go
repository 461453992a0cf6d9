// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in an Operator to extend it with
// custom functionality.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs before the
	// execution of a request starts.
	//
	// When the Operator fires BeforeExecutionStart, the execution is
	// non-nil but the only fields that have been set are the
	// descriptor and the plan.
	BeforeExecutionStart Event = iota
	// BeforeAttempt identifies the event that occurs before each
	// individual HTTP request attempt during the execution.
	//
	// When the Operator fires BeforeAttempt, the execution's request
	// field is set to the HTTP request that WILL BE sent after all
	// BeforeAttempt handlers have finished.
	//
	// BeforeAttempt Handlers may modify the execution's request, or
	// some of its fields, thus changing the HTTP request that will be
	// sent. However, BeforeAttempt handlers should clone request fields
	// which have reference types (URL and Header) before changing them
	// to avoid side effects, as these fields initially reference the
	// same-named fields in the plan.
	BeforeAttempt
	// BeforeReadBody identifies the event that occurs after an HTTP
	// request attempt has resulted in an HTTP response (as opposed to
	// an error) but before the response body is read and buffered.
	//
	// Note that BeforeReadBody never fires if the HTTP request attempt
	// ended in error, but always fires if an HTTP response is received,
	// regardless of HTTP response status code.
	BeforeReadBody
	// AfterAttemptTimeout identifies the event that occurs after an
	// HTTP request attempt failed because of a timeout error.
	//
	// When the Operator fires AfterAttemptTimeout, the execution's
	// error field is set to a *request.NetworkError with the status
	// request.StatusTimedOut, and its attempt timeout counter has been
	// incremented.
	AfterAttemptTimeout
	// AfterAttempt identifies the event that occurs after an HTTP
	// request attempt is concluded, regardless of whether it concluded
	// successfully or not.
	//
	// Note that AfterAttempt always fires on every HTTP request attempt,
	// and that it runs before the retry policy is consulted for a retry
	// decision.
	AfterAttempt
	// AfterExecutionCancel identifies the event that occurs when the
	// Operator notices the request was cancelled, either during an
	// attempt or during the retry wait period.
	//
	// When the Operator fires AfterExecutionCancel, the execution's
	// error field is request.ErrCancelled.
	AfterExecutionCancel
	// AfterExecutionEnd identifies the event that occurs after the
	// execution ends.
	//
	// When the Operator fires AfterExecutionEnd, the execution is in
	// the same state it was in after the final HTTP request attempt
	// EXCEPT that the end time is set to the time the execution ended.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel
	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"BeforeReadBody",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"AfterExecutionCancel",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur in a
// request execution by the Operator, in the order in which they would
// occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		BeforeReadBody,
		AfterAttemptTimeout,
		AfterAttempt,
		AfterExecutionCancel,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
