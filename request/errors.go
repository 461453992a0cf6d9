// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCancelled is delivered to a request's completion callback when
	// the request is cancelled before it completes, either explicitly or
	// because its identity was omitted from a later batch.
	ErrCancelled = errors.New("netop: request cancelled")

	// ErrClosed is returned by operations on an operator that has been
	// closed.
	ErrClosed = errors.New("netop: operator closed")
)

// An EncodingError indicates a Descriptor could not be turned into a
// wire request. Requests failing with EncodingError never reach the
// network and are never retried.
type EncodingError struct {
	// Op names the encoding step that failed, e.g. "query" or "body".
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *EncodingError) Error() string {
	return "netop/request: " + e.Op + ": " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// A Status is the status code carried by a NetworkError. Positive
// values are HTTP status codes. Negative values are transport failure
// codes.
type Status int

// Transport failure codes.
const (
	StatusUnknown               Status = -1
	StatusCancelled             Status = -999
	StatusBadURL                Status = -1000
	StatusTimedOut              Status = -1001
	StatusCannotConnectToHost   Status = -1004
	StatusNetworkConnectionLost Status = -1005
	StatusBadServerResponse     Status = -1011
)

var statusNames = map[Status]string{
	StatusUnknown:               "Unknown",
	StatusCancelled:             "Cancelled",
	StatusBadURL:                "Bad URL",
	StatusTimedOut:              "Timed Out",
	StatusCannotConnectToHost:   "Cannot Connect To Host",
	StatusNetworkConnectionLost: "Network Connection Lost",
	StatusBadServerResponse:     "Bad Server Response",
}

// String returns a human readable name for the status: the HTTP reason
// phrase for HTTP codes, or the name of the transport failure.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if text := http.StatusText(int(s)); text != "" {
		return text
	}
	return fmt.Sprintf("Status %d", int(s))
}

// IsHTTP reports whether s is an HTTP status code rather than a
// transport failure code.
func (s Status) IsHTTP() bool {
	return s > 0
}

// A NetworkError indicates a request reached the network layer but did
// not produce a usable response: either the transport failed, or the
// server replied with an error status and an empty body.
type NetworkError struct {
	// Status is the HTTP status code or transport failure code.
	Status Status
	// Err is the underlying transport error, if any. When non-nil it
	// has the type *url.Error.
	Err error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("netop: %s (%d)", e.Status, int(e.Status))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a request attempt timeout.
func (e *NetworkError) Timeout() bool {
	return e.Status == StatusTimedOut
}
