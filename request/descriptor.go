// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/url"
	"time"

	"github.com/gogama/netop/auth"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the attempt timeout used when a Descriptor does
	// not specify one.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryInterval is the wait between retries used when retry
	// settings do not specify one.
	DefaultRetryInterval = 3 * time.Second
	// DefaultRetryCount is the maximum number of retries made by the
	// default retry policy.
	DefaultRetryCount = 3
)

// A Method is an HTTP request method.
type Method string

// The methods used by typical REST APIs. Any other valid HTTP method
// token may also be used.
const (
	Get    Method = "GET"
	Put    Method = "PUT"
	Patch  Method = "PATCH"
	Post   Method = "POST"
	Delete Method = "DELETE"
)

// NewID returns a new random request identity.
func NewID() uuid.UUID {
	return uuid.New()
}

// A Descriptor describes a logical HTTP request to be executed by an
// operator.
//
// The operator copies a Descriptor when it is submitted and never
// modifies it. Callers must not modify the maps referenced by a
// Descriptor, or by its Task, after submitting it.
type Descriptor struct {
	// ID identifies the request for tracking, replacement and
	// cancellation. Use NewID to generate one.
	ID uuid.UUID

	// BaseURL optionally overrides the operator's base address.
	BaseURL *url.URL

	// Path is appended to the base address to form the request URL.
	Path string

	// Method specifies the HTTP method. An empty string means GET.
	Method Method

	// Task specifies how the body and URL parameters are built. A nil
	// Task is equivalent to Plain{}.
	Task Task

	// Header contains extra request headers. They are applied after
	// the content type set by the encoder, and may override it, but
	// authorization headers are always applied last.
	Header map[string]string

	// Timeout is the timeout of each individual request attempt. Zero
	// means DefaultTimeout.
	Timeout time.Duration

	// Retry optionally overrides the operator's retry policy for this
	// request. If nil, the operator's policy is used.
	Retry *Retry

	// Auth specifies the authorization requirement. The zero value,
	// auth.Bearer, requires a configured token.
	Auth auth.Strategy
}

// Retry holds per-descriptor retry settings.
type Retry struct {
	// Enabled specifies whether failed attempts with a transient
	// status are retried at all.
	Enabled bool
	// Interval is the wait before each retry. Zero means
	// DefaultRetryInterval.
	Interval time.Duration
	// MaxCount is the maximum number of retries.
	MaxCount int
}

// EffectiveTimeout returns the attempt timeout for the descriptor.
func (d *Descriptor) EffectiveTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// IsUpload reports whether the descriptor's task is an upload, i.e. a
// multipart task, whose transfer progress is reported.
func (d *Descriptor) IsUpload() bool {
	_, ok := d.Task.(Multipart)
	return ok
}
