// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package progress reports the transfer progress of request bodies.
//
// Wrap an upload body with NewReader to receive a callback each time
// the HTTP transport consumes more of it. The byte counter passed to
// the callback never decreases.
package progress

import "io"

// A Func receives the cumulative number of body bytes sent so far and
// the total number of bytes expected to be sent.
type Func func(sent, total int64)

// NewReader returns an io.ReadCloser which reads from r and calls f
// after every read that consumes at least one byte. Parameter total is
// passed through to f unchanged. If r is an io.Closer, Close closes it.
//
// If f is nil, NewReader returns r wrapped as a ReadCloser without any
// reporting.
func NewReader(r io.Reader, total int64, f Func) io.ReadCloser {
	if f == nil {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc
		}
		return io.NopCloser(r)
	}
	return &reader{r: r, total: total, f: f}
}

type reader struct {
	r     io.Reader
	total int64
	sent  int64
	f     Func
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.sent += int64(n)
		r.f(r.sent, r.total)
	}
	return n, err
}

func (r *reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
