// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"github.com/gogama/netop/request"
	"github.com/google/uuid"
)

// A Call couples a request descriptor with the callbacks that receive
// its outcome.
//
// Callbacks run on the Operator's serial goroutine. They must not
// block, and should hand any lengthy work off to another goroutine.
// In particular, a callback must not call Operator.Close, or
// Operator.State with a context that never expires: both wait for the
// serial goroutine, which is busy running the callback, and so never
// return.
type Call struct {
	// Descriptor describes the request.
	Descriptor request.Descriptor

	// OnComplete receives the response body on success, or the error
	// on failure. It is called exactly once per started identity.
	OnComplete func(id uuid.UUID, body []byte, err error)

	// OnProgress, if not nil, receives upload progress for multipart
	// requests. Progress is monotonic and is always delivered before
	// OnComplete.
	OnProgress func(id uuid.UUID, sent, total int64)
}

func (c *Call) complete(body []byte, err error) {
	if c.OnComplete != nil {
		c.OnComplete(c.Descriptor.ID, body, err)
	}
}
