// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"context"
	"net/http"

	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
	"github.com/google/uuid"
)

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	//
	// The Do method must follow the contract documented on the GoLang
	// standard library http.Client from the net/http package.
	Do(r *http.Request) (*http.Response, error)
}

// Submitter is the interface that wraps the basic Submit method.
//
// Submit processes a batch of calls. Calls whose identity is new are
// started, calls whose identity is in flight replace the tracked call,
// and in-flight identities absent from the batch are cancelled.
type Submitter interface {
	Submit(calls ...Call)
}

// Adder is the interface that wraps the basic Add method.
//
// Add behaves like Submit, except that in-flight identities absent
// from the batch are left alone.
type Adder interface {
	Add(calls ...Call)
}

// Canceller is the interface that wraps the basic Cancel method.
//
// Cancel cancels the in-flight requests with the given identities.
// Their completion callbacks receive request.ErrCancelled.
type Canceller interface {
	Cancel(ids ...uuid.UUID)
}

// TokenSetter is the interface that wraps the SetToken and ClearToken
// methods, which configure the authorization token applied to requests
// that require one.
type TokenSetter interface {
	SetToken(t auth.Token)
	ClearToken()
}

// IdleCloser is the interface that wraps the basic CloseIdleConnections
// method.
//
// If the underlying implementation supports it, CloseIdleConnections
// closes any idle which were previously connected from previous
// requests but are now sitting idle in a "keep-alive" state. It does
// not interrupt any connections currently in use.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor is the interface that groups the Submit, Add, Cancel,
// SetToken and ClearToken methods. Operator implements Executor.
type Executor interface {
	Submitter
	Adder
	Canceller
	TokenSetter
}

// Do uses the specified Executor to execute a single request and waits
// for its completion.
//
// If d has no identity, a new one is generated. If ctx is done before
// the request completes, the request is cancelled and ctx.Err() is
// returned.
func Do(ctx context.Context, ex Executor, d request.Descriptor) ([]byte, error) {
	if d.ID == uuid.Nil {
		d.ID = request.NewID()
	}

	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	ex.Add(Call{
		Descriptor: d,
		OnComplete: func(_ uuid.UUID, body []byte, err error) {
			ch <- result{body, err}
		},
	})

	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		ex.Cancel(d.ID)
		return nil, ctx.Err()
	}
}
