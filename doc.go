// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package netop provides an Operator that turns declarative request
descriptors into executed HTTP calls, with in-flight tracking,
replacement, cancellation, authorization gating and retry.

Create an Operator and submit calls to it:

	op := &netop.Operator{BaseURL: base}
	defer op.Close()

	op.Submit(netop.Call{
		Descriptor: request.Descriptor{
			ID:   id,
			Path: "/profile",
		},
		OnComplete: func(id uuid.UUID, body []byte, err error) {
			...
		},
	})

Submit treats its arguments as the complete set of requests the caller
currently wants. Calls with new identities start executing, calls with
in-flight identities replace the tracked call, and in-flight identities
that are not in the batch are cancelled. Use Add to start requests
without cancelling others, and Cancel to cancel specific identities.

Descriptors need a session token by default. Until one is configured,
their calls fail with auth.ErrSessionRequired without any network I/O:

	op.SetToken(auth.BearerToken(credential))

For a simple blocking request, use Do:

	body, err := netop.Do(ctx, op, request.Descriptor{...})

For control over how the Operator sends HTTP requests and receives HTTP
responses, use a custom HTTPDoer. For example, use a GoLang standard
HTTP client:

	doer := &http.Client{
		..., // See package "net/http" for detailed documentation
	}
	op := &netop.Operator{
		HTTPDoer: doer,
	}

For control over the Operator's retry decisions and timing, create a
custom retry policy using components from package retry:

	op := &netop.Operator{
		RetryPolicy: retry.Fixed(time.Second, 5),
	}

A descriptor may override the policy with its own retry settings.

To hook into the fine-grained details of the Operator's request
execution logic, install a handler into the appropriate handler chain:

	handlers := &netop.HandlerGroup{}
	handlers.PushBack(netop.AfterAttempt, netop.HandlerFunc(
		func(_ netop.Event, e *request.Execution) {
			metrics.Observe(e.Descriptor.Path, e.StatusCode())
		})
	)
	op := &netop.Operator{
		Handlers: handlers,
	}

LogHandler returns a ready-made handler writing every event it is
installed for to a zap logger.

Package netop provides basic interfaces for each method of the Operator
(Submitter, Adder, Canceller, TokenSetter and IdleCloser) and a combined
interface that composes the request methods (Executor).
*/
package netop
