// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Descriptor (describes what to
call), Plan (the encoded wire request) and Execution (describes the
execution of a Plan on behalf of a Descriptor).

The first core type is Descriptor. A Descriptor declares a logical HTTP
request: the path and method, one of a closed set of Task variants
describing the body and URL parameters, extra headers, a timeout, an
optional retry override and an authorization requirement. Descriptors
are plain values and should be treated as immutable once submitted.

	d := request.Descriptor{
		ID:     request.NewID(),
		Path:   "/users",
		Method: request.Post,
		Task: request.Params{
			Body:     map[string]interface{}{"email": "a@b.c"},
			Encoding: request.JSON,
		},
		Auth: auth.None,
	}

The second core type is Plan. Encode turns a Descriptor and a base
address into a Plan, a fully formed wire request with a pre-buffered
body, suitable for making multiple attempts:

	p, err := request.Encode(&d, baseURL)

Encoding is a pure function of the descriptor and base address, except
for the random boundary of multipart bodies, which can be fixed by
using an Encoder with a custom Boundary function.

The third core type is Execution, which represents the state of the
execution of a Plan. Execution is the input type for callbacks invoked
during execution: retry policies and event handlers. You will typically
not allocate Execution instances yourself, but will instead work with
the ones handed out by the operator's execution logic.

All failures are reported using the error types in this package
(EncodingError, NetworkError) or the sentinel errors ErrCancelled and
ErrClosed.
*/
package request
