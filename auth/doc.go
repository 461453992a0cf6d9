// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth implements the authorization gate applied to every
// request descriptor before it is encoded and sent.
//
// A descriptor declares its authorization Strategy. Descriptors with
// the Bearer strategy (the zero value) may only proceed if a Token is
// currently configured; otherwise they are rejected with
// ErrSessionRequired and never reach the network. Descriptors with the
// None strategy always proceed without extra headers.
//
//	var store auth.Store
//	store.Set(auth.BearerToken("s3cr3t"))
//	...
//	t, ok := store.Get()
//	headers, err := auth.Authorize(d.Auth, t, ok)
package auth
