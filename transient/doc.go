// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies transport errors from HTTP request
// execution into a small set of categories. The operator uses the
// category to derive the status of the network error it reports.
//
// Package transient is extremely lightweight, as it depends only on
// the standard library packages "context", "errors" and "syscall", so
// it doesn't bring any significant dependencies when imported as a
// standalone package.
package transient
