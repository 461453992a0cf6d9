// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command netop executes requests through a netop Operator configured
// from a YAML file and NETOP_ environment variables.
//
// Usage:
//
//	netop [--config netop.yaml] do METHOD PATH [flags]
//	netop [--config netop.yaml] signup --email E --username U --password P
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
