// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package api provides descriptors for the endpoints of the backend
// API. Each provider method returns a descriptor ready to be submitted
// to an Operator.
package api

import (
	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
)

// Auth provides descriptors for account endpoints.
type Auth struct{}

// SignUp describes the creation of a user account. The request is sent
// without authorization, since no session exists yet.
func (Auth) SignUp(email, username, password string) request.Descriptor {
	return request.Descriptor{
		ID:     request.NewID(),
		Path:   "/users",
		Method: request.Post,
		Task: request.Params{
			Body: map[string]interface{}{
				"email":    email,
				"username": username,
				"password": password,
			},
			Encoding: request.JSON,
		},
		Auth: auth.None,
	}
}
