// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"errors"
	"sync"
)

// ErrSessionRequired is the error a request resolves with when it
// requires authorization but no token is configured.
var ErrSessionRequired = errors.New("netop/auth: session required")

// A Strategy is the authorization requirement of a request descriptor.
type Strategy int

const (
	// Bearer requires a configured token, whose headers are merged
	// into the outgoing request. It is the zero value, so descriptors
	// require authorization unless they opt out.
	Bearer Strategy = iota
	// None sends the request without authorization headers.
	None
)

var strategyNames = []string{"Bearer", "None"}

// String returns the name of the strategy.
func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "Unknown"
	}
	return strategyNames[s]
}

// A Token is the set of header name/value pairs which authorize a
// request.
type Token map[string]string

// BearerToken returns a Token carrying an OAuth 2.0 bearer credential in
// the Authorization header.
func BearerToken(credential string) Token {
	return Token{"Authorization": "Bearer " + credential}
}

func (t Token) clone() Token {
	if t == nil {
		return nil
	}
	u := make(Token, len(t))
	for k, v := range t {
		u[k] = v
	}
	return u
}

// Authorize applies the gate for strategy s given the current token t,
// where ok reports whether a token is configured at all.
//
// For None, Authorize returns no headers and no error. For Bearer, it
// returns a copy of t if ok is true and ErrSessionRequired otherwise.
func Authorize(s Strategy, t Token, ok bool) (Token, error) {
	if s == None {
		return nil, nil
	}
	if !ok {
		return nil, ErrSessionRequired
	}
	return t.clone(), nil
}

// A Store holds the currently configured Token. Its zero value holds no
// token. Store is safe for concurrent use by multiple goroutines.
type Store struct {
	lock  sync.RWMutex
	token Token
	set   bool
}

// Set configures t as the current token. The Store keeps its own copy.
func (s *Store) Set(t Token) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.token = t.clone()
	s.set = true
}

// Clear removes the current token.
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.token = nil
	s.set = false
}

// Get returns a copy of the current token and whether one is
// configured.
func (s *Store) Get() (Token, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.token.clone(), s.set
}
