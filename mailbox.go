// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"sync"

	"github.com/gogama/netop/auth"
	"github.com/google/uuid"
)

// mailbox is an unbounded FIFO queue of messages for the serial
// goroutine. put never blocks.
type mailbox struct {
	lock   sync.Mutex
	queue  []message
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) put(msg message) {
	m.lock.Lock()
	m.queue = append(m.queue, msg)
	m.lock.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// take blocks until at least one message is queued, then removes and
// returns every queued message in arrival order.
func (m *mailbox) take() []message {
	for {
		m.lock.Lock()
		q := m.queue
		m.queue = nil
		m.lock.Unlock()
		if len(q) > 0 {
			return q
		}
		<-m.signal
	}
}

type message interface{}

type submitMsg struct {
	calls        []Call
	cancelAbsent bool
}

type cancelMsg struct {
	ids []uuid.UUID
}

type tokenMsg struct {
	token auth.Token
	set   bool
}

type stateQuery struct {
	id    uuid.UUID
	reply chan State
}

type closeMsg struct{}

type resultMsg struct {
	tr   *tracked
	body []byte
	err  error
}

type progressMsg struct {
	tr          *tracked
	sent, total int64
}

type stateMsg struct {
	tr    *tracked
	state State
}
