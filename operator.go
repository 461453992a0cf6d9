// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
	"github.com/gogama/netop/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var emptyHandlers = HandlerGroup{}

// An Operator turns request descriptors into executed HTTP calls. Its
// zero value is a valid configuration.
//
// The zero value operator uses http.DefaultClient (from net/http) as
// the HTTPDoer, retry.DefaultPolicy as the retry policy, the wall
// clock, no logging, no limit on concurrent executions, and an empty
// handler group (no event handlers/plug-ins). Descriptors must carry
// their own BaseURL when the Operator has none.
//
// An Operator tracks every in-flight request by its identity. A single
// serial goroutine owns the tracking state: Submit, Add, Cancel,
// SetToken and ClearToken only enqueue work for it and never block.
// Network I/O runs on separate goroutines which report back to the
// serial goroutine, and completion callbacks are invoked from it.
//
// On top of the HTTP request features provided by the HTTPDoer, the
// Operator adds the following features:
//
// • requests needing a session are rejected with auth.ErrSessionRequired
// before any I/O when no token is configured;
//
// • submitting a batch cancels in-flight identities missing from it,
// and resubmitting an in-flight identity replaces its callbacks in
// place instead of starting a second execution;
//
// • failed attempts with a transient status are retried following the
// descriptor's retry settings or the Operator's retry policy;
//
// • completed identities are remembered, so a stale or duplicate
// submission never executes twice (see MaxCompleted to bound this
// memory); and
//
// • user-provided handler functions are invoked at designated plug-in
// points within the attempt/retry loop.
//
// Operator is safe for concurrent use by multiple goroutines. Call
// Close to release its goroutines.
type Operator struct {
	// BaseURL is the base address that descriptor paths are appended
	// to, unless a descriptor sets its own.
	BaseURL *url.URL
	// HTTPDoer specifies the mechanics of sending HTTP requests and
	// receiving responses.
	//
	// If HTTPDoer is nil, http.DefaultClient from the standard net/http
	// package is used.
	HTTPDoer HTTPDoer
	// RetryPolicy decides when to retry failed attempts and how long
	// to wait after a failed attempt before retrying, for descriptors
	// without their own retry settings.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// Encoder turns descriptors into wire requests.
	//
	// If Encoder is nil, request.DefaultEncoder is used.
	Encoder *request.Encoder
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Logger receives the Operator's log entries.
	//
	// If Logger is nil, nothing is logged.
	Logger *zap.Logger
	// Clock is used to time executions and retry waits.
	//
	// If Clock is nil, the wall clock is used.
	Clock clock.Clock
	// MaxInFlight limits how many requests execute at the same time.
	// Requests over the limit wait in the Pending state.
	//
	// If MaxInFlight is zero or negative, there is no limit.
	MaxInFlight int64
	// MaxCompleted limits how many resolved or cancelled identities
	// the Operator remembers. Once the limit is reached, the oldest
	// completed identity is forgotten: its State becomes Untracked
	// and a new submission of it executes again.
	//
	// If MaxCompleted is zero or negative, every completed identity is
	// remembered for the life of the Operator, so memory use grows
	// with the number of distinct identities executed.
	MaxCompleted int

	once   sync.Once
	mbox   *mailbox
	sem    *semaphore.Weighted
	tokens auth.Store
	wg     sync.WaitGroup
	done   chan struct{}

	lock   sync.RWMutex
	closed bool

	// Owned by the serial goroutine.
	active    map[uuid.UUID]*tracked
	completed map[uuid.UUID]State
	order     []uuid.UUID
}

// tracked is the tracking entry of one in-flight identity. Its pointer
// identifies one execution, so that results from a cancelled or
// replaced execution can be recognized as stale.
type tracked struct {
	call   Call
	cancel context.CancelFunc
	state  State
	sent   int64
}

func (o *Operator) init() {
	o.once.Do(func() {
		o.mbox = newMailbox()
		o.done = make(chan struct{})
		o.active = make(map[uuid.UUID]*tracked)
		o.completed = make(map[uuid.UUID]State)
		if o.MaxInFlight > 0 {
			o.sem = semaphore.NewWeighted(o.MaxInFlight)
		}
		go o.loop()
	})
}

// Submit processes a batch of calls, in order.
//
// Calls for completed identities are ignored. Every other call is
// authorized first. An authorized identity that is already in flight
// keeps its execution, but the tracked call, and so the callbacks that
// will receive the outcome, are replaced by the new one. Any other
// authorized identity is encoded and executed. In-flight identities
// that do not appear in the batch are cancelled, and their callbacks
// receive request.ErrCancelled.
//
// Calls rejected for lack of a session receive auth.ErrSessionRequired
// and calls whose descriptor cannot be encoded receive a
// *request.EncodingError. Neither is remembered as completed.
//
// If the Operator is closed, every call receives request.ErrClosed on
// the calling goroutine.
func (o *Operator) Submit(calls ...Call) {
	o.enqueue(calls, true)
}

// Add processes a batch of calls like Submit, but never cancels
// in-flight identities missing from the batch.
func (o *Operator) Add(calls ...Call) {
	o.enqueue(calls, false)
}

func (o *Operator) enqueue(calls []Call, cancelAbsent bool) {
	o.init()
	cs := make([]Call, len(calls))
	copy(cs, calls)
	if !o.post(submitMsg{calls: cs, cancelAbsent: cancelAbsent}) {
		o.logger().Warn("operator closed, rejecting calls", zap.Int("count", len(cs)))
		for i := range cs {
			cs[i].complete(nil, request.ErrClosed)
		}
	}
}

// Cancel cancels the in-flight requests with the given identities.
// Their callbacks receive request.ErrCancelled. Identities that are not
// in flight are ignored.
func (o *Operator) Cancel(ids ...uuid.UUID) {
	o.init()
	cp := make([]uuid.UUID, len(ids))
	copy(cp, ids)
	o.post(cancelMsg{ids: cp})
}

// SetToken configures the authorization token. It applies to every
// identity authorized after the calls already submitted.
func (o *Operator) SetToken(t auth.Token) {
	o.init()
	cp := make(auth.Token, len(t))
	for k, v := range t {
		cp[k] = v
	}
	o.post(tokenMsg{token: cp, set: true})
}

// ClearToken removes the authorization token. It applies to every
// identity authorized after the calls already submitted.
func (o *Operator) ClearToken() {
	o.init()
	o.post(tokenMsg{})
}

// Authorized reports whether a token is currently configured.
func (o *Operator) Authorized() bool {
	_, ok := o.tokens.Get()
	return ok
}

// State reports the lifecycle state of an identity.
//
// State returns request.ErrClosed if the Operator is closed, and
// ctx.Err() if ctx is done before the state is known.
func (o *Operator) State(ctx context.Context, id uuid.UUID) (State, error) {
	o.init()
	reply := make(chan State, 1)
	if !o.post(stateQuery{id: id, reply: reply}) {
		return Untracked, request.ErrClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-o.done:
		select {
		case s := <-reply:
			return s, nil
		default:
			return Untracked, request.ErrClosed
		}
	case <-ctx.Done():
		return Untracked, ctx.Err()
	}
}

// Close cancels every in-flight request, delivering
// request.ErrCancelled to its callback, and waits for the Operator's
// goroutines to exit. Calls submitted after Close receive
// request.ErrClosed.
//
// Calling Close more than once returns request.ErrClosed.
func (o *Operator) Close() error {
	o.init()
	o.lock.Lock()
	if o.closed {
		o.lock.Unlock()
		return request.ErrClosed
	}
	o.closed = true
	o.mbox.put(closeMsg{})
	o.lock.Unlock()

	<-o.done
	o.wg.Wait()
	o.logger().Debug("operator closed")
	return nil
}

// CloseIdleConnections invokes the same method on the Operator's
// underlying HTTPDoer.
//
// If the HTTPDoer has no CloseIdleConnections method, this method does
// nothing.
func (o *Operator) CloseIdleConnections() {
	if ic, ok := o.doer().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (o *Operator) post(msg message) bool {
	o.lock.RLock()
	defer o.lock.RUnlock()
	if o.closed {
		return false
	}
	o.mbox.put(msg)
	return true
}

func (o *Operator) loop() {
	defer close(o.done)
	for {
		for _, msg := range o.mbox.take() {
			if !o.handle(msg) {
				return
			}
		}
	}
}

// handle applies one message to the tracking state. It returns false
// when the serial goroutine must exit.
func (o *Operator) handle(msg message) bool {
	switch m := msg.(type) {
	case submitMsg:
		o.submit(m.calls, m.cancelAbsent)
	case cancelMsg:
		for _, id := range m.ids {
			if tr, ok := o.active[id]; ok {
				o.cancel(id, tr)
			}
		}
	case tokenMsg:
		if m.set {
			o.tokens.Set(m.token)
		} else {
			o.tokens.Clear()
		}
	case stateQuery:
		m.reply <- o.state(m.id)
	case resultMsg:
		o.resolve(m)
	case progressMsg:
		o.progress(m)
	case stateMsg:
		if o.current(m.tr) {
			m.tr.state = m.state
		}
	case closeMsg:
		for id, tr := range o.active {
			o.cancel(id, tr)
		}
		return false
	}
	return true
}

func (o *Operator) submit(calls []Call, cancelAbsent bool) {
	if cancelAbsent {
		keep := make(map[uuid.UUID]struct{}, len(calls))
		for i := range calls {
			keep[calls[i].Descriptor.ID] = struct{}{}
		}
		for id, tr := range o.active {
			if _, ok := keep[id]; !ok {
				o.cancel(id, tr)
			}
		}
	}
	for i := range calls {
		o.start(calls[i])
	}
}

func (o *Operator) start(c Call) {
	id := c.Descriptor.ID
	logger := o.logger().With(zap.Stringer("id", id))

	if s, ok := o.completed[id]; ok {
		logger.Debug("ignoring completed identity", zap.Stringer("state", s))
		return
	}

	token, ok := o.tokens.Get()
	headers, err := auth.Authorize(c.Descriptor.Auth, token, ok)
	if err != nil {
		logger.Info("request rejected", zap.Error(err))
		c.complete(nil, err)
		return
	}

	if tr, ok := o.active[id]; ok {
		tr.call = c
		logger.Debug("replaced in-flight call")
		return
	}

	p, err := o.encoder().Encode(&c.Descriptor, o.BaseURL)
	if err != nil {
		logger.Warn("request encoding failed", zap.Error(err))
		c.complete(nil, err)
		return
	}
	p.SetHeaders(headers)

	ctx, cancel := context.WithCancel(context.Background())
	tr := &tracked{call: c, cancel: cancel, state: InFlight}
	if o.sem != nil {
		tr.state = Pending
	}
	o.active[id] = tr

	d := c.Descriptor
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(ctx, tr, &d, p)
	}()
	logger.Debug("request started", zap.String("method", p.Method), zap.Stringer("url", p.URL))
}

func (o *Operator) cancel(id uuid.UUID, tr *tracked) {
	tr.cancel()
	delete(o.active, id)
	o.complete(id, Cancelled)
	o.logger().Debug("request cancelled", zap.Stringer("id", id))
	tr.call.complete(nil, request.ErrCancelled)
}

func (o *Operator) resolve(m resultMsg) {
	if !o.current(m.tr) {
		return
	}
	id := m.tr.call.Descriptor.ID
	delete(o.active, id)
	o.complete(id, Resolved)
	if m.err != nil {
		o.logger().Debug("request failed", zap.Stringer("id", id), zap.Error(m.err))
	} else {
		o.logger().Debug("request succeeded", zap.Stringer("id", id), zap.Int("bytes", len(m.body)))
	}
	m.tr.call.complete(m.body, m.err)
}

func (o *Operator) progress(m progressMsg) {
	if !o.current(m.tr) || m.sent <= m.tr.sent {
		return
	}
	m.tr.sent = m.sent
	if f := m.tr.call.OnProgress; f != nil {
		f(m.tr.call.Descriptor.ID, m.sent, m.total)
	}
}

// complete remembers id as completed in state s, forgetting the oldest
// completed identity when MaxCompleted is exceeded.
func (o *Operator) complete(id uuid.UUID, s State) {
	if o.MaxCompleted <= 0 {
		o.completed[id] = s
		return
	}
	if _, ok := o.completed[id]; !ok {
		o.order = append(o.order, id)
	}
	o.completed[id] = s
	for len(o.order) > o.MaxCompleted {
		delete(o.completed, o.order[0])
		o.order[0] = uuid.Nil
		o.order = o.order[1:]
	}
}

// current reports whether tr is still the tracking entry of its
// identity.
func (o *Operator) current(tr *tracked) bool {
	return o.active[tr.call.Descriptor.ID] == tr
}

func (o *Operator) state(id uuid.UUID) State {
	if tr, ok := o.active[id]; ok {
		return tr.state
	}
	if s, ok := o.completed[id]; ok {
		return s
	}
	return Untracked
}

func (o *Operator) doer() HTTPDoer {
	if o.HTTPDoer == nil {
		return http.DefaultClient
	}

	return o.HTTPDoer
}

func (o *Operator) retryPolicy() retry.Policy {
	if o.RetryPolicy == nil {
		return retry.DefaultPolicy
	}

	return o.RetryPolicy
}

func (o *Operator) encoder() *request.Encoder {
	if o.Encoder == nil {
		return request.DefaultEncoder
	}

	return o.Encoder
}

func (o *Operator) handlers() *HandlerGroup {
	if o.Handlers == nil {
		return &emptyHandlers
	}

	return o.Handlers
}

func (o *Operator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}

	return o.Logger
}

func (o *Operator) clock() clock.Clock {
	if o.Clock == nil {
		return clock.New()
	}

	return o.Clock
}
