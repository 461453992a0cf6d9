// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"github.com/gogama/netop/request"
	"go.uber.org/zap"
)

// A HandlerGroup is a group of event handler chains which can be
// installed in an Operator.
//
// Handlers run on the Operator's execution goroutines, so a handler
// installed in an Operator must be safe for concurrent use. A
// HandlerGroup must not be modified after the Operator starts using it.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the event handler chain
// for a specific event type.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("netop: nil handler")
	}
	if evt < 0 || int(evt) >= numEvents {
		panic("netop: invalid event")
	}
	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}
	g.handlers[evt] = append(g.handlers[evt], h)
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	i := int(evt)
	if i < len(g.handlers) {
		run(g.handlers[i], evt, e)
	}
}

func run(chain []Handler, evt Event, e *request.Execution) {
	for _, h := range chain {
		h.Handle(evt, e)
	}
}

// A Handler handles the occurrence of an event during a request
// execution.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}

// LogHandler returns a handler that writes one debug entry per event
// to logger. Install it for the events of interest:
//
//	h := netop.LogHandler(logger)
//	for _, evt := range netop.Events() {
//		handlers.PushBack(evt, h)
//	}
func LogHandler(logger *zap.Logger) Handler {
	return HandlerFunc(func(evt Event, e *request.Execution) {
		fields := []zap.Field{
			zap.Stringer("event", evt),
			zap.Stringer("id", e.Descriptor.ID),
			zap.Int("attempt", e.Attempt),
		}
		if e.Response != nil {
			fields = append(fields, zap.Int("status", e.Response.StatusCode))
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		logger.Debug("request event", fields...)
	})
}
