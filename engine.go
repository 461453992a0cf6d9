// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gogama/netop/progress"
	"github.com/gogama/netop/request"
	"github.com/gogama/netop/retry"
	"github.com/gogama/netop/transient"
	"go.uber.org/zap"
)

// execute runs the attempt/retry loop for one tracked request and
// posts the outcome back to the serial goroutine. It runs on its own
// goroutine and never touches the tracking state directly.
//
// The outcome of an attempt is classified as follows. A transport
// failure is a *request.NetworkError whose status is derived from the
// transient category of the failure. A response with an empty body and
// a status of 400 or more is a *request.NetworkError carrying the HTTP
// status. Any other response is a success, whatever its status.
func (o *Operator) execute(ctx context.Context, tr *tracked, d *request.Descriptor, p *request.Plan) {
	defer tr.cancel()

	e := &request.Execution{
		Descriptor: d,
		Plan:       p,
	}
	clk := o.clock()
	handlers := o.handlers()
	policy := retry.FromSettings(d.Retry, o.retryPolicy())
	logger := o.logger().With(zap.Stringer("id", d.ID))

	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.mbox.put(resultMsg{tr: tr, err: request.ErrCancelled})
			return
		}
		defer o.sem.Release(1)
		o.mbox.put(stateMsg{tr: tr, state: InFlight})
	}

	handlers.run(BeforeExecutionStart, e)
	e.Start = clk.Now()

RetryLoop:
	for {
		o.sendAndReceive(ctx, tr, e, handlers)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, e)
		}
		handlers.run(AfterAttempt, e)
		if ctx.Err() != nil {
			e.Err = request.ErrCancelled
			handlers.run(AfterExecutionCancel, e)
			break
		} else if e.Err != nil && policy.Decide(e) {
			wait := policy.Wait(e)
			logger.Info("retrying request",
				zap.Int("attempt", e.Attempt),
				zap.Duration("wait", wait),
				zap.Error(e.Err))
			timer := clk.Timer(wait)
			o.mbox.put(stateMsg{tr: tr, state: Retrying})
			select {
			case <-timer.C:
				break
			case <-ctx.Done():
				timer.Stop()
				e.Err = request.ErrCancelled
				handlers.run(AfterExecutionCancel, e)
				break RetryLoop
			}
			o.mbox.put(stateMsg{tr: tr, state: InFlight})
			e.Response = nil
			e.Err = nil
			e.Body = nil
			e.Attempt++
		} else {
			break
		}
	}

	e.End = clk.Now()
	handlers.run(AfterExecutionEnd, e)

	body := e.Body
	if e.Err != nil {
		body = nil
	}
	o.mbox.put(resultMsg{tr: tr, body: body, err: e.Err})
}

func (o *Operator) sendAndReceive(ctx context.Context, tr *tracked, e *request.Execution, handlers *HandlerGroup) {
	ctx, cancel := context.WithTimeout(ctx, e.Plan.Timeout)
	defer cancel()
	e.Request = e.Plan.ToRequest(ctx)
	if e.Descriptor.IsUpload() && e.Request.Body != nil {
		e.Request.Body = progress.NewReader(e.Request.Body, e.Request.ContentLength, func(sent, total int64) {
			o.mbox.put(progressMsg{tr: tr, sent: sent, total: total})
		})
	}
	handlers.run(BeforeAttempt, e)
	var err error
	e.Response, err = o.doer().Do(e.Request)
	if err != nil {
		e.Err = networkError(e.Plan, err)
	} else if e.Response == nil {
		e.Err = &request.NetworkError{Status: request.StatusBadServerResponse}
	} else {
		readBody(e, handlers)
		if e.Err == nil && len(e.Body) == 0 && e.Response.StatusCode >= 400 {
			e.Err = &request.NetworkError{Status: request.Status(e.Response.StatusCode)}
		}
	}
}

func readBody(e *request.Execution, handlers *HandlerGroup) {
	if e.Response.Body == nil {
		e.Response.Body = http.NoBody
	}
	defer func() {
		_ = e.Response.Body.Close()
	}()
	handlers.run(BeforeReadBody, e)
	var err error
	e.Body, err = io.ReadAll(e.Response.Body)
	if err != nil {
		e.Err = networkError(e.Plan, err)
	}
}

// networkError converts a transport failure into a NetworkError whose
// status reflects the failure's transient category.
func networkError(p *request.Plan, err error) *request.NetworkError {
	var status request.Status
	switch transient.Categorize(err) {
	case transient.Timeout:
		status = request.StatusTimedOut
	case transient.ConnRefused:
		status = request.StatusCannotConnectToHost
	case transient.ConnReset:
		status = request.StatusNetworkConnectionLost
	case transient.Cancelled:
		status = request.StatusCancelled
	default:
		status = request.StatusUnknown
	}
	return &request.NetworkError{
		Status: status,
		Err:    urlErrorWrap(p, err),
	}
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: p.URL.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
