// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package netop

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
	"github.com/gogama/netop/retry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const waitFor = 5 * time.Second

func TestOperator(t *testing.T) {
	t.Run("servers", testOperatorServers)
	t.Run("zero value", testOperatorZeroValue)
	t.Run("error status", testOperatorErrorStatus)
	t.Run("retry", testOperatorRetry)
	t.Run("auth", testOperatorAuth)
	t.Run("batch", testOperatorBatch)
	t.Run("cancel", testOperatorCancel)
	t.Run("transport errors", testOperatorTransportErrors)
	t.Run("progress", testOperatorProgress)
	t.Run("encoding error", testOperatorEncodingError)
	t.Run("typed nil parameter", testOperatorTypedNilParameter)
	t.Run("max in flight", testOperatorMaxInFlight)
	t.Run("max completed", testOperatorMaxCompleted)
	t.Run("handlers", testOperatorHandlers)
	t.Run("close", testOperatorClose)
}

func TestURLErrorOp(t *testing.T) {
	assert.Equal(t, "Get", urlErrorOp(""))
	assert.Equal(t, "Get", urlErrorOp("GET"))
	assert.Equal(t, "G", urlErrorOp("G"))
	assert.Equal(t, "X", urlErrorOp("X"))
	assert.Equal(t, "Xyz", urlErrorOp("XYZ"))
	assert.Equal(t, "Put", urlErrorOp("PUT"))
}

func TestNetworkError(t *testing.T) {
	u, _ := url.Parse("http://h/x")
	p := &request.Plan{Method: "PATCH", URL: u}
	testCases := []struct {
		name   string
		err    error
		status request.Status
	}{
		{"timeout", context.DeadlineExceeded, request.StatusTimedOut},
		{"refused", syscall.ECONNREFUSED, request.StatusCannotConnectToHost},
		{"reset", syscall.ECONNRESET, request.StatusNetworkConnectionLost},
		{"cancelled", context.Canceled, request.StatusCancelled},
		{"other", errors.New("foo"), request.StatusUnknown},
		{"url error", &url.Error{Op: "Get", URL: "x", Err: syscall.ECONNREFUSED}, request.StatusCannotConnectToHost},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ne := networkError(p, testCase.err)
			assert.Equal(t, testCase.status, ne.Status)
			var ue *url.Error
			require.True(t, errors.As(ne, &ue))
			assert.True(t, errors.Is(ne, testCase.err))
		})
	}
	t.Run("wrapped op", func(t *testing.T) {
		ne := networkError(p, syscall.ECONNRESET)
		ue := ne.Err.(*url.Error)
		assert.Equal(t, "Patch", ue.Op)
		assert.Equal(t, "http://h/x", ue.URL)
	})
}

func testOperatorServers(t *testing.T) {
	for _, server := range servers {
		server := server
		t.Run(serverName(server), func(t *testing.T) {
			op := serverOperator(server)
			defer func() { _ = op.Close() }()
			ctx := context.Background()

			t.Run("success", func(t *testing.T) {
				i := &serverInstruction{StatusCode: 200, Body: []bodyChunk{{Data: []byte("hello")}, {Data: []byte(", world")}}}
				b, err := Do(ctx, op, i.toDescriptor("/greet"))
				require.NoError(t, err)
				assert.Equal(t, "hello, world", string(b))
			})
			t.Run("error status with body is success", func(t *testing.T) {
				i := &serverInstruction{StatusCode: 500, Body: []bodyChunk{{Data: []byte("oops")}}}
				b, err := Do(ctx, op, i.toDescriptor("/fail"))
				require.NoError(t, err)
				assert.Equal(t, "oops", string(b))
			})
			t.Run("error status without body", func(t *testing.T) {
				i := &serverInstruction{StatusCode: 404}
				b, err := Do(ctx, op, i.toDescriptor("/missing"))
				assert.Nil(t, b)
				var ne *request.NetworkError
				require.True(t, errors.As(err, &ne))
				assert.Equal(t, request.Status(404), ne.Status)
			})
			t.Run("query", func(t *testing.T) {
				i := &serverInstruction{StatusCode: 200, EchoQuery: true}
				d := i.toDescriptor("/search")
				d.Task = request.Encodable{Body: i, Query: map[string]interface{}{"tags": []string{"a", "b"}}}
				b, err := Do(ctx, op, d)
				require.NoError(t, err)
				assert.Equal(t, "tags[]=a&tags[]=b", string(b))
			})
			t.Run("token", func(t *testing.T) {
				op.SetToken(auth.BearerToken("s3cret"))
				defer op.ClearToken()
				i := &serverInstruction{StatusCode: 200, EchoHeader: "Authorization"}
				d := i.toDescriptor("/me")
				d.Auth = auth.Bearer
				d.Header = map[string]string{"Authorization": "Basic eDp5"}
				b, err := Do(ctx, op, d)
				require.NoError(t, err)
				assert.Equal(t, "Bearer s3cret", string(b))
			})
			t.Run("attempt timeout", func(t *testing.T) {
				i := &serverInstruction{StatusCode: 200, HeaderPause: time.Second}
				d := i.toDescriptor("/slow")
				d.Timeout = 20 * time.Millisecond
				_, err := Do(ctx, op, d)
				var ne *request.NetworkError
				require.True(t, errors.As(err, &ne))
				assert.Equal(t, request.StatusTimedOut, ne.Status)
				assert.True(t, ne.Timeout())
			})
		})
	}
}

func testOperatorZeroValue(t *testing.T) {
	op := &Operator{}
	defer func() { _ = op.Close() }()
	u, err := url.Parse(httpServer.URL)
	require.NoError(t, err)
	i := &serverInstruction{StatusCode: 201, Body: []bodyChunk{{Data: []byte("zero")}}}
	d := i.toDescriptor("x")
	d.BaseURL = u
	b, err := Do(context.Background(), op, d)
	require.NoError(t, err)
	assert.Equal(t, "zero", string(b))
	assert.False(t, op.Authorized())
}

func testOperatorErrorStatus(t *testing.T) {
	testCases := []struct {
		name   string
		resp   *http.Response
		body   string
		status request.Status
	}{
		{name: "200 empty", resp: response(200, ""), body: ""},
		{name: "302 empty", resp: response(302, ""), body: ""},
		{name: "404 empty", resp: response(404, ""), status: 404},
		{name: "500 empty", resp: response(500, ""), status: 500},
		{name: "500 body", resp: response(500, "err"), body: "err"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			doer := newMockHTTPDoer(t)
			doer.On("Do", mock.Anything).Return(testCase.resp, nil).Once()
			op := newMockOperator(doer)
			defer func() { _ = op.Close() }()
			b, err := Do(context.Background(), op, plainDescriptor())
			if testCase.status == 0 {
				require.NoError(t, err)
				assert.Equal(t, testCase.body, string(b))
			} else {
				assert.Nil(t, b)
				var ne *request.NetworkError
				require.True(t, errors.As(err, &ne))
				assert.Equal(t, testCase.status, ne.Status)
			}
			doer.AssertExpectations(t)
		})
	}
	t.Run("no response", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(nil, nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		_, err := Do(context.Background(), op, plainDescriptor())
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, request.StatusBadServerResponse, ne.Status)
	})
	t.Run("read body error", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(&http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(&errReader{err: syscall.ECONNRESET}),
		}, nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		_, err := Do(context.Background(), op, plainDescriptor())
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, request.StatusNetworkConnectionLost, ne.Status)
	})
}

func testOperatorRetry(t *testing.T) {
	t.Run("default policy", func(t *testing.T) {
		var calls int32
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(func(*http.Request) *http.Response {
			atomic.AddInt32(&calls, 1)
			return response(429, "")
		}, nil)
		clk := clock.NewMock()
		op := newMockOperator(doer)
		op.Clock = clk
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch := make(chan outcome, 1)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})

		for i := 1; i <= request.DefaultRetryCount; i++ {
			n := int32(i)
			require.Eventually(t, func() bool {
				s, err := op.State(context.Background(), d.ID)
				return err == nil && s == Retrying && atomic.LoadInt32(&calls) == n
			}, waitFor, time.Millisecond)
			clk.Add(request.DefaultRetryInterval)
		}

		o := receive(t, ch)
		var ne *request.NetworkError
		require.True(t, errors.As(o.err, &ne))
		assert.Equal(t, request.Status(429), ne.Status)
		assert.Equal(t, int32(request.DefaultRetryCount+1), atomic.LoadInt32(&calls))
		s, err := op.State(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, Resolved, s)
	})
	t.Run("recovers", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(503, ""), nil).Once()
		doer.On("Do", mock.Anything).Return(response(200, "ok"), nil).Once()
		op := newMockOperator(doer)
		op.RetryPolicy = retry.Fixed(time.Millisecond, 3)
		defer func() { _ = op.Close() }()
		b, err := Do(context.Background(), op, plainDescriptor())
		require.NoError(t, err)
		assert.Equal(t, "ok", string(b))
		doer.AssertExpectations(t)
	})
	t.Run("descriptor disables retry", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(503, ""), nil).Once()
		op := newMockOperator(doer)
		op.RetryPolicy = retry.Fixed(time.Millisecond, 3)
		defer func() { _ = op.Close() }()
		d := plainDescriptor()
		d.Retry = &request.Retry{Enabled: false, MaxCount: 3}
		_, err := Do(context.Background(), op, d)
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, request.Status(503), ne.Status)
		doer.AssertExpectations(t)
	})
	t.Run("descriptor settings", func(t *testing.T) {
		var calls int32
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(func(*http.Request) *http.Response {
			atomic.AddInt32(&calls, 1)
			return response(503, "")
		}, nil)
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		d := plainDescriptor()
		d.Retry = &request.Retry{Enabled: true, Interval: time.Millisecond, MaxCount: 2}
		_, err := Do(context.Background(), op, d)
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})
	t.Run("not transient", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(404, ""), nil).Once()
		op := newMockOperator(doer)
		op.RetryPolicy = retry.Fixed(time.Millisecond, 3)
		defer func() { _ = op.Close() }()
		_, err := Do(context.Background(), op, plainDescriptor())
		require.Error(t, err)
		doer.AssertExpectations(t)
	})
	t.Run("cancel during wait", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(429, ""), nil).Once()
		op := newMockOperator(doer)
		op.Clock = clock.NewMock()
		defer func() { _ = op.Close() }()
		d := plainDescriptor()
		ch := make(chan outcome, 1)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
		require.Eventually(t, func() bool {
			s, _ := op.State(context.Background(), d.ID)
			return s == Retrying
		}, waitFor, time.Millisecond)
		op.Cancel(d.ID)
		o := receive(t, ch)
		assert.Same(t, request.ErrCancelled, o.err)
		doer.AssertExpectations(t)
	})
}

func testOperatorAuth(t *testing.T) {
	t.Run("rejected without io", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		d := plainDescriptor()
		d.Auth = auth.Bearer
		ch := make(chan outcome, 1)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
		o := receive(t, ch)
		assert.Same(t, auth.ErrSessionRequired, o.err)
		assert.Nil(t, o.body)
		s, err := op.State(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, Untracked, s)
		doer.AssertNotCalled(t, "Do", mock.Anything)

		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return r.Header.Get("Authorization") == "Bearer abc"
		})).Return(response(200, "me"), nil).Once()
		op.SetToken(auth.BearerToken("abc"))
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
		o = receive(t, ch)
		require.NoError(t, o.err)
		assert.Equal(t, "me", string(o.body))
		assert.True(t, op.Authorized())
		doer.AssertExpectations(t)
	})
	t.Run("token overrides caller header", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return r.Header.Get("Authorization") == "Bearer tok" &&
				r.Header.Get("X-Custom") == "1"
		})).Return(response(200, "ok"), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		op.SetToken(auth.BearerToken("tok"))
		d := plainDescriptor()
		d.Auth = auth.Bearer
		d.Header = map[string]string{"Authorization": "Basic x", "X-Custom": "1"}
		_, err := Do(context.Background(), op, d)
		require.NoError(t, err)
		doer.AssertExpectations(t)
	})
	t.Run("cleared token", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		op.SetToken(auth.BearerToken("tok"))
		op.ClearToken()
		d := plainDescriptor()
		d.Auth = auth.Bearer
		_, err := Do(context.Background(), op, d)
		assert.Same(t, auth.ErrSessionRequired, err)
		assert.False(t, op.Authorized())
	})
}

func testOperatorBatch(t *testing.T) {
	t.Run("omission cancels", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		started := make(chan struct{}, 1)
		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return strings.HasSuffix(r.URL.Path, "/a")
		})).Return(blockUntilCancelled(started), nil).Once()
		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return strings.HasSuffix(r.URL.Path, "/b")
		})).Return(response(200, "b"), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		a, b := plainDescriptor(), plainDescriptor()
		a.Path, b.Path = "a", "b"
		chA, chB := make(chan outcome, 2), make(chan outcome, 1)
		op.Submit(Call{Descriptor: a, OnComplete: collect(chA)})
		<-started
		op.Submit(Call{Descriptor: b, OnComplete: collect(chB)})

		o := receive(t, chA)
		assert.Same(t, request.ErrCancelled, o.err)
		o = receive(t, chB)
		require.NoError(t, o.err)
		assert.Equal(t, "b", string(o.body))

		s, err := op.State(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, Cancelled, s)

		// A cancelled identity is never executed again.
		op.Add(Call{Descriptor: a, OnComplete: collect(chA)})
		s, err = op.State(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, Cancelled, s)
		assert.Empty(t, chA)
		doer.AssertExpectations(t)
	})
	t.Run("add keeps others", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		release := make(chan struct{})
		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return strings.HasSuffix(r.URL.Path, "/a")
		})).Return(func(*http.Request) *http.Response {
			<-release
			return response(200, "a")
		}, nil).Once()
		doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
			return strings.HasSuffix(r.URL.Path, "/b")
		})).Return(response(200, "b"), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		a, b := plainDescriptor(), plainDescriptor()
		a.Path, b.Path = "a", "b"
		chA, chB := make(chan outcome, 1), make(chan outcome, 1)
		op.Add(Call{Descriptor: a, OnComplete: collect(chA)})
		op.Add(Call{Descriptor: b, OnComplete: collect(chB)})
		o := receive(t, chB)
		require.NoError(t, o.err)
		close(release)
		o = receive(t, chA)
		require.NoError(t, o.err)
		assert.Equal(t, "a", string(o.body))
		doer.AssertExpectations(t)
	})
	t.Run("duplicate in batch replaces", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(200, "once"), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch1, ch2 := make(chan outcome, 1), make(chan outcome, 1)
		op.Submit(
			Call{Descriptor: d, OnComplete: collect(ch1)},
			Call{Descriptor: d, OnComplete: collect(ch2)},
		)
		o := receive(t, ch2)
		require.NoError(t, o.err)
		assert.Equal(t, "once", string(o.body))
		assert.Empty(t, ch1)
		doer.AssertExpectations(t)
	})
	t.Run("resubmit in flight replaces", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		release := make(chan struct{})
		doer.On("Do", mock.Anything).Return(func(*http.Request) *http.Response {
			<-release
			return response(200, "late")
		}, nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch1, ch2 := make(chan outcome, 1), make(chan outcome, 1)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch1)})
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch2)})
		require.Eventually(t, func() bool {
			s, _ := op.State(context.Background(), d.ID)
			return s == InFlight
		}, waitFor, time.Millisecond)
		close(release)
		o := receive(t, ch2)
		require.NoError(t, o.err)
		assert.Equal(t, "late", string(o.body))
		assert.Empty(t, ch1)
	})
	t.Run("completed not re-executed", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(response(200, "x"), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch := make(chan outcome, 2)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
		receive(t, ch)
		op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
		s, err := op.State(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, Resolved, s)
		assert.Empty(t, ch)
		doer.AssertExpectations(t)
	})
}

func testOperatorCancel(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		started := make(chan struct{}, 1)
		doer.On("Do", mock.Anything).Return(blockUntilCancelled(started), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch := make(chan outcome, 1)
		op.Add(Call{Descriptor: d, OnComplete: collect(ch)})
		<-started
		op.Cancel(d.ID, uuid.New())
		o := receive(t, ch)
		assert.Same(t, request.ErrCancelled, o.err)
	})
	t.Run("do context", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(blockUntilCancelled(nil), nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		b, err := Do(ctx, op, d)
		assert.Nil(t, b)
		assert.Equal(t, context.DeadlineExceeded, err)
		require.Eventually(t, func() bool {
			s, _ := op.State(context.Background(), d.ID)
			return s == Cancelled
		}, waitFor, time.Millisecond)
	})
	t.Run("late response discarded", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		doer.On("Do", mock.Anything).Return(func(*http.Request) *http.Response {
			started <- struct{}{}
			<-release
			return response(200, "late")
		}, nil).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()

		d := plainDescriptor()
		ch := make(chan outcome, 2)
		op.Add(Call{Descriptor: d, OnComplete: collect(ch)})
		<-started
		op.Cancel(d.ID)
		o := receive(t, ch)
		assert.Same(t, request.ErrCancelled, o.err)
		assert.Nil(t, o.body)

		close(release)
		op.wg.Wait()
		// The state query is handled after the late result.
		s, err := op.State(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, Cancelled, s)
		assert.Empty(t, ch)
		doer.AssertExpectations(t)
	})
	t.Run("unknown identity", func(t *testing.T) {
		op := newMockOperator(newMockHTTPDoer(t))
		defer func() { _ = op.Close() }()
		op.Cancel(uuid.New())
		s, err := op.State(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, Untracked, s)
	})
}

func testOperatorTransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		u, err := url.Parse(server.URL)
		require.NoError(t, err)
		server.Close()

		op := &Operator{BaseURL: u, RetryPolicy: retry.Never}
		defer func() { _ = op.Close() }()
		_, err = Do(context.Background(), op, plainDescriptor())
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, request.StatusCannotConnectToHost, ne.Status)
		assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
	})
	t.Run("doer error", func(t *testing.T) {
		doer := newMockHTTPDoer(t)
		doer.On("Do", mock.Anything).Return(nil, errors.New("boom")).Once()
		op := newMockOperator(doer)
		defer func() { _ = op.Close() }()
		_, err := Do(context.Background(), op, plainDescriptor())
		var ne *request.NetworkError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, request.StatusUnknown, ne.Status)
		var ue *url.Error
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "Get", ue.Op)
		assert.EqualError(t, ue.Err, "boom")
	})
}

func testOperatorProgress(t *testing.T) {
	data := []byte(strings.Repeat("0123456789abcdef", 256))
	var total int64
	doer := newMockHTTPDoer(t)
	doer.On("Do", mock.Anything).Return(func(r *http.Request) *http.Response {
		total = r.ContentLength
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
		return response(200, "uploaded")
	}, nil).Once()
	op := newMockOperator(doer)
	defer func() { _ = op.Close() }()

	d := plainDescriptor()
	d.Method = request.Post
	d.Task = request.Multipart{
		Params: map[string]interface{}{"album": "x"},
		Files:  []request.MultipartData{{Name: "file", FileName: "f.bin", MimeType: "application/octet-stream", Data: data}},
	}

	var sent []int64
	var totals []int64
	ch := make(chan outcome, 1)
	op.Submit(Call{
		Descriptor: d,
		OnComplete: func(id uuid.UUID, body []byte, err error) {
			// Progress must never be observed after completion.
			sent = append(sent, -1)
			ch <- outcome{id, body, err}
		},
		OnProgress: func(_ uuid.UUID, s, tot int64) {
			sent = append(sent, s)
			totals = append(totals, tot)
		},
	})
	o := receive(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, "uploaded", string(o.body))

	require.GreaterOrEqual(t, len(sent), 2)
	assert.Equal(t, int64(-1), sent[len(sent)-1])
	progress := sent[:len(sent)-1]
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	assert.Equal(t, total, progress[len(progress)-1])
	for _, tot := range totals {
		assert.Equal(t, total, tot)
	}
}

func testOperatorEncodingError(t *testing.T) {
	op := &Operator{HTTPDoer: newMockHTTPDoer(t)}
	defer func() { _ = op.Close() }()
	d := plainDescriptor()
	_, err := Do(context.Background(), op, d)
	var ee *request.EncodingError
	require.True(t, errors.As(err, &ee))
	s, err := op.State(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, Untracked, s)
}

func testOperatorTypedNilParameter(t *testing.T) {
	doer := newMockHTTPDoer(t)
	doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
		return r.URL.RawQuery == "q=x"
	})).Return(response(200, "ok"), nil).Once()
	op := newMockOperator(doer)
	defer func() { _ = op.Close() }()

	d := plainDescriptor()
	d.Task = request.Params{Query: map[string]interface{}{
		"next": (*url.URL)(nil),
		"q":    "x",
	}}
	b, err := Do(context.Background(), op, d)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
	doer.AssertExpectations(t)
}

func testOperatorMaxCompleted(t *testing.T) {
	doer := newMockHTTPDoer(t)
	doer.On("Do", mock.Anything).Return(func(*http.Request) *http.Response {
		return response(200, "ok")
	}, nil).Times(3)
	op := newMockOperator(doer)
	op.MaxCompleted = 1
	defer func() { _ = op.Close() }()
	ctx := context.Background()

	a, b := plainDescriptor(), plainDescriptor()
	_, err := Do(ctx, op, a)
	require.NoError(t, err)
	_, err = Do(ctx, op, b)
	require.NoError(t, err)

	s, err := op.State(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, Untracked, s)
	s, err = op.State(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, Resolved, s)

	// A forgotten identity executes again.
	_, err = Do(ctx, op, a)
	require.NoError(t, err)
	s, err = op.State(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, Untracked, s)
	doer.AssertExpectations(t)
}

func testOperatorMaxInFlight(t *testing.T) {
	doer := newMockHTTPDoer(t)
	started := make(chan struct{}, 1)
	doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
		return strings.HasSuffix(r.URL.Path, "/a")
	})).Return(blockUntilCancelled(started), nil).Once()
	doer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
		return strings.HasSuffix(r.URL.Path, "/b")
	})).Return(response(200, "b"), nil).Once()
	op := newMockOperator(doer)
	op.MaxInFlight = 1
	defer func() { _ = op.Close() }()

	a, b := plainDescriptor(), plainDescriptor()
	a.Path, b.Path = "a", "b"
	chA, chB := make(chan outcome, 1), make(chan outcome, 1)
	op.Add(Call{Descriptor: a, OnComplete: collect(chA)})
	<-started
	op.Add(Call{Descriptor: b, OnComplete: collect(chB)})

	s, err := op.State(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, Pending, s)
	require.Eventually(t, func() bool {
		s, _ := op.State(context.Background(), a.ID)
		return s == InFlight
	}, waitFor, time.Millisecond)

	op.Cancel(a.ID)
	o := receive(t, chB)
	require.NoError(t, o.err)
	assert.Equal(t, "b", string(o.body))
	doer.AssertExpectations(t)
}

func testOperatorHandlers(t *testing.T) {
	doer := newMockHTTPDoer(t)
	doer.On("Do", mock.Anything).Return(response(503, ""), nil).Once()
	doer.On("Do", mock.Anything).Return(response(200, "ok"), nil).Once()
	handlers := &HandlerGroup{}
	tr := &trace{}
	for _, evt := range Events() {
		handlers.PushBack(evt, tr)
	}
	op := newMockOperator(doer)
	op.Handlers = handlers
	op.RetryPolicy = retry.Fixed(time.Millisecond, 1)
	defer func() { _ = op.Close() }()

	_, err := Do(context.Background(), op, plainDescriptor())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BeforeExecutionStart",
		"BeforeAttempt",
		"BeforeReadBody",
		"AfterAttempt",
		"BeforeAttempt",
		"BeforeReadBody",
		"AfterAttempt",
		"AfterExecutionEnd",
	}, tr.get())
}

func testOperatorClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	doer := newMockHTTPDoer(t)
	started := make(chan struct{}, 1)
	doer.On("Do", mock.Anything).Return(blockUntilCancelled(started), nil).Once()
	op := newMockOperator(doer)

	d := plainDescriptor()
	ch := make(chan outcome, 2)
	op.Submit(Call{Descriptor: d, OnComplete: collect(ch)})
	<-started

	require.NoError(t, op.Close())
	o := receive(t, ch)
	assert.Same(t, request.ErrCancelled, o.err)

	late := plainDescriptor()
	op.Submit(Call{Descriptor: late, OnComplete: collect(ch)})
	o = receive(t, ch)
	assert.Equal(t, late.ID, o.id)
	assert.Same(t, request.ErrClosed, o.err)

	_, err := op.State(context.Background(), d.ID)
	assert.Same(t, request.ErrClosed, err)
	assert.Same(t, request.ErrClosed, op.Close())
}

func TestOperator_CloseIdleConnections(t *testing.T) {
	t.Run("supported", func(t *testing.T) {
		doer := &mockHTTPDoerWithCloseIdleConnections{}
		doer.Test(t)
		doer.On("CloseIdleConnections").Once()
		op := &Operator{HTTPDoer: doer}
		op.CloseIdleConnections()
		doer.AssertExpectations(t)
	})
	t.Run("not supported", func(t *testing.T) {
		op := &Operator{HTTPDoer: newMockHTTPDoer(t)}
		op.CloseIdleConnections()
	})
}

type outcome struct {
	id   uuid.UUID
	body []byte
	err  error
}

func collect(ch chan<- outcome) func(uuid.UUID, []byte, error) {
	return func(id uuid.UUID, body []byte, err error) {
		ch <- outcome{id, body, err}
	}
}

func receive(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitFor):
		require.FailNow(t, "timed out waiting for completion")
		return outcome{}
	}
}

func plainDescriptor() request.Descriptor {
	return request.Descriptor{
		ID:   request.NewID(),
		Path: "/",
		Auth: auth.None,
	}
}

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newMockOperator(doer HTTPDoer) *Operator {
	u, _ := url.Parse("http://api.example.com/v1")
	return &Operator{
		BaseURL:  u,
		HTTPDoer: doer,
	}
}

// blockUntilCancelled returns a mock response function that signals
// started, if not nil, and then blocks until the request is cancelled.
func blockUntilCancelled(started chan<- struct{}) func(*http.Request) (*http.Response, error) {
	return func(r *http.Request) (*http.Response, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-r.Context().Done()
		return nil, r.Context().Err()
	}
}

type errReader struct {
	err error
}

func (r *errReader) Read(_ []byte) (int, error) {
	return 0, r.err
}

type mockHTTPDoer struct {
	mock.Mock
}

func newMockHTTPDoer(t *testing.T) *mockHTTPDoer {
	m := &mockHTTPDoer{}
	m.Test(t)
	return m
}

func (m *mockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	err := args.Error(1)
	switch r := args.Get(0).(type) {
	case *http.Response:
		return r, err
	case func(*http.Request) *http.Response:
		return r(req), err
	case func(*http.Request) (*http.Response, error):
		return r(req)
	}
	return nil, err
}

type mockHTTPDoerWithCloseIdleConnections struct {
	mockHTTPDoer
}

func (m *mockHTTPDoerWithCloseIdleConnections) CloseIdleConnections() {
	m.Called()
}

type trace struct {
	lock  sync.Mutex
	calls []string
}

func (tr *trace) Handle(evt Event, _ *request.Execution) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.calls = append(tr.calls, evt.Name())
}

func (tr *trace) get() []string {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return append([]string(nil), tr.calls...)
}
