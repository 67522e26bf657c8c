// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httpaccess logs served HTTP requests with the node logger.
package httpaccess

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/ethersphere/raffle/pkg/logging"
	"github.com/ethersphere/raffle/pkg/tracing"
)

// RequestIDHeader is set on every response with the id under which the
// request was logged. A request id sent by the client is kept, otherwise
// the trace id of the request span is used when tracing is enabled.
const RequestIDHeader = "X-Request-Id"

// NewHTTPAccessLogHandler creates a handler that will log a message after a
// request has been served. Every request is served within a span started by
// the tracer, which continues a trace propagated in the request headers.
// Responses with a server error status are logged at the error level
// regardless of level.
func NewHTTPAccessLogHandler(logger logging.Logger, level logrus.Level, tracer *tracing.Tracer, message string) func(h http.Handler) http.Handler {
	var lastID atomic.Uint64
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			ctx, _ := tracer.WithContextFromHTTPHeaders(r.Context(), r.Header)
			span, entry, ctx := tracer.StartSpanFromContext(ctx, r.Method+" "+r.URL.Path, logger)
			defer span.Finish()
			ext.SpanKindRPCServer.Set(span)
			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.String())

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = tracing.TraceID(tracing.FromContext(ctx))
			}
			if requestID == "" {
				requestID = strconv.FormatUint(lastID.Inc(), 10)
			}
			w.Header().Set(RequestIDHeader, requestID)
			_ = tracer.AddContextHTTPHeader(ctx, w.Header())

			rl := &responseLogger{w: w, level: level}
			ctx = context.WithValue(ctx, accountKey{}, &rl.account)

			h.ServeHTTP(rl, r.WithContext(ctx))

			status := rl.status
			if status == 0 {
				status = http.StatusOK
			}
			ext.HTTPStatusCode.Set(span, uint16(status))
			if status >= http.StatusInternalServerError {
				ext.Error.Set(span, true)
			}

			if rl.level == 0 {
				return
			}
			lvl := rl.level
			if status >= http.StatusInternalServerError && lvl > logrus.ErrorLevel {
				lvl = logrus.ErrorLevel
			}
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			fields := logrus.Fields{
				"id":       requestID,
				"ip":       ip,
				"method":   r.Method,
				"uri":      r.RequestURI,
				"proto":    r.Proto,
				"status":   status,
				"size":     rl.size,
				"duration": time.Since(startTime).Seconds(),
			}
			if rl.account != "" {
				fields["account"] = rl.account
				span.SetTag("account", rl.account)
			}
			if v := r.UserAgent(); v != "" {
				fields["user-agent"] = v
			}
			if v := r.Header.Get("X-Forwarded-For"); v != "" {
				fields["x-forwarded-for"] = v
			}

			entry.WithFields(fields).Log(lvl, message)
		})
	}
}

// SetAccessLogLevelHandler overrides the log level set in
// NewHTTPAccessLogHandler for a specific endpoint. Use log level 0 to suppress
// log messages.
func SetAccessLogLevelHandler(level logrus.Level) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl, ok := w.(*responseLogger); ok {
				rl.level = level
			}
			h.ServeHTTP(w, r)
		})
	}
}

type accountKey struct{}

// SetAccount records the account that sent the transaction served by the
// request, so that it is included in the access log entry. It is a no-op if
// the request is not served through the access log handler.
func SetAccount(r *http.Request, account string) {
	if v, ok := r.Context().Value(accountKey{}).(*string); ok {
		*v = account
	}
}

type responseLogger struct {
	w       http.ResponseWriter
	status  int
	size    int
	level   logrus.Level
	account string
}

func (l *responseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *responseLogger) Flush() {
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (l *responseLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return l.w.(http.Hijacker).Hijack()
}

func (l *responseLogger) CloseNotify() <-chan bool {
	// staticcheck SA1019 CloseNotifier interface is required by gorilla compress handler
	// nolint:staticcheck
	return l.w.(http.CloseNotifier).CloseNotify()
}

func (l *responseLogger) Write(b []byte) (int, error) {
	size, err := l.w.Write(b)
	l.size += size
	return size, err
}

func (l *responseLogger) WriteHeader(s int) {
	l.w.WriteHeader(s)
	if l.status == 0 {
		l.status = s
	}
}
