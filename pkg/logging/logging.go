// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the logger interface abstraction
// and implementation for the raffle node. It uses logrus under the hood.
package logging

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Tracef(format string, args ...interface{})
	Trace(args ...interface{})
	Debugf(format string, args ...interface{})
	Debug(args ...interface{})
	Infof(format string, args ...interface{})
	Info(args ...interface{})
	Warningf(format string, args ...interface{})
	Warning(args ...interface{})
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WriterLevel(logrus.Level) *io.PipeWriter
	NewEntry() *logrus.Entry
	Metrics() []prometheus.Collector
}

type logger struct {
	*logrus.Logger
	metrics metrics
}

func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	metrics := newMetrics()
	l.AddHook(metrics)
	return &logger{
		Logger:  l,
		metrics: metrics,
	}
}

// Noop is a logger that discards every message.
var Noop = New(ioutil.Discard, 0)

func (l *logger) NewEntry() *logrus.Entry {
	return logrus.NewEntry(l.Logger)
}

// ParseVerbosity maps the verbosity option values to a logrus level.
// Both the numeric form (0-5) and the level names are accepted.
func ParseVerbosity(verbosity string) (logrus.Level, error) {
	switch verbosity {
	case "0", "silent":
		return 0, nil
	case "1", "error":
		return logrus.ErrorLevel, nil
	case "2", "warn":
		return logrus.WarnLevel, nil
	case "3", "info":
		return logrus.InfoLevel, nil
	case "4", "debug":
		return logrus.DebugLevel, nil
	case "5", "trace":
		return logrus.TraceLevel, nil
	}
	return 0, fmt.Errorf("unknown verbosity level %q", verbosity)
}
