// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net"
	"net/http"

	"github.com/ethersphere/raffle/pkg/jsonhttp"
	"github.com/ethersphere/raffle/pkg/logging/httpaccess"
	"github.com/ethersphere/raffle/pkg/ratelimit"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"resenje.org/web"
)

const maxBodyBytes = 1 << 16

func (s *Service) setupRouting() {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(jsonhttp.NotFoundHandler)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Raffle")
	})

	router.Handle("/health", web.ChainHandlers(
		httpaccess.SetAccessLogLevelHandler(0), // suppress access log messages
		web.FinalHandlerFunc(s.healthHandler),
	))

	if s.registry != nil {
		router.Path("/metrics").Handler(web.ChainHandlers(
			httpaccess.SetAccessLogLevelHandler(0), // suppress access log messages
			web.FinalHandler(promhttp.InstrumentMetricHandler(
				s.registry,
				promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
			)),
		))
	}

	if s.raffle != nil {
		router.Handle("/raffle", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.raffleStatusHandler),
		})
		router.Handle("/raffle/players", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.playersHandler),
		})
		router.Handle("/raffle/players/{index}", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.playerHandler),
		})
		router.Handle("/raffle/enter", jsonhttp.MethodHandler{
			"POST": web.ChainHandlers(
				s.rateLimitHandler(s.enterLimit),
				jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
				web.FinalHandlerFunc(s.enterHandler),
			),
		})
		router.Handle("/raffle/upkeep", jsonhttp.MethodHandler{
			"GET":  http.HandlerFunc(s.checkUpkeepHandler),
			"POST": http.HandlerFunc(s.performUpkeepHandler),
		})
		router.Handle("/raffle/events", web.ChainHandlers(
			httpaccess.SetAccessLogLevelHandler(logrus.DebugLevel),
			web.FinalHandlerFunc(s.eventsWsHandler),
		))
	}

	if s.history != nil {
		router.Handle("/raffle/history", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.historyHandler),
		})
	}

	if s.coordinator != nil {
		router.Handle("/vrf/subscriptions/{id}", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.subscriptionHandler),
		})
	}

	if s.chain != nil {
		router.Handle("/chain/block", jsonhttp.MethodHandler{
			"GET": http.HandlerFunc(s.blockNumberHandler),
		})
		router.Handle("/chain/increase-time", web.ChainHandlers(
			s.devModeHandler,
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandler(jsonhttp.MethodHandler{
				"POST": http.HandlerFunc(s.increaseTimeHandler),
			}),
		))
		router.Handle("/chain/mine", web.ChainHandlers(
			s.devModeHandler,
			web.FinalHandler(jsonhttp.MethodHandler{
				"POST": http.HandlerFunc(s.mineHandler),
			}),
		))
	}

	s.Handler = web.ChainHandlers(
		httpaccess.NewHTTPAccessLogHandler(s.logger, logrus.InfoLevel, s.tracer, "api access"),
		handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger.NewEntry()), handlers.PrintRecoveryStack(true)),
		handlers.CompressHandler,
		s.pageviewMetricsHandler,
		s.responseCodeMetricsHandler,
		web.FinalHandler(router),
	)
}

// rateLimitHandler rejects requests of clients that exceeded the limit. The
// client is identified by its remote ip.
func (s *Service) rateLimitHandler(limiter *ratelimit.Limiter) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		if limiter == nil {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiter.Allow(ip, 1) {
				s.metrics.RateLimited.Inc()
				s.logger.Debugf("api: rate limit exceeded for %s", ip)
				jsonhttp.TooManyRequests(w, errRateLimitExceeded)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func (s *Service) devModeHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.devMode {
			s.logger.Tracef("api: dev mode disabled: forbidden %s", r.URL.String())
			jsonhttp.Forbidden(w, "available on development chains only")
			return
		}
		h.ServeHTTP(w, r)
	})
}
