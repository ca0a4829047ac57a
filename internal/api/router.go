// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router over the given handler and middleware.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// CORS must be global to handle OPTIONS preflight.
	r.Use(router.middleware.CORS())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(PrometheusMetrics())
		r.Use(chiPathValue)

		r.Get("/health", router.handler.Health)

		r.Post("/votes", router.handler.IngestVote)
		r.Get("/report", router.handler.Report)
		r.Get("/anomalies", router.handler.Anomalies)

		r.Route("/detection", func(r chi.Router) {
			r.Get("/rules", router.handler.ListRules)
			r.Put("/rules/{kind}", router.handler.UpdateRule)
			r.Post("/rules/{kind}/enable", router.handler.SetRuleEnabled)
			r.Put("/thresholds/{name}", router.handler.UpdateThreshold)
			r.Put("/windows/{name}", router.handler.UpdateWindow)
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/", router.handler.MonitoringStatus)
			r.Post("/start", router.handler.StartMonitoring)
			r.Post("/stop", router.handler.StopMonitoring)
		})

		r.Post("/admin/reset", router.handler.Reset)
	})

	// WebSocket upgrade needs http.Hijacker, so it stays outside the
	// metrics middleware whose response wrapper hides it.
	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Get("/ws", router.handler.WebSocket)
	})

	// Observability
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// chiPathValue injects Chi URL params into the request so handlers
// using r.PathValue() work. This bridges chi.URLParam() with Go 1.22+'s
// r.PathValue().
func chiPathValue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		if rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if i < len(rctx.URLParams.Values) {
					r.SetPathValue(key, rctx.URLParams.Values[i])
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
