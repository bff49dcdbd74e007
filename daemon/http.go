// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/we-are-mono/fwlogd/daemon/logger"
)

// HTTPServer exposes Prometheus metrics and a read-only JSON view of the
// daemon. POST /api/reload is the only mutating route.
type HTTPServer struct {
	src    Source
	router *mux.Router
	server *http.Server
	now    func() time.Time
	log    logger.Logger
}

func NewHTTPServer(addr string, src Source, gatherer prometheus.Gatherer) *HTTPServer {
	s := &HTTPServer{
		src:    src,
		router: mux.NewRouter(),
		now:    time.Now,
		log:    logger.With(logger.Field{Key: "component", Value: "http"}),
	}
	s.setupRoutes(gatherer)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/counters", s.handleCounters).Methods("GET")
	s.router.HandleFunc("/api/reload", s.handleReloadState).Methods("GET")
	s.router.HandleFunc("/api/reload", s.handleReload).Methods("POST")
}

// ServeHTTP implements http.Handler.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info("HTTP endpoint listening", logger.Field{Key: "addr", Value: s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, Report(s.src, s.now()))
}

func (s *HTTPServer) handleCounters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.src.Counters())
}

func (s *HTTPServer) handleReloadState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.src.ReloadStatus())
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	s.src.RequestReload()
	s.log.Info("Reload requested over HTTP", logger.Field{Key: "remote", Value: r.RemoteAddr})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"message": "Reload requested"})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write HTTP response", logger.Field{Key: "error", Value: err.Error()})
	}
}
