// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the auction engine over HTTP: a JSON API for the
// sale lifecycle, admin operations, a prometheus scrape endpoint and a
// websocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/descriptor"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/registry"
	"github.com/luxfi/dax/pkg/storage"
)

// Deps wires the server to the engine's services. Registry and Ledger
// are required; the rest degrade to 503 or are skipped when absent.
type Deps struct {
	Registry    *registry.Registry
	Ledger      *ledger.Ledger
	Descriptors *descriptor.Store
	Tracker     *analytics.Tracker
	Metrics     *metric.Metrics
	Hub         *Hub
	Log         log.Logger
}

// Server is the HTTP surface over the auction engine.
type Server struct {
	registry    *registry.Registry
	funds       *ledger.Ledger
	descriptors *descriptor.Store
	tracker     *analytics.Tracker
	metrics     *metric.Metrics
	hub         *Hub
	log         log.Logger
}

// NewServer builds a server from its dependencies.
func NewServer(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("%w: registry required", auction.ErrConfiguration)
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger required", auction.ErrConfiguration)
	}
	s := &Server{
		registry:    deps.Registry,
		funds:       deps.Ledger,
		descriptors: deps.Descriptors,
		tracker:     deps.Tracker,
		metrics:     deps.Metrics,
		hub:         deps.Hub,
		log:         deps.Log,
	}
	if s.log == nil {
		s.log = log.NoLog
	}
	return s, nil
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetGatherer(), promhttp.HandlerOpts{})).Methods("GET")
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/auctions", s.handleCreateAuction).Methods("POST")
	v1.HandleFunc("/auctions", s.handleListAuctions).Methods("GET")
	v1.HandleFunc("/auctions/{id}", s.handleGetAuction).Methods("GET")
	v1.HandleFunc("/auctions/{id}/price", s.handleGetPrice).Methods("GET")
	v1.HandleFunc("/auctions/{id}/activate", s.handleActivate).Methods("POST")
	v1.HandleFunc("/auctions/{id}/purchase", s.handlePurchase).Methods("POST")
	v1.HandleFunc("/auctions/{id}/expire", s.handleExpire).Methods("POST")

	v1.HandleFunc("/admin/approve/{id}", s.handleApprove).Methods("POST")
	v1.HandleFunc("/admin/withdraw", s.handleWithdraw).Methods("POST")

	v1.HandleFunc("/stats", s.handleStats).Methods("GET")
	v1.HandleFunc("/descriptors", s.handlePutDescriptor).Methods("PUT")
	v1.HandleFunc("/descriptors/{hash}", s.handleGetDescriptor).Methods("GET")
	v1.HandleFunc("/accounts/{id}/deposit", s.handleDeposit).Methods("POST")
	v1.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")

	if s.hub != nil {
		v1.HandleFunc("/events", s.hub.ServeWS).Methods("GET")
	}
	return r
}

// countRequests tallies requests by method and status. Websocket
// upgrades bypass the recorder, which would hide the Hijacker the
// upgrade needs.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil || r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RequestsProcessed.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{
		Error:    err.Error(),
		Category: categoryFor(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, descriptor.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, auction.ErrState):
		return http.StatusConflict
	case errors.Is(err, auction.ErrFunds),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, auction.ErrConfiguration),
		errors.Is(err, descriptor.ErrEmptyDescriptor),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrZeroAccount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func categoryFor(err error) string {
	switch {
	case errors.Is(err, auction.ErrConfiguration):
		return "configuration"
	case errors.Is(err, auction.ErrState):
		return "state"
	case errors.Is(err, auction.ErrFunds):
		return "funds"
	case errors.Is(err, auction.ErrInternal):
		return "internal"
	default:
		return ""
	}
}

func pathID(r *http.Request, key string) (ids.ID, error) {
	id, err := ids.FromString(mux.Vars(r)[key])
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: invalid %s: %w", auction.ErrConfiguration, key, err)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding request body: %w", auction.ErrConfiguration, err)
	}
	return nil
}
