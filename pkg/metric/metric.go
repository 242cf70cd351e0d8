// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the auction engine on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	AuctionsCreated   prometheus.Counter
	AuctionsActivated prometheus.Counter
	AuctionsSold      prometheus.Counter
	AuctionsUnsold    prometheus.Counter
	ActiveAuctions    prometheus.Gauge

	// Settlement metrics
	SalesVolume       prometheus.Counter
	FeesAccrued       prometheus.Counter
	PurchasesRejected *prometheus.CounterVec

	// API metrics
	RequestsProcessed *prometheus.CounterVec

	// Performance metrics
	SettlementDuration prometheus.Histogram
	ClearingRatio      prometheus.Histogram
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.AuctionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "auctions_created_total",
		Help:      "Total number of auctions created",
	})
	m.AuctionsActivated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "auctions_activated_total",
		Help:      "Total number of auctions activated",
	})
	m.AuctionsSold = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "auctions_sold_total",
		Help:      "Total number of auctions settled by purchase",
	})
	m.AuctionsUnsold = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "auctions_unsold_total",
		Help:      "Total number of auctions expired without a buyer",
	})
	m.ActiveAuctions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dax",
		Name:      "auctions_active",
		Help:      "Number of auctions currently accepting purchases",
	})

	m.SalesVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "sales_volume_total",
		Help:      "Sum of clearing prices across settled auctions",
	})
	m.FeesAccrued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "fees_accrued_total",
		Help:      "Sum of protocol fees collected at settlement",
	})
	m.PurchasesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "purchases_rejected_total",
		Help:      "Total number of rejected purchase attempts by reason",
	}, []string{"reason"})

	m.RequestsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dax",
		Name:      "api_requests_processed_total",
		Help:      "Total number of API requests processed",
	}, []string{"method", "status"})

	m.SettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dax",
		Name:      "settlement_duration_seconds",
		Help:      "Time to settle a purchase end to end",
		Buckets:   prometheus.DefBuckets,
	})
	m.ClearingRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dax",
		Name:      "clearing_ratio",
		Help:      "Clearing price as a fraction of the start price",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	collectors := []prometheus.Collector{
		m.AuctionsCreated,
		m.AuctionsActivated,
		m.AuctionsSold,
		m.AuctionsUnsold,
		m.ActiveAuctions,
		m.SalesVolume,
		m.FeesAccrued,
		m.PurchasesRejected,
		m.RequestsProcessed,
		m.SettlementDuration,
		m.ClearingRatio,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer.
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultRegisterer
}
