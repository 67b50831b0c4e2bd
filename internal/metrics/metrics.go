// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the archive's operational counters. The
// host decides whether to serve them; the core only increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arkive",
		Name:      "messages_dispatched_total",
		Help:      "Messages routed by the dispatcher, by outcome.",
	}, []string{"outcome"})

	BytesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arkive",
		Name:      "segment_bytes_appended_total",
		Help:      "Payload bytes appended to dataset segments.",
	}, []string{"dataset"})

	QueriesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arkive",
		Name:      "queries_served_total",
		Help:      "Dataset queries served, by dataset.",
	}, []string{"dataset"})

	BytesReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arkive",
		Name:      "repack_bytes_reclaimed_total",
		Help:      "Bytes reclaimed by segment repacks.",
	}, []string{"dataset"})
)
