// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kafgate"

var (
	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total client connections accepted.",
		},
	)
	PairsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs_active",
			Help:      "Connection pairs currently relaying.",
		},
	)
	FramesForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Frames forwarded by direction.",
		},
		[]string{"direction"},
	)
	FlowPauses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_pauses_total",
			Help:      "Reader pauses triggered by outbound congestion, by direction.",
		},
		[]string{"direction"},
	)
	SynthesizedResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_responses_total",
			Help:      "Error responses synthesized from classified transport failures.",
		},
	)
	RoutingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_failures_total",
			Help:      "Connections refused because no virtual cluster matched.",
		},
	)
	ShortCircuits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_circuits_total",
			Help:      "Requests answered by a filter without reaching the broker.",
		},
	)
	BrokerCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_cache_size",
			Help:      "Broker node ids with a learned upstream address.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		PairsActive,
		FramesForwarded,
		FlowPauses,
		SynthesizedResponses,
		RoutingFailures,
		ShortCircuits,
		BrokerCacheSize,
	)
}
