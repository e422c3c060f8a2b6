// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace is the Prometheus namespace for every metric in this
	// project.
	chatNamespace = "gardenchat"

	// Common label names.
	kindLabelName   = "kind"
	resultLabelName = "result"
)

var (
	OnlineSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "online_sessions",
			Help:      "number of currently authenticated sessions",
		})

	ConnectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "connections_accepted_total",
			Help:      "number of TCP connections accepted",
		})

	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "login_attempts_total",
			Help:      "number of login attempts by result",
		}, []string{resultLabelName})

	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "messages_processed_total",
			Help:      "number of inbound messages handled by kind",
		}, []string{kindLabelName})

	MessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "messages_delivered_total",
			Help:      "number of outbound messages written to peers",
		})

	DeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "delivery_failures_total",
			Help:      "number of outbound writes that failed",
		})

	RoutedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "routed_bytes_total",
			Help:      "payload bytes routed by kind",
		}, []string{kindLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer returns the global Prometheus Registerer, falling back to
// prometheus.DefaultRegisterer when Register was never called.
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register registers all metrics defined by this package.
// It should be called once during process startup.
func Register(r prometheus.Registerer) {
	r.MustRegister(OnlineSessions)
	r.MustRegister(ConnectionsAccepted)
	r.MustRegister(LoginAttempts)
	r.MustRegister(MessagesProcessed)
	r.MustRegister(MessagesDelivered)
	r.MustRegister(DeliveryFailures)
	r.MustRegister(RoutedBytes)
	metricRegisterer = r
}
