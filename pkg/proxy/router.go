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

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/novatechflow/kafgate/internal/metrics"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/vcluster"
)

// RoutingError reports a connection that no virtual cluster claims. The
// connection is refused; there is no default upstream.
type RoutingError struct {
	Hostname string
	Port     int32
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("connection to %s:%d cannot be routed to an upstream endpoint", e.Hostname, e.Port)
}

// DialFunc opens the upstream connection. Injected so tests and TLS
// deployments can swap the transport.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// DefaultDialer dials plain TCP with a sane timeout.
func DefaultDialer(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// Router resolves each accepted connection to an upstream target, builds the
// filter chain, dials, and hands both connections to a relay pair.
type Router struct {
	Matcher  vcluster.Provider
	Cache    *BrokerAddressCache
	Factory  filter.Factory
	Registry *FailureRegistry
	Dial     DialFunc
	Logger   *slog.Logger
	// QueueHighWater is passed through to each pair.
	QueueHighWater int
}

// Route decides the upstream target for one connection. It is a pure
// function of (hostname, port) over the matcher and cache snapshots:
//
//   - matched with a node id: the learned address when the cache has one,
//     otherwise the cluster bootstrap with a warning (the client transiently
//     reaches the wrong broker until a Metadata response refreshes the cache)
//   - matched without a node id: the cluster bootstrap
//   - no match: a RoutingError, never a silent default
func (r *Router) Route(sniHostname string, port int32) (vcluster.HostPort, *vcluster.Cluster, error) {
	m := r.Matcher.Match(sniHostname, port)
	if !m.Matched {
		return vcluster.HostPort{}, nil, &RoutingError{Hostname: sniHostname, Port: port}
	}
	if m.NodeID != nil {
		if addr, ok := r.Cache.Get(*m.NodeID); ok {
			return addr, m.Cluster, nil
		}
		r.logger().Warn("no learned address for broker, using bootstrap",
			"cluster", m.Cluster.Name, "node_id", *m.NodeID)
	}
	return m.Cluster.Bootstrap, m.Cluster, nil
}

// Serve routes, dials, and relays one accepted connection. It blocks until
// the pair tears down and closes conn on every failure path. Reads from the
// client begin only after the upstream connect succeeds.
func (r *Router) Serve(ctx context.Context, conn net.Conn, sniHostname string, port int32) {
	target, cluster, err := r.Route(sniHostname, port)
	if err != nil {
		metrics.RoutingFailures.Inc()
		r.logger().Warn("connection refused", "error", err)
		conn.Close()
		return
	}
	dial := r.Dial
	if dial == nil {
		dial = DefaultDialer
	}
	upstream, err := dial(ctx, target.String())
	if err != nil {
		r.logger().Warn("upstream dial failed", "cluster", cluster.Name, "target", target.String(), "error", err)
		conn.Close()
		return
	}

	chain := filter.NewChain(r.factoryFilters())
	chain.Append(newCacheUpdateFilter(r.Cache, r.logger()))

	pair := NewPair(PairConfig{
		Downstream:     conn,
		Upstream:       upstream,
		Chain:          chain,
		Registry:       r.Registry,
		Logger:         r.logger(),
		QueueHighWater: r.QueueHighWater,
	})
	pair.Run()
}

func (r *Router) factoryFilters() []filter.Filter {
	if r.Factory == nil {
		return nil
	}
	return r.Factory()
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
