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

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/proxy"
	"github.com/novatechflow/kafgate/pkg/vcluster"
)

type clusterSource interface {
	vcluster.Provider
	Clusters() []vcluster.Cluster
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	source, closeSource, err := buildClusterSource(ctx, logger)
	if err != nil {
		logger.Error("virtual cluster config failed", "error", err)
		os.Exit(1)
	}
	if closeSource != nil {
		defer closeSource()
	}

	tlsConfig, err := tlsConfigFromEnv()
	if err != nil {
		logger.Error("tls config failed", "error", err)
		os.Exit(1)
	}

	listeners, err := gatewayListeners(source.Clusters(), tlsConfig)
	if err != nil {
		logger.Error("listener config failed", "error", err)
		os.Exit(1)
	}

	router := &proxy.Router{
		Matcher:        source,
		Cache:          proxy.NewBrokerAddressCache(),
		Factory:        filterFactoryFromEnv(),
		Registry:       proxy.DefaultFailureRegistry(),
		Logger:         logger,
		QueueHighWater: envInt("KAFGATE_QUEUE_HIGH_WATER", 0),
	}
	server, err := proxy.NewServer(proxy.ServerConfig{
		Listeners:      listeners,
		Router:         router,
		Logger:         logger,
		MaxConnections: envInt("KAFGATE_MAX_CONNECTIONS", 0),
	})
	if err != nil {
		logger.Error("server config failed", "error", err)
		os.Exit(1)
	}

	if adminAddr := strings.TrimSpace(os.Getenv("KAFGATE_ADMIN_ADDR")); adminAddr != "" {
		startAdminServer(ctx, adminAddr, logger, func() bool {
			return len(source.Clusters()) > 0
		})
	}

	logger.Info("gateway starting", "clusters", len(source.Clusters()), "listeners", len(listeners))
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway server error", "error", err)
		os.Exit(1)
	}
}

// buildClusterSource picks the virtual-cluster backend: etcd when endpoints
// are configured, otherwise an inline JSON snapshot, otherwise a single
// cluster described by flat environment variables.
func buildClusterSource(ctx context.Context, logger *slog.Logger) (clusterSource, func() error, error) {
	if endpoints := splitCSV(os.Getenv("KAFGATE_ETCD_ENDPOINTS")); len(endpoints) > 0 {
		source, err := vcluster.NewEtcdSource(ctx, vcluster.EtcdSourceConfig{
			Endpoints: endpoints,
			Username:  os.Getenv("KAFGATE_ETCD_USERNAME"),
			Password:  os.Getenv("KAFGATE_ETCD_PASSWORD"),
			Key:       os.Getenv("KAFGATE_ETCD_KEY"),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	}
	if raw := strings.TrimSpace(os.Getenv("KAFGATE_VCLUSTERS")); raw != "" {
		provider, err := vcluster.DecodeSnapshot([]byte(raw))
		if err != nil {
			return nil, nil, err
		}
		return provider, nil, nil
	}
	cluster, err := staticClusterFromEnv()
	if err != nil {
		return nil, nil, err
	}
	provider, err := vcluster.NewStaticProvider([]vcluster.Cluster{cluster})
	if err != nil {
		return nil, nil, err
	}
	return provider, nil, nil
}

// staticClusterFromEnv assembles the single-cluster flat configuration.
func staticClusterFromEnv() (vcluster.Cluster, error) {
	bootstrap := strings.TrimSpace(os.Getenv("KAFGATE_UPSTREAM_BOOTSTRAP"))
	if bootstrap == "" {
		return vcluster.Cluster{}, errors.New("KAFGATE_UPSTREAM_BOOTSTRAP (or KAFGATE_VCLUSTERS / KAFGATE_ETCD_ENDPOINTS) must be set")
	}
	host, port, err := splitHostPort(bootstrap)
	if err != nil {
		return vcluster.Cluster{}, fmt.Errorf("KAFGATE_UPSTREAM_BOOTSTRAP: %w", err)
	}
	return vcluster.Cluster{
		Name:           envOrDefault("KAFGATE_CLUSTER_NAME", "default"),
		Bootstrap:      vcluster.HostPort{Host: host, Port: port},
		BootstrapPort:  envPort("KAFGATE_BOOTSTRAP_PORT", 9092),
		SNIBootstrap:   strings.TrimSpace(os.Getenv("KAFGATE_SNI_BOOTSTRAP")),
		SNIPattern:     strings.TrimSpace(os.Getenv("KAFGATE_SNI_PATTERN")),
		BrokerPortBase: int32(envInt("KAFGATE_BROKER_PORT_BASE", 0)),
		BrokerCount:    int32(envInt("KAFGATE_BROKER_COUNT", 0)),
	}, nil
}

// gatewayListeners derives the listen sockets from the cluster definitions:
// every bootstrap port plus each cluster's per-broker port range, deduplicated.
// KAFGATE_LISTEN_ADDRS overrides the derivation entirely.
func gatewayListeners(clusters []vcluster.Cluster, tlsConfig *tls.Config) ([]proxy.Listener, error) {
	if addrs := splitCSV(os.Getenv("KAFGATE_LISTEN_ADDRS")); len(addrs) > 0 {
		listeners := make([]proxy.Listener, 0, len(addrs))
		for _, addr := range addrs {
			listeners = append(listeners, proxy.Listener{Addr: addr, TLSConfig: tlsConfig})
		}
		return listeners, nil
	}

	bindHost := strings.TrimSpace(os.Getenv("KAFGATE_BIND_HOST"))
	ports := map[int32]struct{}{}
	for _, c := range clusters {
		if c.BootstrapPort > 0 {
			ports[c.BootstrapPort] = struct{}{}
		}
		for i := int32(0); i < c.BrokerCount; i++ {
			ports[c.BrokerPortBase+i] = struct{}{}
		}
	}
	if len(ports) == 0 {
		return nil, errors.New("no listen ports: clusters define neither bootstrap ports nor broker port ranges")
	}
	sorted := make([]int, 0, len(ports))
	for port := range ports {
		sorted = append(sorted, int(port))
	}
	sort.Ints(sorted)
	listeners := make([]proxy.Listener, 0, len(sorted))
	for _, port := range sorted {
		listeners = append(listeners, proxy.Listener{
			Addr:      fmt.Sprintf("%s:%d", bindHost, port),
			TLSConfig: tlsConfig,
		})
	}
	return listeners, nil
}

// filterFactoryFromEnv wires the optional built-in filters into every
// connection's chain.
func filterFactoryFromEnv() filter.Factory {
	interceptApiVersions := envBool("KAFGATE_INTERCEPT_API_VERSIONS", false)
	advertisedHost := strings.TrimSpace(os.Getenv("KAFGATE_ADVERTISED_HOST"))
	advertisedPortBase := int32(envInt("KAFGATE_ADVERTISED_PORT_BASE", 0))
	if !interceptApiVersions && advertisedHost == "" {
		return nil
	}
	return func() []filter.Filter {
		var filters []filter.Filter
		if interceptApiVersions {
			filters = append(filters, filter.NewApiVersionsFilter(nil))
		}
		if advertisedHost != "" {
			filters = append(filters, filter.NewMetadataRewriteFilter(advertisedHost, advertisedPortBase))
		}
		return filters
	}
}

func tlsConfigFromEnv() (*tls.Config, error) {
	certFile := strings.TrimSpace(os.Getenv("KAFGATE_TLS_CERT"))
	keyFile := strings.TrimSpace(os.Getenv("KAFGATE_TLS_KEY"))
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("KAFGATE_TLS_CERT and KAFGATE_TLS_KEY must both be set")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func startAdminServer(ctx context.Context, addr string, logger *slog.Logger, ready func() bool) {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		http.Error(w, "no virtual clusters configured", http.StatusServiceUnavailable)
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		logger.Info("admin listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("admin server error", "error", err)
		}
	}()
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envPort(key string, fallback int) int32 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return int32(fallback)
	}
	parsed, err := strconv.ParseInt(val, 10, 32)
	if err != nil || parsed <= 0 {
		return int32(fallback)
	}
	return int32(parsed)
}

func envBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			out = append(out, val)
		}
	}
	return out
}

func splitHostPort(addr string) (string, int32, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("address %q missing port", addr)
	}
	host := addr[:idx]
	port, err := strconv.ParseInt(addr[idx+1:], 10, 32)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("address %q has invalid port", addr)
	}
	return host, int32(port), nil
}
