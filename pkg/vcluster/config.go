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

// Package vcluster maps gateway endpoints (listen ports, TLS SNI hostnames)
// onto upstream Kafka clusters and broker node ids.
package vcluster

import (
	"errors"
	"fmt"
	"strings"
)

// HostPort is a dialable upstream address.
type HostPort struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%s:%d", hp.Host, hp.Port)
}

// IsZero reports whether the address is unset.
func (hp HostPort) IsZero() bool {
	return hp.Host == "" && hp.Port == 0
}

// Cluster describes one virtual cluster exposed by the gateway. A client
// either hits the bootstrap endpoint (no broker affinity yet) or a per-broker
// endpoint identified by port offset or SNI hostname pattern.
type Cluster struct {
	// Name identifies the cluster in logs and metrics.
	Name string `json:"name"`
	// Bootstrap is the upstream bootstrap address connections fall back to.
	Bootstrap HostPort `json:"bootstrap"`
	// BootstrapPort is the gateway listen port for bootstrap connections.
	BootstrapPort int32 `json:"bootstrap_port"`
	// SNIBootstrap optionally names the TLS SNI hostname for bootstrap.
	SNIBootstrap string `json:"sni_bootstrap,omitempty"`
	// SNIPattern optionally maps SNI hostnames to node ids; it must contain
	// a single %d placeholder, e.g. "broker-%d.kafka.example.com".
	SNIPattern string `json:"sni_pattern,omitempty"`
	// BrokerPortBase with BrokerCount maps gateway port base+i to node id i.
	BrokerPortBase int32 `json:"broker_port_base,omitempty"`
	BrokerCount    int32 `json:"broker_count,omitempty"`
}

// Validate checks the cluster definition for internal consistency.
func (c *Cluster) Validate() error {
	if c.Name == "" {
		return errors.New("cluster name required")
	}
	if c.Bootstrap.Host == "" || c.Bootstrap.Port <= 0 {
		return fmt.Errorf("cluster %s: bootstrap address required", c.Name)
	}
	if c.BootstrapPort <= 0 && c.SNIBootstrap == "" {
		return fmt.Errorf("cluster %s: bootstrap port or SNI hostname required", c.Name)
	}
	if c.SNIPattern != "" && strings.Count(c.SNIPattern, "%d") != 1 {
		return fmt.Errorf("cluster %s: SNI pattern needs exactly one %%d placeholder", c.Name)
	}
	if c.BrokerCount < 0 {
		return fmt.Errorf("cluster %s: broker count negative", c.Name)
	}
	if c.BrokerCount > 0 && c.BrokerPortBase <= 0 {
		return fmt.Errorf("cluster %s: broker port base required with broker count", c.Name)
	}
	return nil
}

// Match is the outcome of resolving one accepted connection against the
// configured clusters. NodeID is nil for bootstrap connections.
type Match struct {
	Matched bool
	NodeID  *int32
	Cluster *Cluster
}
