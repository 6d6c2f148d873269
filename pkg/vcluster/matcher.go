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

package vcluster

import (
	"fmt"
)

// Provider resolves accepted connections to virtual clusters. sniHostname is
// empty for plaintext connections.
type Provider interface {
	Match(sniHostname string, port int32) Match
}

// StaticProvider matches against a fixed cluster list, first match wins.
type StaticProvider struct {
	clusters []Cluster
}

// NewStaticProvider copies the cluster list; the snapshot never changes after
// construction, which keeps Match safe for concurrent use.
func NewStaticProvider(clusters []Cluster) (*StaticProvider, error) {
	copied := make([]Cluster, len(clusters))
	copy(copied, clusters)
	for i := range copied {
		if err := copied[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &StaticProvider{clusters: copied}, nil
}

// Clusters returns the snapshot, for logging and metrics.
func (p *StaticProvider) Clusters() []Cluster {
	return p.clusters
}

// Match implements Provider. A presented SNI hostname is authoritative: it
// either names a cluster or the connection does not match at all. Port ranges
// apply only to plaintext connections.
func (p *StaticProvider) Match(sniHostname string, port int32) Match {
	for i := range p.clusters {
		c := &p.clusters[i]
		if sniHostname != "" {
			if c.SNIBootstrap != "" && sniHostname == c.SNIBootstrap {
				return Match{Matched: true, Cluster: c}
			}
			if nodeID, ok := matchSNIPattern(c.SNIPattern, sniHostname); ok {
				return Match{Matched: true, NodeID: &nodeID, Cluster: c}
			}
			continue
		}
		if c.BootstrapPort > 0 && port == c.BootstrapPort {
			return Match{Matched: true, Cluster: c}
		}
		if c.BrokerCount > 0 && port >= c.BrokerPortBase && port < c.BrokerPortBase+c.BrokerCount {
			nodeID := port - c.BrokerPortBase
			return Match{Matched: true, NodeID: &nodeID, Cluster: c}
		}
	}
	return Match{}
}

func matchSNIPattern(pattern, hostname string) (int32, bool) {
	if pattern == "" {
		return 0, false
	}
	var nodeID int32
	if _, err := fmt.Sscanf(hostname, pattern, &nodeID); err != nil {
		return 0, false
	}
	if nodeID < 0 {
		return 0, false
	}
	// Sscanf tolerates trailing input; reject hostnames longer than the
	// pattern renders.
	if fmt.Sprintf(pattern, nodeID) != hostname {
		return 0, false
	}
	return nodeID, true
}
