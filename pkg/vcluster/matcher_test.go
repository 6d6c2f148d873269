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
	"testing"
)

func testClusters() []Cluster {
	return []Cluster{
		{
			Name:           "prod",
			Bootstrap:      HostPort{Host: "kafka.internal", Port: 9092},
			BootstrapPort:  19092,
			SNIBootstrap:   "bootstrap.kafka.example.com",
			SNIPattern:     "broker-%d.kafka.example.com",
			BrokerPortBase: 19100,
			BrokerCount:    3,
		},
		{
			Name:          "staging",
			Bootstrap:     HostPort{Host: "kafka-staging.internal", Port: 9092},
			BootstrapPort: 29092,
		},
	}
}

func TestStaticProviderPortMatching(t *testing.T) {
	p, err := NewStaticProvider(testClusters())
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}

	tests := []struct {
		name     string
		hostname string
		port     int32
		matched  bool
		nodeID   *int32
		cluster  string
	}{
		{name: "bootstrap port", port: 19092, matched: true, cluster: "prod"},
		{name: "first broker port", port: 19100, matched: true, nodeID: int32Ptr(0), cluster: "prod"},
		{name: "last broker port", port: 19102, matched: true, nodeID: int32Ptr(2), cluster: "prod"},
		{name: "past broker range", port: 19103},
		{name: "second cluster bootstrap", port: 29092, matched: true, cluster: "staging"},
		{name: "unknown port", port: 9999},
		{name: "sni bootstrap", hostname: "bootstrap.kafka.example.com", port: 443, matched: true, cluster: "prod"},
		{name: "sni broker", hostname: "broker-1.kafka.example.com", port: 443, matched: true, nodeID: int32Ptr(1), cluster: "prod"},
		{name: "sni no match no port match", hostname: "unknown.example.com", port: 9999},
		{name: "unknown sni on bootstrap port", hostname: "unknown.example.com", port: 19092},
		{name: "unknown sni on broker port", hostname: "unknown.example.com", port: 19100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := p.Match(tc.hostname, tc.port)
			if m.Matched != tc.matched {
				t.Fatalf("matched = %v, want %v", m.Matched, tc.matched)
			}
			if !tc.matched {
				return
			}
			if m.Cluster.Name != tc.cluster {
				t.Fatalf("cluster = %q, want %q", m.Cluster.Name, tc.cluster)
			}
			if (m.NodeID == nil) != (tc.nodeID == nil) {
				t.Fatalf("node id = %v, want %v", m.NodeID, tc.nodeID)
			}
			if m.NodeID != nil && *m.NodeID != *tc.nodeID {
				t.Fatalf("node id = %d, want %d", *m.NodeID, *tc.nodeID)
			}
		})
	}
}

func TestMatchSNIPatternRejectsPartialMatches(t *testing.T) {
	if _, ok := matchSNIPattern("broker-%d.example.com", "broker-1.example.com.evil.io"); ok {
		t.Fatalf("trailing garbage must not match")
	}
	if _, ok := matchSNIPattern("broker-%d.example.com", "broker-x.example.com"); ok {
		t.Fatalf("non-numeric must not match")
	}
	if nodeID, ok := matchSNIPattern("broker-%d.example.com", "broker-12.example.com"); !ok || nodeID != 12 {
		t.Fatalf("expected node 12, got %d %v", nodeID, ok)
	}
}

func TestClusterValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Cluster)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Cluster) {}},
		{name: "missing name", mutate: func(c *Cluster) { c.Name = "" }, wantErr: true},
		{name: "missing bootstrap", mutate: func(c *Cluster) { c.Bootstrap = HostPort{} }, wantErr: true},
		{name: "no listen endpoint", mutate: func(c *Cluster) { c.BootstrapPort = 0; c.SNIBootstrap = "" }, wantErr: true},
		{name: "bad pattern", mutate: func(c *Cluster) { c.SNIPattern = "broker.example.com" }, wantErr: true},
		{name: "count without base", mutate: func(c *Cluster) { c.BrokerPortBase = 0 }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testClusters()[0]
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDecodeSnapshot(t *testing.T) {
	payload := []byte(`[
		{
			"name": "prod",
			"bootstrap": {"host": "kafka.internal", "port": 9092},
			"bootstrap_port": 19092,
			"broker_port_base": 19100,
			"broker_count": 3
		}
	]`)
	provider, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	m := provider.Match("", 19101)
	if !m.Matched || m.NodeID == nil || *m.NodeID != 1 {
		t.Fatalf("unexpected match: %#v", m)
	}
}

func TestDecodeSnapshotRejectsInvalid(t *testing.T) {
	if _, err := DecodeSnapshot([]byte(`{`)); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
	if _, err := DecodeSnapshot([]byte(`[{"name": ""}]`)); err == nil {
		t.Fatalf("expected error for invalid cluster")
	}
}

func int32Ptr(v int32) *int32 { return &v }
