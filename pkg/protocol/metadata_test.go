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

package protocol

import (
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// wrapResponseBody prepends the response header a real broker would send for
// the given version so that ParseMetadataResponse sees a full payload.
func wrapMetadataBody(t *testing.T, body []byte, correlationID int32, version int16) []byte {
	t.Helper()
	w := newByteWriter(len(body) + 8)
	w.Int32(correlationID)
	if version >= 9 {
		w.WriteTaggedFields(0)
	}
	w.write(body)
	return w.Bytes()
}

func TestParseMetadataResponseFranzEncodingV1(t *testing.T) {
	resp := kmsg.NewPtrMetadataResponse()
	resp.Version = 1
	resp.ControllerID = 2
	broker := kmsg.NewMetadataResponseBroker()
	broker.NodeID = 2
	broker.Host = "broker-2.internal"
	broker.Port = 19092
	rack := "eu-central-1a"
	broker.Rack = &rack
	resp.Brokers = append(resp.Brokers, broker)

	payload := wrapMetadataBody(t, resp.AppendTo(nil), 11, 1)
	parsed, err := ParseMetadataResponse(payload, 1)
	if err != nil {
		t.Fatalf("ParseMetadataResponse: %v", err)
	}
	if parsed.CorrelationID != 11 || parsed.ControllerID != 2 {
		t.Fatalf("unexpected header fields: %#v", parsed)
	}
	if len(parsed.Brokers) != 1 {
		t.Fatalf("unexpected brokers: %#v", parsed.Brokers)
	}
	got := parsed.Brokers[0]
	if got.NodeID != 2 || got.Host != "broker-2.internal" || got.Port != 19092 {
		t.Fatalf("unexpected broker: %#v", got)
	}
	if got.Rack == nil || *got.Rack != "eu-central-1a" {
		t.Fatalf("unexpected rack: %#v", got.Rack)
	}
}

func TestParseMetadataResponseFranzEncodingV12(t *testing.T) {
	resp := kmsg.NewPtrMetadataResponse()
	resp.Version = 12
	resp.ControllerID = 0
	clusterID := "cluster-a"
	resp.ClusterID = &clusterID
	for i := int32(0); i < 3; i++ {
		broker := kmsg.NewMetadataResponseBroker()
		broker.NodeID = i
		broker.Host = "kafka.internal"
		broker.Port = 9092 + i
		resp.Brokers = append(resp.Brokers, broker)
	}
	topic := kmsg.NewMetadataResponseTopic()
	name := "orders"
	topic.Topic = &name
	part := kmsg.NewMetadataResponseTopicPartition()
	part.Partition = 0
	part.Leader = 1
	part.LeaderEpoch = 3
	part.Replicas = []int32{0, 1, 2}
	part.ISR = []int32{1, 2}
	topic.Partitions = append(topic.Partitions, part)
	resp.Topics = append(resp.Topics, topic)

	payload := wrapMetadataBody(t, resp.AppendTo(nil), 21, 12)
	parsed, err := ParseMetadataResponse(payload, 12)
	if err != nil {
		t.Fatalf("ParseMetadataResponse: %v", err)
	}
	if len(parsed.Brokers) != 3 || parsed.Brokers[2].Port != 9094 {
		t.Fatalf("unexpected brokers: %#v", parsed.Brokers)
	}
	if parsed.ClusterID == nil || *parsed.ClusterID != "cluster-a" {
		t.Fatalf("unexpected cluster id: %#v", parsed.ClusterID)
	}
	if len(parsed.Topics) != 1 || parsed.Topics[0].Name != "orders" {
		t.Fatalf("unexpected topics: %#v", parsed.Topics)
	}
	gotPart := parsed.Topics[0].Partitions[0]
	if gotPart.LeaderID != 1 || gotPart.LeaderEpoch != 3 {
		t.Fatalf("unexpected partition: %#v", gotPart)
	}
	if len(gotPart.ReplicaNodes) != 3 || len(gotPart.ISRNodes) != 2 {
		t.Fatalf("unexpected replica sets: %#v", gotPart)
	}
}

func TestMetadataResponseRoundTrip(t *testing.T) {
	rack := "rack-1"
	clusterID := "round-trip"
	original := &MetadataResponse{
		CorrelationID: 31,
		ThrottleMs:    10,
		Brokers: []MetadataBroker{
			{NodeID: 0, Host: "a.internal", Port: 9092, Rack: &rack},
			{NodeID: 1, Host: "b.internal", Port: 9093},
		},
		ClusterID:    &clusterID,
		ControllerID: 1,
		Topics: []MetadataTopic{
			{
				Name: "orders",
				Partitions: []MetadataPartition{
					{
						PartitionIndex:  1,
						LeaderID:        0,
						LeaderEpoch:     5,
						ReplicaNodes:    []int32{0, 1},
						ISRNodes:        []int32{0},
						OfflineReplicas: []int32{1},
					},
				},
			},
		},
	}
	for _, version := range []int16{1, 5, 7, 9, 11, 12} {
		payload, err := EncodeMetadataResponse(original, version)
		if err != nil {
			t.Fatalf("encode v%d: %v", version, err)
		}
		parsed, err := ParseMetadataResponse(payload, version)
		if err != nil {
			t.Fatalf("parse v%d: %v", version, err)
		}
		if parsed.CorrelationID != 31 {
			t.Fatalf("v%d correlation id %d", version, parsed.CorrelationID)
		}
		if len(parsed.Brokers) != 2 || parsed.Brokers[1].Host != "b.internal" {
			t.Fatalf("v%d brokers %#v", version, parsed.Brokers)
		}
		if parsed.Brokers[0].Rack == nil || *parsed.Brokers[0].Rack != "rack-1" {
			t.Fatalf("v%d rack %#v", version, parsed.Brokers[0].Rack)
		}
		part := parsed.Topics[0].Partitions[0]
		if version >= 7 && part.LeaderEpoch != 5 {
			t.Fatalf("v%d leader epoch %d", version, part.LeaderEpoch)
		}
		if version >= 5 && len(part.OfflineReplicas) != 1 {
			t.Fatalf("v%d offline replicas %#v", version, part.OfflineReplicas)
		}
	}
}

func TestParseMetadataResponseTruncated(t *testing.T) {
	payload, err := EncodeMetadataResponse(&MetadataResponse{
		CorrelationID: 1,
		Brokers:       []MetadataBroker{{NodeID: 0, Host: "x", Port: 1}},
	}, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParseMetadataResponse(payload[:len(payload)-3], 1); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}
