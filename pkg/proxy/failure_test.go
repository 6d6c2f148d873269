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
	"crypto/tls"
	"errors"
	"fmt"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

func TestClassifyFindsWrappedFailure(t *testing.T) {
	registry := DefaultFailureRegistry()
	root := tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "bare", err: root, want: true},
		{name: "wrapped once", err: fmt.Errorf("dial upstream: %w", root), want: true},
		{name: "wrapped deep", err: fmt.Errorf("relay: %w", fmt.Errorf("write: %w", fmt.Errorf("conn: %w", root))), want: true},
		{name: "unrelated", err: errors.New("connection reset by peer"), want: false},
		{name: "unrelated wrapped", err: fmt.Errorf("relay: %w", errors.New("boom")), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := registry.Classify(tc.err)
			if ok != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, ok, tc.want)
			}
			if ok && kind != FailureTLSHandshake {
				t.Fatalf("unexpected kind %q", kind)
			}
		})
	}
}

type quotaExceededError struct{}

func (quotaExceededError) Error() string { return "quota exceeded" }

func TestRegisterFailureResponseExtends(t *testing.T) {
	registry := NewFailureRegistry()
	registry.RegisterFailureResponse("quota", func(err error) bool {
		_, ok := err.(quotaExceededError)
		return ok
	}, func(req InflightRequest) ([]byte, bool, error) {
		return BuildErrorResponse(req, protocol.REQUEST_TIMED_OUT)
	})

	kind, ok := registry.Classify(fmt.Errorf("outer: %w", quotaExceededError{}))
	if !ok || kind != "quota" {
		t.Fatalf("Classify = %q %v", kind, ok)
	}
	if _, ok := registry.Builder("quota"); !ok {
		t.Fatalf("builder missing")
	}
	if _, ok := registry.Builder("other"); ok {
		t.Fatalf("unexpected builder")
	}
}

func metadataRequestPayload(t *testing.T, version int16, correlationID int32, topics ...string) []byte {
	t.Helper()
	req := kmsg.NewPtrMetadataRequest()
	req.Version = version
	for _, topic := range topics {
		name := topic
		req.Topics = append(req.Topics, kmsg.MetadataRequestTopic{Topic: &name})
	}
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	return formatter.AppendRequest(nil, req, correlationID)[4:]
}

func produceRequestPayload(t *testing.T, version int16, correlationID int32, topic string, partition int32) []byte {
	t.Helper()
	req := kmsg.NewPtrProduceRequest()
	req.Version = version
	req.Acks = -1
	req.TimeoutMillis = 30000
	kt := kmsg.NewProduceRequestTopic()
	kt.Topic = topic
	part := kmsg.NewProduceRequestTopicPartition()
	part.Partition = partition
	part.Records = []byte("batch")
	kt.Partitions = append(kt.Partitions, part)
	req.Topics = append(req.Topics, kt)
	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	return formatter.AppendRequest(nil, req, correlationID)[4:]
}

func TestBuildErrorResponseMetadata(t *testing.T) {
	payload := metadataRequestPayload(t, 4, 55, "orders", "payments")
	encoded, ok, err := BuildErrorResponse(InflightRequest{
		APIKey:        protocol.APIKeyMetadata,
		APIVersion:    4,
		CorrelationID: 55,
		Payload:       payload,
	}, protocol.UNKNOWN_SERVER_ERROR)
	if err != nil || !ok {
		t.Fatalf("BuildErrorResponse: %v %v", ok, err)
	}
	parsed, err := protocol.ParseMetadataResponse(encoded, 4)
	if err != nil {
		t.Fatalf("decode synthesized response: %v", err)
	}
	if parsed.CorrelationID != 55 {
		t.Fatalf("correlation id %d", parsed.CorrelationID)
	}
	if len(parsed.Topics) != 2 {
		t.Fatalf("topics %#v", parsed.Topics)
	}
	for _, topic := range parsed.Topics {
		if topic.ErrorCode != protocol.UNKNOWN_SERVER_ERROR {
			t.Fatalf("topic %q error code %d", topic.Name, topic.ErrorCode)
		}
	}
	if len(parsed.Brokers) != 0 {
		t.Fatalf("synthesized response must not invent brokers")
	}
}

func TestBuildErrorResponseProduce(t *testing.T) {
	payload := produceRequestPayload(t, 9, 77, "orders", 3)
	encoded, ok, err := BuildErrorResponse(InflightRequest{
		APIKey:        protocol.APIKeyProduce,
		APIVersion:    9,
		CorrelationID: 77,
		Payload:       payload,
	}, protocol.UNKNOWN_SERVER_ERROR)
	if err != nil || !ok {
		t.Fatalf("BuildErrorResponse: %v %v", ok, err)
	}
	var resp kmsg.ProduceResponse
	resp.Version = 9
	// flexible response header: correlation id + empty tagged fields
	if err := resp.ReadFrom(encoded[5:]); err != nil {
		t.Fatalf("kmsg decode: %v", err)
	}
	if len(resp.Topics) != 1 || resp.Topics[0].Topic != "orders" {
		t.Fatalf("topics %#v", resp.Topics)
	}
	part := resp.Topics[0].Partitions[0]
	if part.Partition != 3 || part.ErrorCode != protocol.UNKNOWN_SERVER_ERROR {
		t.Fatalf("partition %#v", part)
	}
}

func TestBuildErrorResponseUnsupportedAPI(t *testing.T) {
	// JoinGroup has no synthesizable error shape here; the caller closes
	// without a response.
	payload := []byte{0x00, 0x0b, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0xff}
	_, ok, err := BuildErrorResponse(InflightRequest{
		APIKey:        protocol.APIKeyJoinGroup,
		APIVersion:    0,
		CorrelationID: 1,
		Payload:       payload,
	}, protocol.UNKNOWN_SERVER_ERROR)
	if err != nil {
		t.Fatalf("BuildErrorResponse: %v", err)
	}
	if ok {
		t.Fatalf("expected no synthesizable response")
	}
}
