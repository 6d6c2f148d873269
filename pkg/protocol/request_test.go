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

func strPtr(s string) *string {
	return &s
}

func TestParseApiVersionsRequest(t *testing.T) {
	w := newByteWriter(16)
	w.Int16(APIKeyApiVersion)
	w.Int16(0)
	w.Int32(42)
	w.NullableString(nil)

	header, req, err := ParseRequest(w.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyApiVersion || header.CorrelationID != 42 {
		t.Fatalf("unexpected header: %#v", header)
	}
	if _, ok := req.(*ApiVersionsRequest); !ok {
		t.Fatalf("expected ApiVersionsRequest got %T", req)
	}
}

func TestParseApiVersionsRequestFlexible(t *testing.T) {
	req := kmsg.NewPtrApiVersionsRequest()
	req.Version = 3
	req.ClientSoftwareName = "kgo"
	req.ClientSoftwareVersion = "1.20.1"

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 17)
	payload = payload[4:] // drop the length prefix to match ParseRequest input

	header, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIVersion != 3 || header.CorrelationID != 17 {
		t.Fatalf("unexpected header: %#v", header)
	}
	av, ok := parsed.(*ApiVersionsRequest)
	if !ok {
		t.Fatalf("expected ApiVersionsRequest got %T", parsed)
	}
	if av.ClientSoftwareName != "kgo" || av.ClientSoftwareVersion != "1.20.1" {
		t.Fatalf("unexpected software fields: %#v", av)
	}
}

func TestParseMetadataRequest(t *testing.T) {
	w := newByteWriter(64)
	w.Int16(APIKeyMetadata)
	w.Int16(0)
	w.Int32(7)
	clientID := "client-1"
	w.NullableString(&clientID)
	w.Int32(2)
	w.String("orders")
	w.String("payments")

	header, req, err := ParseRequest(w.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.ClientID == nil || *header.ClientID != "client-1" {
		t.Fatalf("unexpected client id: %#v", header.ClientID)
	}
	metaReq, ok := req.(*MetadataRequest)
	if !ok {
		t.Fatalf("expected MetadataRequest got %T", req)
	}
	if len(metaReq.Topics) != 2 || metaReq.Topics[0] != "orders" || metaReq.Topics[1] != "payments" {
		t.Fatalf("unexpected topics: %#v", metaReq.Topics)
	}
}

func TestParseMetadataRequestFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrMetadataRequest()
	req.Version = 12
	req.AllowAutoTopicCreation = true
	req.Topics = []kmsg.MetadataRequestTopic{
		{Topic: strPtr("orders")},
	}

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 1)
	payload = payload[4:]

	header, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyMetadata || header.APIVersion != 12 {
		t.Fatalf("unexpected header: %#v", header)
	}
	metaReq, ok := parsed.(*MetadataRequest)
	if !ok {
		t.Fatalf("expected MetadataRequest got %T", parsed)
	}
	if len(metaReq.Topics) != 1 || metaReq.Topics[0] != "orders" {
		t.Fatalf("unexpected topics: %#v", metaReq.Topics)
	}
	if !metaReq.AllowAutoTopicCreation {
		t.Fatalf("expected allow auto topic creation true")
	}
}

func TestParseMetadataRequestAllTopics(t *testing.T) {
	req := kmsg.NewPtrMetadataRequest()
	req.Version = 12

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 2)
	payload = payload[4:]

	_, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	metaReq := parsed.(*MetadataRequest)
	if len(metaReq.Topics) != 0 {
		t.Fatalf("expected all-topics request, got %#v", metaReq.Topics)
	}
}

func TestParseProduceRequestFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrProduceRequest()
	req.Version = 9
	req.Acks = 1
	req.TimeoutMillis = 1500
	topic := kmsg.NewProduceRequestTopic()
	topic.Topic = "orders"
	part := kmsg.NewProduceRequestTopicPartition()
	part.Partition = 0
	part.Records = []byte("record batch payload")
	topic.Partitions = append(topic.Partitions, part)
	req.Topics = append(req.Topics, topic)

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 3)
	payload = payload[4:]

	header, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIVersion != 9 {
		t.Fatalf("unexpected version %d", header.APIVersion)
	}
	produce, ok := parsed.(*ProduceRequest)
	if !ok {
		t.Fatalf("expected ProduceRequest got %T", parsed)
	}
	if produce.Acks != 1 || produce.TimeoutMs != 1500 {
		t.Fatalf("unexpected produce fields: %#v", produce)
	}
	if len(produce.Topics) != 1 || produce.Topics[0].Name != "orders" {
		t.Fatalf("unexpected topics: %#v", produce.Topics)
	}
	if string(produce.Topics[0].Partitions[0].Records) != "record batch payload" {
		t.Fatalf("unexpected records")
	}
}

func TestParseFetchRequestFranzEncoding(t *testing.T) {
	req := kmsg.NewPtrFetchRequest()
	req.Version = 11
	req.MaxWaitMillis = 500
	req.MinBytes = 1
	req.MaxBytes = 1 << 20
	topic := kmsg.NewFetchRequestTopic()
	topic.Topic = "orders"
	part := kmsg.NewFetchRequestTopicPartition()
	part.Partition = 2
	part.FetchOffset = 99
	part.PartitionMaxBytes = 1 << 16
	topic.Partitions = append(topic.Partitions, part)
	req.Topics = append(req.Topics, topic)

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 4)
	payload = payload[4:]

	header, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyFetch || header.APIVersion != 11 {
		t.Fatalf("unexpected header: %#v", header)
	}
	fetch, ok := parsed.(*FetchRequest)
	if !ok {
		t.Fatalf("expected FetchRequest got %T", parsed)
	}
	if fetch.MaxWaitMs != 500 || fetch.MaxBytes != 1<<20 {
		t.Fatalf("unexpected fetch fields: %#v", fetch)
	}
	if len(fetch.Topics) != 1 || fetch.Topics[0].Name != "orders" {
		t.Fatalf("unexpected topics: %#v", fetch.Topics)
	}
	got := fetch.Topics[0].Partitions[0]
	if got.Partition != 2 || got.FetchOffset != 99 || got.MaxBytes != 1<<16 {
		t.Fatalf("unexpected partition: %#v", got)
	}
}

func TestParseFindCoordinatorFlexible(t *testing.T) {
	req := kmsg.NewPtrFindCoordinatorRequest()
	req.Version = 3
	req.CoordinatorKey = "gateway-e2e-consumer"

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 5)
	payload = payload[4:]

	_, parsed, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	findReq, ok := parsed.(*FindCoordinatorRequest)
	if !ok {
		t.Fatalf("expected FindCoordinatorRequest got %T", parsed)
	}
	if findReq.Key != "gateway-e2e-consumer" {
		t.Fatalf("unexpected coordinator key %q", findReq.Key)
	}
	if findReq.KeyType != 0 {
		t.Fatalf("unexpected key type %d", findReq.KeyType)
	}
}

func TestParseRequestOpaqueAPI(t *testing.T) {
	w := newByteWriter(16)
	w.Int16(APIKeyListGroups)
	w.Int16(0)
	w.Int32(10)
	w.NullableString(nil)

	header, req, err := ParseRequest(w.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if header.APIKey != APIKeyListGroups {
		t.Fatalf("unexpected api key %d", header.APIKey)
	}
	if req != nil {
		t.Fatalf("expected opaque body, got %T", req)
	}
}

func TestParseRequestTruncatedHeader(t *testing.T) {
	if _, _, err := ParseRequest([]byte{0x00, 0x03}); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}
