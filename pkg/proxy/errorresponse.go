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
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// BuildErrorResponse synthesizes an encoded error response answering the
// given unanswered request with errorCode. The response mirrors the request's
// topic and partition structure so clients attribute the error correctly.
// ok is false for APIs without a synthesizable error shape.
func BuildErrorResponse(req InflightRequest, errorCode int16) ([]byte, bool, error) {
	_, parsed, err := protocol.ParseRequest(req.Payload)
	if err != nil {
		return nil, false, err
	}
	wrapEncode := func(payload []byte, err error) ([]byte, bool, error) {
		return payload, true, err
	}
	switch req.APIKey {
	case protocol.APIKeyApiVersion:
		resp := &protocol.ApiVersionsResponse{
			CorrelationID: req.CorrelationID,
			ErrorCode:     errorCode,
		}
		return wrapEncode(protocol.EncodeApiVersionsResponse(resp, req.APIVersion))
	case protocol.APIKeyMetadata:
		metaReq := parsed.(*protocol.MetadataRequest)
		topics := make([]protocol.MetadataTopic, 0, len(metaReq.Topics)+len(metaReq.TopicIDs))
		for _, name := range metaReq.Topics {
			topics = append(topics, protocol.MetadataTopic{
				ErrorCode: errorCode,
				Name:      name,
			})
		}
		for _, id := range metaReq.TopicIDs {
			topics = append(topics, protocol.MetadataTopic{
				ErrorCode: errorCode,
				TopicID:   id,
			})
		}
		resp := &protocol.MetadataResponse{
			CorrelationID: req.CorrelationID,
			ControllerID:  -1,
			Topics:        topics,
		}
		return wrapEncode(protocol.EncodeMetadataResponse(resp, req.APIVersion))
	case protocol.APIKeyFindCoordinator:
		resp := &protocol.FindCoordinatorResponse{
			CorrelationID: req.CorrelationID,
			ErrorCode:     errorCode,
			NodeID:        -1,
		}
		return wrapEncode(protocol.EncodeFindCoordinatorResponse(resp, req.APIVersion))
	case protocol.APIKeyProduce:
		prodReq := parsed.(*protocol.ProduceRequest)
		topics := make([]protocol.ProduceTopicResponse, 0, len(prodReq.Topics))
		for _, topic := range prodReq.Topics {
			partitions := make([]protocol.ProducePartitionResponse, 0, len(topic.Partitions))
			for _, part := range topic.Partitions {
				partitions = append(partitions, protocol.ProducePartitionResponse{
					Partition:       part.Partition,
					ErrorCode:       errorCode,
					BaseOffset:      -1,
					LogAppendTimeMs: -1,
					LogStartOffset:  -1,
				})
			}
			topics = append(topics, protocol.ProduceTopicResponse{
				Name:       topic.Name,
				Partitions: partitions,
			})
		}
		resp := &protocol.ProduceResponse{
			CorrelationID: req.CorrelationID,
			Topics:        topics,
		}
		return wrapEncode(protocol.EncodeProduceResponse(resp, req.APIVersion))
	case protocol.APIKeyFetch:
		fetchReq := parsed.(*protocol.FetchRequest)
		topics := make([]protocol.FetchTopicResponse, 0, len(fetchReq.Topics))
		for _, topic := range fetchReq.Topics {
			partitions := make([]protocol.FetchPartitionResponse, 0, len(topic.Partitions))
			for _, part := range topic.Partitions {
				partitions = append(partitions, protocol.FetchPartitionResponse{
					Partition:     part.Partition,
					ErrorCode:     errorCode,
					HighWatermark: 0,
				})
			}
			topics = append(topics, protocol.FetchTopicResponse{
				Name:       topic.Name,
				TopicID:    topic.TopicID,
				Partitions: partitions,
			})
		}
		resp := &protocol.FetchResponse{
			CorrelationID: req.CorrelationID,
			Topics:        topics,
		}
		if req.APIVersion >= 7 {
			resp.ErrorCode = errorCode
			resp.SessionID = fetchReq.SessionID
		}
		return wrapEncode(protocol.EncodeFetchResponse(resp, req.APIVersion))
	default:
		return nil, false, nil
	}
}
