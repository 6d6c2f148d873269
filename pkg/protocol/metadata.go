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

import "fmt"

// ParseResponseHeader reads the correlation id from a response payload and
// returns a reader positioned at the response body. flexibleHeader must be
// computed with IsFlexibleResponseHeader for the request that was sent.
func ParseResponseHeader(b []byte, flexibleHeader bool) (int32, *byteReader, error) {
	reader := newByteReader(b)
	correlationID, err := reader.Int32()
	if err != nil {
		return 0, nil, fmt.Errorf("read correlation id: %w", err)
	}
	if flexibleHeader {
		if err := reader.SkipTaggedFields(); err != nil {
			return 0, nil, fmt.Errorf("skip response header tags: %w", err)
		}
	}
	return correlationID, reader, nil
}

// ParseMetadataResponse decodes a Metadata response payload (header included)
// at the given request version. It is the inverse of EncodeMetadataResponse.
func ParseMetadataResponse(b []byte, version int16) (*MetadataResponse, error) {
	if version < 0 || version > 12 {
		return nil, fmt.Errorf("metadata response version %d not supported", version)
	}
	flexible := version >= 9
	correlationID, r, err := ParseResponseHeader(b, flexible)
	if err != nil {
		return nil, err
	}
	resp := &MetadataResponse{CorrelationID: correlationID, ControllerID: -1}
	if version >= 3 {
		if resp.ThrottleMs, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read throttle: %w", err)
		}
	}
	var brokerCount int32
	if flexible {
		brokerCount, err = r.CompactArrayLen()
	} else {
		brokerCount, err = r.Int32()
	}
	if err != nil {
		return nil, fmt.Errorf("read broker count: %w", err)
	}
	if brokerCount < 0 {
		return nil, fmt.Errorf("broker count invalid %d", brokerCount)
	}
	resp.Brokers = make([]MetadataBroker, 0, brokerCount)
	for i := int32(0); i < brokerCount; i++ {
		var broker MetadataBroker
		if broker.NodeID, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read broker[%d] node id: %w", i, err)
		}
		if flexible {
			broker.Host, err = r.CompactString()
		} else {
			broker.Host, err = r.String()
		}
		if err != nil {
			return nil, fmt.Errorf("read broker[%d] host: %w", i, err)
		}
		if broker.Port, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read broker[%d] port: %w", i, err)
		}
		if version >= 1 {
			if flexible {
				broker.Rack, err = r.CompactNullableString()
			} else {
				broker.Rack, err = r.NullableString()
			}
			if err != nil {
				return nil, fmt.Errorf("read broker[%d] rack: %w", i, err)
			}
		}
		if flexible {
			if err := r.SkipTaggedFields(); err != nil {
				return nil, fmt.Errorf("skip broker[%d] tags: %w", i, err)
			}
		}
		resp.Brokers = append(resp.Brokers, broker)
	}
	if version >= 2 {
		if flexible {
			resp.ClusterID, err = r.CompactNullableString()
		} else {
			resp.ClusterID, err = r.NullableString()
		}
		if err != nil {
			return nil, fmt.Errorf("read cluster id: %w", err)
		}
	}
	if version >= 1 {
		if resp.ControllerID, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read controller id: %w", err)
		}
	}
	var topicCount int32
	if flexible {
		topicCount, err = r.CompactArrayLen()
	} else {
		topicCount, err = r.Int32()
	}
	if err != nil {
		return nil, fmt.Errorf("read topic count: %w", err)
	}
	if topicCount < 0 {
		return nil, fmt.Errorf("topic count invalid %d", topicCount)
	}
	resp.Topics = make([]MetadataTopic, 0, topicCount)
	for i := int32(0); i < topicCount; i++ {
		var topic MetadataTopic
		if topic.ErrorCode, err = r.Int16(); err != nil {
			return nil, fmt.Errorf("read topic[%d] error code: %w", i, err)
		}
		if version >= 10 {
			var namePtr *string
			if flexible {
				namePtr, err = r.CompactNullableString()
			} else {
				namePtr, err = r.NullableString()
			}
			if err != nil {
				return nil, fmt.Errorf("read topic[%d] name: %w", i, err)
			}
			if namePtr != nil {
				topic.Name = *namePtr
			}
			if topic.TopicID, err = r.UUID(); err != nil {
				return nil, fmt.Errorf("read topic[%d] id: %w", i, err)
			}
			if version >= 1 {
				if topic.IsInternal, err = r.Bool(); err != nil {
					return nil, fmt.Errorf("read topic[%d] internal flag: %w", i, err)
				}
			}
		} else {
			if flexible {
				topic.Name, err = r.CompactString()
			} else {
				topic.Name, err = r.String()
			}
			if err != nil {
				return nil, fmt.Errorf("read topic[%d] name: %w", i, err)
			}
			if version >= 1 {
				if topic.IsInternal, err = r.Bool(); err != nil {
					return nil, fmt.Errorf("read topic[%d] internal flag: %w", i, err)
				}
			}
		}
		var partCount int32
		if flexible {
			partCount, err = r.CompactArrayLen()
		} else {
			partCount, err = r.Int32()
		}
		if err != nil {
			return nil, fmt.Errorf("read topic[%d] partition count: %w", i, err)
		}
		if partCount < 0 {
			return nil, fmt.Errorf("topic[%d] partition count invalid %d", i, partCount)
		}
		topic.Partitions = make([]MetadataPartition, 0, partCount)
		for j := int32(0); j < partCount; j++ {
			var part MetadataPartition
			if part.ErrorCode, err = r.Int16(); err != nil {
				return nil, fmt.Errorf("read partition error code: %w", err)
			}
			if part.PartitionIndex, err = r.Int32(); err != nil {
				return nil, fmt.Errorf("read partition index: %w", err)
			}
			if part.LeaderID, err = r.Int32(); err != nil {
				return nil, fmt.Errorf("read partition leader: %w", err)
			}
			if version >= 7 {
				if part.LeaderEpoch, err = r.Int32(); err != nil {
					return nil, fmt.Errorf("read partition leader epoch: %w", err)
				}
			}
			if part.ReplicaNodes, err = readInt32Array(r, flexible); err != nil {
				return nil, fmt.Errorf("read replica nodes: %w", err)
			}
			if part.ISRNodes, err = readInt32Array(r, flexible); err != nil {
				return nil, fmt.Errorf("read isr nodes: %w", err)
			}
			if version >= 5 {
				if part.OfflineReplicas, err = readInt32Array(r, flexible); err != nil {
					return nil, fmt.Errorf("read offline replicas: %w", err)
				}
			}
			if flexible {
				if err := r.SkipTaggedFields(); err != nil {
					return nil, fmt.Errorf("skip partition tags: %w", err)
				}
			}
			topic.Partitions = append(topic.Partitions, part)
		}
		if version >= 8 {
			if topic.TopicAuthorizedOperations, err = r.Int32(); err != nil {
				return nil, fmt.Errorf("read topic[%d] authorized ops: %w", i, err)
			}
		}
		if flexible {
			if err := r.SkipTaggedFields(); err != nil {
				return nil, fmt.Errorf("skip topic[%d] tags: %w", i, err)
			}
		}
		resp.Topics = append(resp.Topics, topic)
	}
	// cluster_authorized_operations was removed again in v11
	if version >= 8 && version <= 10 {
		if resp.ClusterAuthorizedOperations, err = r.Int32(); err != nil {
			return nil, fmt.Errorf("read cluster authorized ops: %w", err)
		}
	}
	if flexible {
		if err := r.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip response tags: %w", err)
		}
	}
	return resp, nil
}

func readInt32Array(r *byteReader, flexible bool) ([]int32, error) {
	var count int32
	var err error
	if flexible {
		count, err = r.CompactArrayLen()
	} else {
		count, err = r.Int32()
	}
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("array length invalid %d", count)
	}
	out := make([]int32, 0, count)
	for i := int32(0); i < count; i++ {
		v, err := r.Int32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
