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

// Kafka API keys the gateway understands. Frames carrying other keys are still
// relayed, but only as opaque payloads behind a parsed header.
const (
	APIKeyProduce         int16 = 0
	APIKeyFetch           int16 = 1
	APIKeyListOffsets     int16 = 2
	APIKeyMetadata        int16 = 3
	APIKeyOffsetCommit    int16 = 8
	APIKeyOffsetFetch     int16 = 9
	APIKeyFindCoordinator int16 = 10
	APIKeyJoinGroup       int16 = 11
	APIKeyHeartbeat       int16 = 12
	APIKeyLeaveGroup      int16 = 13
	APIKeySyncGroup       int16 = 14
	APIKeyApiVersion      int16 = 18
	APIKeyCreateTopics    int16 = 19
	APIKeyDeleteTopics    int16 = 20
	APIKeyDescribeGroups  int16 = 15
	APIKeyListGroups      int16 = 16
	APIKeyDescribeConfigs int16 = 32
	APIKeyDeleteGroups    int16 = 42
)

// ApiVersion describes the supported version range for an API.
type ApiVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// IsFlexibleRequest reports whether requests for apiKey at version use the
// flexible (compact, tagged-field) encoding, including the v2 request header.
// The table covers the APIs commonly seen on client connections; unknown keys
// are treated as rigid, which is safe for header fields shared by both formats.
func IsFlexibleRequest(apiKey, version int16) bool {
	switch apiKey {
	case APIKeyProduce:
		return version >= 9
	case APIKeyFetch:
		return version >= 12
	case APIKeyListOffsets:
		return version >= 6
	case APIKeyMetadata:
		return version >= 9
	case APIKeyOffsetCommit:
		return version >= 8
	case APIKeyOffsetFetch:
		return version >= 6
	case APIKeyFindCoordinator:
		return version >= 3
	case APIKeyJoinGroup:
		return version >= 6
	case APIKeyHeartbeat:
		return version >= 4
	case APIKeyLeaveGroup:
		return version >= 4
	case APIKeySyncGroup:
		return version >= 4
	case APIKeyApiVersion:
		return version >= 3
	case APIKeyCreateTopics:
		return version >= 5
	case APIKeyDeleteTopics:
		return version >= 4
	case APIKeyDescribeGroups:
		return version >= 5
	case APIKeyListGroups:
		return version >= 3
	case APIKeyDescribeConfigs:
		return version >= 4
	case APIKeyDeleteGroups:
		return version >= 2
	default:
		return false
	}
}

// IsFlexibleResponseHeader reports whether the response header for apiKey at
// version carries tagged fields. ApiVersions responses always use the rigid
// header so that clients can decode the version-negotiation error path.
func IsFlexibleResponseHeader(apiKey, version int16) bool {
	if apiKey == APIKeyApiVersion {
		return false
	}
	return IsFlexibleRequest(apiKey, version)
}
