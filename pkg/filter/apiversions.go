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

package filter

import (
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// ApiVersionsFilter answers ApiVersions requests locally instead of letting
// them reach the broker, pinning the version ranges clients may negotiate
// through the gateway.
type ApiVersionsFilter struct {
	versions []protocol.ApiVersion
}

// NewApiVersionsFilter builds the filter; a nil slice selects the gateway's
// default advertised ranges.
func NewApiVersionsFilter(versions []protocol.ApiVersion) *ApiVersionsFilter {
	if versions == nil {
		versions = GatewayApiVersions()
	}
	return &ApiVersionsFilter{versions: versions}
}

func (f *ApiVersionsFilter) Name() string { return "api-versions" }

func (f *ApiVersionsFilter) OnRequest(req *Request) (RequestVerdict, error) {
	if req.Header.APIKey != protocol.APIKeyApiVersion {
		return ForwardRequest(req), nil
	}
	version := req.Header.APIVersion
	errorCode := protocol.NONE
	if version < 0 || version > 4 {
		// Clients retry with v0 after an UNSUPPORTED_VERSION answer that
		// still lists the ranges we do speak.
		version = 0
		errorCode = protocol.UNSUPPORTED_VERSION
	}
	payload, err := protocol.EncodeApiVersionsResponse(&protocol.ApiVersionsResponse{
		CorrelationID: req.Header.CorrelationID,
		ErrorCode:     errorCode,
		Versions:      f.versions,
	}, version)
	if err != nil {
		return RequestVerdict{}, err
	}
	return ShortCircuit(payload), nil
}

// GatewayApiVersions lists the ranges the gateway advertises when it
// intercepts ApiVersions itself.
func GatewayApiVersions() []protocol.ApiVersion {
	supported := []struct {
		key      int16
		min, max int16
	}{
		{key: protocol.APIKeyApiVersion, min: 0, max: 4},
		{key: protocol.APIKeyMetadata, min: 0, max: 12},
		{key: protocol.APIKeyProduce, min: 0, max: 9},
		{key: protocol.APIKeyFetch, min: 1, max: 13},
		{key: protocol.APIKeyFindCoordinator, min: 0, max: 3},
		{key: protocol.APIKeyListOffsets, min: 0, max: 6},
		{key: protocol.APIKeyJoinGroup, min: 0, max: 6},
		{key: protocol.APIKeySyncGroup, min: 0, max: 4},
		{key: protocol.APIKeyHeartbeat, min: 0, max: 4},
		{key: protocol.APIKeyLeaveGroup, min: 0, max: 4},
		{key: protocol.APIKeyOffsetCommit, min: 0, max: 8},
		{key: protocol.APIKeyOffsetFetch, min: 0, max: 6},
		{key: protocol.APIKeyDescribeGroups, min: 0, max: 5},
		{key: protocol.APIKeyListGroups, min: 0, max: 3},
		{key: protocol.APIKeyCreateTopics, min: 0, max: 5},
		{key: protocol.APIKeyDeleteTopics, min: 0, max: 4},
		{key: protocol.APIKeyDescribeConfigs, min: 0, max: 4},
		{key: protocol.APIKeyDeleteGroups, min: 0, max: 2},
	}
	entries := make([]protocol.ApiVersion, 0, len(supported))
	for _, entry := range supported {
		entries = append(entries, protocol.ApiVersion{
			APIKey:     entry.key,
			MinVersion: entry.min,
			MaxVersion: entry.max,
		})
	}
	return entries
}
