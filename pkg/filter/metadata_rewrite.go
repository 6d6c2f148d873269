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

// MetadataRewriteFilter rewrites broker endpoints inside Metadata responses so
// that clients keep dialling the gateway instead of following the real broker
// addresses. Broker node N is advertised as advertisedHost:(portBase+N).
//
// The filter must sit before the address-learning terminal filter in
// registration order so that the cache records the true upstream addresses
// before this rewrite applies on the response path.
type MetadataRewriteFilter struct {
	advertisedHost string
	portBase       int32
}

// NewMetadataRewriteFilter builds the rewrite filter.
func NewMetadataRewriteFilter(advertisedHost string, portBase int32) *MetadataRewriteFilter {
	return &MetadataRewriteFilter{advertisedHost: advertisedHost, portBase: portBase}
}

func (f *MetadataRewriteFilter) Name() string { return "metadata-rewrite" }

func (f *MetadataRewriteFilter) OnResponse(resp *Response) (ResponseVerdict, error) {
	if resp.Metadata == nil {
		return ForwardResponse(resp), nil
	}
	rewritten := *resp.Metadata
	rewritten.Brokers = make([]protocol.MetadataBroker, len(resp.Metadata.Brokers))
	for i, broker := range resp.Metadata.Brokers {
		broker.Host = f.advertisedHost
		broker.Port = f.portBase + broker.NodeID
		rewritten.Brokers[i] = broker
	}
	payload, err := protocol.EncodeMetadataResponse(&rewritten, resp.APIVersion)
	if err != nil {
		return ResponseVerdict{}, err
	}
	out := *resp
	out.Metadata = &rewritten
	out.Payload = payload
	return ForwardResponse(&out), nil
}
