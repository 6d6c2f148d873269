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
	"log/slog"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/vcluster"
)

// cacheUpdateFilter is the terminal filter the router appends to every chain.
// Appended last, it sees responses before any user filter rewrites them, so
// the cache always holds the broker addresses the upstream actually
// advertised. It forwards every response unchanged.
type cacheUpdateFilter struct {
	cache  *BrokerAddressCache
	logger *slog.Logger
}

func newCacheUpdateFilter(cache *BrokerAddressCache, logger *slog.Logger) *cacheUpdateFilter {
	return &cacheUpdateFilter{cache: cache, logger: logger}
}

func (f *cacheUpdateFilter) Name() string { return "broker-address-learner" }

func (f *cacheUpdateFilter) OnResponse(resp *filter.Response) (filter.ResponseVerdict, error) {
	if resp.Metadata == nil {
		return filter.ForwardResponse(resp), nil
	}
	for _, broker := range resp.Metadata.Brokers {
		addr := vcluster.HostPort{Host: broker.Host, Port: broker.Port}
		prev, had := f.cache.Put(broker.NodeID, addr)
		if !had || prev != addr {
			f.logger.Info("learned broker address", "node_id", broker.NodeID, "addr", addr.String())
		}
	}
	return filter.ForwardResponse(resp), nil
}
