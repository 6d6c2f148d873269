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
	"sync"

	"github.com/novatechflow/kafgate/internal/metrics"
	"github.com/novatechflow/kafgate/pkg/vcluster"
)

// BrokerAddressCache maps broker node ids to the upstream addresses learned
// from Metadata responses. Entries are overwritten unconditionally and never
// removed; the newest Metadata response wins.
type BrokerAddressCache struct {
	mu    sync.RWMutex
	addrs map[int32]vcluster.HostPort
}

// NewBrokerAddressCache returns an empty cache.
func NewBrokerAddressCache() *BrokerAddressCache {
	return &BrokerAddressCache{addrs: make(map[int32]vcluster.HostPort)}
}

// Put stores addr for nodeID and returns the previous address, if any, so the
// caller can log changes. The previous value never gates the write.
func (c *BrokerAddressCache) Put(nodeID int32, addr vcluster.HostPort) (vcluster.HostPort, bool) {
	c.mu.Lock()
	prev, ok := c.addrs[nodeID]
	c.addrs[nodeID] = addr
	size := len(c.addrs)
	c.mu.Unlock()
	metrics.BrokerCacheSize.Set(float64(size))
	return prev, ok
}

// Get returns the learned address for nodeID.
func (c *BrokerAddressCache) Get(nodeID int32) (vcluster.HostPort, bool) {
	c.mu.RLock()
	addr, ok := c.addrs[nodeID]
	c.mu.RUnlock()
	return addr, ok
}

// Len reports the number of learned node ids.
func (c *BrokerAddressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.addrs)
}
