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

package vcluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdSourceConfig defines how the gateway reads virtual-cluster definitions
// from etcd.
type EtcdSourceConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	Key         string
	DialTimeout time.Duration
}

// DefaultEtcdKey is where the cluster list snapshot lives.
const DefaultEtcdKey = "/kafgate/vclusters"

// EtcdSource keeps a StaticProvider refreshed from a JSON snapshot stored at
// one etcd key. Match always reads the latest successfully decoded snapshot;
// a broken update leaves the previous snapshot in place.
type EtcdSource struct {
	client  *clientv3.Client
	key     string
	logger  *slog.Logger
	current atomic.Pointer[StaticProvider]
	cancel  context.CancelFunc
}

// NewEtcdSource connects, loads the initial snapshot, and starts the watcher.
// A missing key yields an empty cluster list until someone populates it.
func NewEtcdSource(ctx context.Context, cfg EtcdSourceConfig, logger *slog.Logger) (*EtcdSource, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultEtcdKey
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	source := &EtcdSource{
		client: cli,
		key:    cfg.Key,
		logger: logger,
	}
	empty, _ := NewStaticProvider(nil)
	source.current.Store(empty)
	if err := source.refreshSnapshot(ctx); err != nil {
		logger.Warn("initial vcluster snapshot load failed", "key", cfg.Key, "error", err)
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	source.cancel = cancel
	go source.watchSnapshot(watchCtx)
	return source, nil
}

// Match implements Provider against the current snapshot.
func (s *EtcdSource) Match(sniHostname string, port int32) Match {
	return s.current.Load().Match(sniHostname, port)
}

// Clusters returns the current snapshot's cluster list.
func (s *EtcdSource) Clusters() []Cluster {
	return s.current.Load().Clusters()
}

// Close stops the watcher and releases the etcd client.
func (s *EtcdSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.client.Close()
}

func (s *EtcdSource) watchSnapshot(ctx context.Context) {
	watchChan := s.client.Watch(ctx, s.key)
	for resp := range watchChan {
		if resp.Err() != nil {
			s.logger.Warn("vcluster watch error", "key", s.key, "error", resp.Err())
			continue
		}
		if err := s.refreshSnapshot(ctx); err != nil {
			s.logger.Warn("vcluster snapshot refresh failed", "key", s.key, "error", err)
			continue
		}
		s.logger.Info("vcluster snapshot updated", "key", s.key, "clusters", len(s.Clusters()))
	}
}

func (s *EtcdSource) refreshSnapshot(ctx context.Context) error {
	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(getCtx, s.key)
	if err != nil {
		return err
	}
	if len(resp.Kvs) == 0 {
		return nil
	}
	provider, err := DecodeSnapshot(resp.Kvs[0].Value)
	if err != nil {
		return err
	}
	s.current.Store(provider)
	return nil
}

// DecodeSnapshot parses a JSON cluster list into a ready provider.
func DecodeSnapshot(payload []byte) (*StaticProvider, error) {
	var clusters []Cluster
	if err := json.Unmarshal(payload, &clusters); err != nil {
		return nil, fmt.Errorf("decode vcluster snapshot: %w", err)
	}
	return NewStaticProvider(clusters)
}
