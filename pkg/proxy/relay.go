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

// Package proxy relays Kafka protocol traffic between one client connection
// and one upstream broker connection, running every frame through a
// per-connection filter chain.
package proxy

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/novatechflow/kafgate/internal/metrics"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// inflightQueue tracks forwarded requests awaiting their responses. Kafka
// guarantees per-connection response ordering, so a plain FIFO suffices.
type inflightQueue struct {
	mu      sync.Mutex
	entries []InflightRequest
}

func (q *inflightQueue) push(req InflightRequest) {
	q.mu.Lock()
	q.entries = append(q.entries, req)
	q.mu.Unlock()
}

func (q *inflightQueue) pop() (InflightRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return InflightRequest{}, false
	}
	req := q.entries[0]
	q.entries = q.entries[1:]
	return req, true
}

// PairConfig assembles one relay pair.
type PairConfig struct {
	Downstream net.Conn
	Upstream   net.Conn
	Chain      *filter.Chain
	Registry   *FailureRegistry
	Logger     *slog.Logger
	// QueueHighWater bounds each direction's outbound queue; zero selects
	// the default.
	QueueHighWater int
}

// Pair relays frames between a client and its upstream broker until either
// side goes away. A pair is built after the upstream connect succeeds, serves
// exactly one client connection, and is never reused.
type Pair struct {
	downstream net.Conn
	upstream   net.Conn
	chain      *filter.Chain
	registry   *FailureRegistry
	logger     *slog.Logger

	inflight inflightQueue

	downFlow *flow // gates the downstream (client) reader
	upFlow   *flow // gates the upstream (broker) reader

	toUpstream   *outbound
	toDownstream *outbound

	closing  sync.Once
	failOnce sync.Once
	done     chan struct{}
}

// NewPair wires both directions. Run starts the reader loops.
func NewPair(cfg PairConfig) *Pair {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultFailureRegistry()
	}
	p := &Pair{
		downstream: cfg.Downstream,
		upstream:   cfg.Upstream,
		chain:      cfg.Chain,
		registry:   registry,
		logger:     logger,
		downFlow:   newFlow(),
		upFlow:     newFlow(),
		done:       make(chan struct{}),
	}
	p.toUpstream = newOutbound(cfg.Upstream, p.downFlow, "upstream", cfg.QueueHighWater, p.upstreamFailed)
	p.toDownstream = newOutbound(cfg.Downstream, p.upFlow, "downstream", cfg.QueueHighWater, p.downstreamFailed)
	return p
}

// Run relays until both directions finish. It blocks.
func (p *Pair) Run() {
	metrics.PairsActive.Inc()
	defer metrics.PairsActive.Dec()

	p.toUpstream.start()
	p.toDownstream.start()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.downstreamReadLoop()
	}()
	go func() {
		defer wg.Done()
		p.upstreamReadLoop()
	}()
	wg.Wait()
	<-p.toUpstream.doneCh()
	<-p.toDownstream.doneCh()
	close(p.done)
}

// Done is closed once the pair has fully torn down.
func (p *Pair) Done() <-chan struct{} {
	return p.done
}

// downstreamReadLoop moves client requests towards the broker.
func (p *Pair) downstreamReadLoop() {
	for {
		if !p.downFlow.Wait() {
			return
		}
		frame, err := protocol.ReadFrame(p.downstream)
		if err != nil {
			p.downstreamGone(err)
			return
		}
		header, body, err := protocol.ParseRequest(frame.Payload)
		if err != nil {
			p.logger.Warn("request parse failed", "error", err)
			p.teardown()
			return
		}
		req := &filter.Request{Header: header, Body: body, Payload: frame.Payload}
		forward, shortCircuit, err := p.chain.RunRequest(req)
		if err != nil {
			p.logger.Warn("request filter failed", "api_key", header.APIKey, "error", err)
			p.teardown()
			return
		}
		if shortCircuit != nil {
			metrics.ShortCircuits.Inc()
			if !p.toDownstream.enqueue(shortCircuit) {
				return
			}
			continue
		}
		p.inflight.push(InflightRequest{
			APIKey:        forward.Header.APIKey,
			APIVersion:    forward.Header.APIVersion,
			CorrelationID: forward.Header.CorrelationID,
			Payload:       forward.Payload,
		})
		if !p.toUpstream.enqueue(forward.Payload) {
			return
		}
	}
}

// upstreamReadLoop moves broker responses back to the client.
func (p *Pair) upstreamReadLoop() {
	for {
		if !p.upFlow.Wait() {
			return
		}
		frame, err := protocol.ReadFrame(p.upstream)
		if err != nil {
			p.upstreamGone(err)
			return
		}
		entry, ok := p.inflight.pop()
		if !ok {
			p.logger.Warn("response without in-flight request, closing")
			p.teardown()
			return
		}
		resp := &filter.Response{
			APIKey:        entry.APIKey,
			APIVersion:    entry.APIVersion,
			CorrelationID: entry.CorrelationID,
			Payload:       frame.Payload,
		}
		if entry.APIKey == protocol.APIKeyMetadata {
			meta, err := protocol.ParseMetadataResponse(frame.Payload, entry.APIVersion)
			if err != nil {
				p.logger.Warn("metadata response decode failed", "version", entry.APIVersion, "error", err)
			} else {
				resp.Metadata = meta
			}
		}
		out, err := p.chain.RunResponse(resp)
		if err != nil {
			p.logger.Warn("response filter failed", "api_key", entry.APIKey, "error", err)
			p.teardown()
			return
		}
		if out == nil {
			continue
		}
		if !p.toDownstream.enqueue(out.Payload) {
			return
		}
	}
}

// downstreamGone handles the client side disappearing.
func (p *Pair) downstreamGone(err error) {
	if !errors.Is(err, io.EOF) && !isClosedConn(err) {
		p.logger.Warn("client read failed", "error", err)
	}
	p.teardown()
}

// upstreamGone handles the broker side going away. A clean EOF flushes
// whatever is queued towards the client before closing it; anything else
// runs through the failure registry first.
func (p *Pair) upstreamGone(err error) {
	if errors.Is(err, io.EOF) || isClosedConn(err) {
		p.shutdownAfterFlush()
		return
	}
	p.upstreamFailed(err)
}

// upstreamFailed classifies a transport failure against the registry. On a
// match the registered response is synthesized exactly once, for the oldest
// unanswered request, and sent before close. Unregistered failures produce a
// single warning and a plain close.
func (p *Pair) upstreamFailed(err error) {
	p.failOnce.Do(func() {
		// Stop the upstream reader first. A failed write still leaves the
		// broker connection readable, and a real response racing the
		// synthesized one would answer the same correlation id twice.
		p.upFlow.Close()
		kind, ok := p.registry.Classify(err)
		if !ok {
			p.logger.Warn("upstream failure", "error", err)
			p.shutdownAfterFlush()
			return
		}
		build, ok := p.registry.Builder(kind)
		if !ok {
			p.shutdownAfterFlush()
			return
		}
		entry, ok := p.inflight.pop()
		if !ok {
			p.shutdownAfterFlush()
			return
		}
		payload, ok, buildErr := build(entry)
		if buildErr != nil || !ok {
			if buildErr != nil {
				p.logger.Warn("error response build failed", "kind", kind, "error", buildErr)
			}
			p.shutdownAfterFlush()
			return
		}
		metrics.SynthesizedResponses.Inc()
		p.logger.Info("synthesized error response", "kind", kind, "api_key", entry.APIKey, "correlation_id", entry.CorrelationID)
		p.toDownstream.enqueue(payload)
		p.shutdownAfterFlush()
	})
}

func (p *Pair) downstreamFailed(err error) {
	if !isClosedConn(err) {
		p.logger.Warn("client write failed", "error", err)
	}
	p.teardown()
}

// shutdownAfterFlush stops reading but lets queued client-bound frames drain
// before the client connection closes.
func (p *Pair) shutdownAfterFlush() {
	p.closing.Do(func() {
		p.downFlow.Close()
		p.upFlow.Close()
		p.upstream.Close()
		p.toUpstream.abort()
		p.toDownstream.closeOnFlush()
	})
}

// teardown closes everything without flushing.
func (p *Pair) teardown() {
	p.closing.Do(func() {
		p.downFlow.Close()
		p.upFlow.Close()
		p.toUpstream.abort()
		p.toDownstream.abort()
		p.downstream.Close()
		p.upstream.Close()
	})
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
