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
	"bufio"
	"net"
	"sync"

	"github.com/novatechflow/kafgate/internal/metrics"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// outbound owns the write half of one relay direction: a bounded frame queue
// drained by a single writer goroutine into a buffered connection.
//
// Frames are buffered and flushed when the queue drains. When the queue
// reaches its high-water mark the outbound turns congested: the feeding
// reader is paused until the queue fully drains, and every frame written
// while congested is flushed immediately so the peer keeps making progress.
type outbound struct {
	conn   net.Conn
	bw     *bufio.Writer
	frames chan []byte

	// feeder is the reader filling this queue; it is paused on congestion.
	feeder    *flow
	direction string
	highWater int
	onError   func(error)

	mu        sync.Mutex
	queued    int
	congested bool
	closed    bool

	done chan struct{}
}

func newOutbound(conn net.Conn, feeder *flow, direction string, highWater int, onError func(error)) *outbound {
	if highWater < 1 {
		highWater = defaultHighWater
	}
	return &outbound{
		conn:      conn,
		bw:        bufio.NewWriter(conn),
		frames:    make(chan []byte, highWater+2),
		feeder:    feeder,
		direction: direction,
		highWater: highWater,
		onError:   onError,
		done:      make(chan struct{}),
	}
}

const defaultHighWater = 64

func (o *outbound) start() {
	go o.writeLoop()
}

// enqueue hands a frame payload to the writer. It reports false when the
// outbound is already shut down. The queue never blocks: only the single
// feeding reader enqueues, and it is paused before the queue can overflow.
func (o *outbound) enqueue(payload []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queued++
	if !o.congested && o.queued >= o.highWater {
		o.congested = true
		o.feeder.Pause()
		metrics.FlowPauses.WithLabelValues(o.direction).Inc()
	}
	o.mu.Unlock()
	o.frames <- payload
	return true
}

// closeOnFlush asks the writer to flush everything queued so far and then
// close the connection. Queued frames are never dropped.
func (o *outbound) closeOnFlush() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	o.frames <- nil
}

// abort tears the write side down without flushing.
func (o *outbound) abort() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	o.conn.Close()
	o.frames <- nil
}

func (o *outbound) doneCh() <-chan struct{} {
	return o.done
}

func (o *outbound) writeLoop() {
	defer close(o.done)
	for payload := range o.frames {
		if payload == nil {
			o.bw.Flush()
			o.conn.Close()
			return
		}
		if err := protocol.WriteFrame(o.bw, payload); err != nil {
			o.fail(err)
			return
		}
		o.mu.Lock()
		o.queued--
		drained := o.queued == 0
		congested := o.congested
		if drained && congested {
			o.congested = false
		}
		o.mu.Unlock()
		if drained || congested {
			if err := o.bw.Flush(); err != nil {
				o.fail(err)
				return
			}
		}
		if drained && congested {
			o.feeder.Resume()
		}
		metrics.FramesForwarded.WithLabelValues(o.direction).Inc()
	}
}

func (o *outbound) fail(err error) {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.conn.Close()
	// a paused feeder must not hang on a dead writer
	o.feeder.Close()
	if o.onError != nil {
		o.onError(err)
	}
}
