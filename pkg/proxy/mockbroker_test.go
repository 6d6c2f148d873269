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
	"net"
	"sync"
	"testing"

	"github.com/novatechflow/kafgate/pkg/protocol"
	"github.com/novatechflow/kafgate/pkg/vcluster"
)

// mockBroker is a minimal in-test Kafka broker: it answers Metadata requests
// with a configured broker/topic layout and records every request header it
// sees. Other APIs go unanswered.
type mockBroker struct {
	t        *testing.T
	ln       net.Listener
	metadata protocol.MetadataResponse

	mu       sync.Mutex
	requests []protocol.RequestHeader
}

func newMockBroker(t *testing.T, metadata protocol.MetadataResponse) *mockBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mock broker listen: %v", err)
	}
	b := &mockBroker{t: t, ln: ln, metadata: metadata}
	go b.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return b
}

func (b *mockBroker) addr() vcluster.HostPort {
	tcpAddr := b.ln.Addr().(*net.TCPAddr)
	return vcluster.HostPort{Host: "127.0.0.1", Port: int32(tcpAddr.Port)}
}

func (b *mockBroker) recorded() []protocol.RequestHeader {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.RequestHeader, len(b.requests))
	copy(out, b.requests)
	return out
}

func (b *mockBroker) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.serveConn(conn)
	}
}

func (b *mockBroker) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		header, _, err := protocol.ParseRequestHeader(frame.Payload)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, *header)
		b.mu.Unlock()

		if header.APIKey != protocol.APIKeyMetadata {
			continue
		}
		resp := b.metadata
		resp.CorrelationID = header.CorrelationID
		payload, err := protocol.EncodeMetadataResponse(&resp, header.APIVersion)
		if err != nil {
			return
		}
		if err := protocol.WriteFrame(conn, payload); err != nil {
			return
		}
	}
}
