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
	"testing"
)

func TestNewServerValidation(t *testing.T) {
	logger, _ := newTestLogger()
	router := &Router{Cache: NewBrokerAddressCache(), Logger: logger}

	if _, err := NewServer(ServerConfig{Router: router}); err == nil {
		t.Fatalf("expected error without listeners")
	}
	if _, err := NewServer(ServerConfig{Listeners: []Listener{{Addr: ":9092"}}}); err == nil {
		t.Fatalf("expected error without router")
	}

	srv, err := NewServer(ServerConfig{
		Listeners: []Listener{{Addr: ":9092"}},
		Router:    router,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if got := cap(srv.sem); got != defaultMaxConnections {
		t.Fatalf("semaphore cap = %d, want default %d", got, defaultMaxConnections)
	}

	srv, err = NewServer(ServerConfig{
		Listeners:      []Listener{{Addr: ":9092"}},
		Router:         router,
		MaxConnections: 7,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if got := cap(srv.sem); got != 7 {
		t.Fatalf("semaphore cap = %d, want 7", got)
	}
}

func TestLocalPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	<-done

	port, err := localPort(conn)
	if err != nil {
		t.Fatalf("localPort: %v", err)
	}
	if int(port) != conn.LocalAddr().(*net.TCPAddr).Port {
		t.Fatalf("port = %d, want %d", port, conn.LocalAddr().(*net.TCPAddr).Port)
	}

	// net.Pipe addresses carry no port
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if _, err := localPort(a); err == nil {
		t.Fatalf("expected error for pipe address")
	}
}
