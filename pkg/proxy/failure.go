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
	"crypto/tls"
	"errors"
	"sync"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

// FailureKind names a class of transport failure the gateway knows how to
// report back to the client as a protocol error instead of a bare hangup.
type FailureKind string

// FailureTLSHandshake covers TLS negotiation failures against the upstream.
const FailureTLSHandshake FailureKind = "tls_handshake"

// InflightRequest is the correlation record of a request that has been
// forwarded upstream but not yet answered.
type InflightRequest struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	Payload       []byte
}

// ErrorResponseFunc synthesizes an encoded response for an unanswered
// request. ok is false when the request's API has no synthesizable error
// shape; the connection then closes without a response.
type ErrorResponseFunc func(req InflightRequest) (payload []byte, ok bool, err error)

type failureEntry struct {
	kind    FailureKind
	matches func(error) bool
	build   ErrorResponseFunc
}

// FailureRegistry maps transport failures to synthesized protocol responses.
// Matchers test a single error value; Classify walks the wrapped-cause chain
// and tries every matcher at every depth, so a registered failure is found
// regardless of how deeply it is wrapped.
type FailureRegistry struct {
	mu      sync.RWMutex
	entries []failureEntry
}

// NewFailureRegistry returns an empty registry.
func NewFailureRegistry() *FailureRegistry {
	return &FailureRegistry{}
}

// DefaultFailureRegistry returns a registry with the stock mapping: a TLS
// handshake failure against the upstream synthesizes an
// UNKNOWN_SERVER_ERROR response.
func DefaultFailureRegistry() *FailureRegistry {
	r := NewFailureRegistry()
	r.RegisterFailureResponse(FailureTLSHandshake, isTLSHandshakeError, func(req InflightRequest) ([]byte, bool, error) {
		return BuildErrorResponse(req, protocol.UNKNOWN_SERVER_ERROR)
	})
	return r
}

// RegisterFailureResponse adds a mapping. Registration order is match order.
func (r *FailureRegistry) RegisterFailureResponse(kind FailureKind, matcher func(error) bool, builder ErrorResponseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, failureEntry{kind: kind, matches: matcher, build: builder})
}

// Classify finds the first registered kind matching err at any unwrap depth.
func (r *FailureRegistry) Classify(err error) (FailureKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cause := err; cause != nil; cause = errors.Unwrap(cause) {
		for _, entry := range r.entries {
			if entry.matches(cause) {
				return entry.kind, true
			}
		}
	}
	return "", false
}

// Builder returns the response builder registered for kind.
func (r *FailureRegistry) Builder(kind FailureKind) (ErrorResponseFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.entries {
		if entry.kind == kind {
			return entry.build, true
		}
	}
	return nil, false
}

// isTLSHandshakeError tests one error value, without unwrapping, for the
// error types crypto/tls surfaces when a handshake fails.
func isTLSHandshakeError(err error) bool {
	switch err.(type) {
	case tls.RecordHeaderError, *tls.RecordHeaderError:
		return true
	case tls.AlertError, *tls.AlertError:
		return true
	case *tls.CertificateVerificationError:
		return true
	}
	return false
}
