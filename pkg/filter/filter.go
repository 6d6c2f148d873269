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

// Package filter defines the per-connection filter chain that sits between a
// client and its upstream broker. Requests traverse filters in registration
// order; responses traverse the same chain in reverse, so the filter closest
// to the broker sees responses first.
package filter

import (
	"fmt"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

// Request is a decoded client request travelling towards the broker. Body is
// nil for APIs the gateway relays opaquely; Payload always holds the complete
// request payload (header included) and is what gets forwarded.
type Request struct {
	Header  *protocol.RequestHeader
	Body    protocol.Request
	Payload []byte
}

// Response is a broker response travelling back to the client. Metadata is
// populated when the response answers a Metadata request; filters that mutate
// it must re-encode Payload themselves.
type Response struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	Metadata      *protocol.MetadataResponse
	Payload       []byte
}

// Filter is the common capability marker. A filter implements RequestFilter,
// ResponseFilter, or both; the chain dispatches by type assertion.
type Filter interface {
	Name() string
}

// RequestFilter sees requests on their way upstream.
type RequestFilter interface {
	Filter
	OnRequest(req *Request) (RequestVerdict, error)
}

// ResponseFilter sees responses on their way downstream.
type ResponseFilter interface {
	Filter
	OnResponse(resp *Response) (ResponseVerdict, error)
}

// RequestVerdict carries the outcome of a request filter: either a request to
// forward (possibly replaced) or an encoded response payload to send straight
// back to the client without contacting the broker.
type RequestVerdict struct {
	request      *Request
	shortCircuit []byte
}

// ForwardRequest continues the chain with req.
func ForwardRequest(req *Request) RequestVerdict {
	return RequestVerdict{request: req}
}

// ShortCircuit answers the client directly with an encoded response payload.
func ShortCircuit(payload []byte) RequestVerdict {
	return RequestVerdict{shortCircuit: payload}
}

// ResponseVerdict carries the outcome of a response filter: a response to
// forward (possibly replaced) or nothing at all.
type ResponseVerdict struct {
	response *Response
	drop     bool
}

// ForwardResponse continues the chain with resp.
func ForwardResponse(resp *Response) ResponseVerdict {
	return ResponseVerdict{response: resp}
}

// DropResponse swallows the response.
func DropResponse() ResponseVerdict {
	return ResponseVerdict{drop: true}
}

// Factory builds a fresh filter slice for each accepted connection. Filters
// must not share mutable state across connections unless they do so
// deliberately.
type Factory func() []Filter

// Chain executes filters for one connection pair.
type Chain struct {
	filters []Filter
}

// NewChain builds a chain over the given filters, in registration order.
func NewChain(filters ...[]Filter) *Chain {
	var all []Filter
	for _, fs := range filters {
		all = append(all, fs...)
	}
	return &Chain{filters: all}
}

// Append adds a filter at the end of the chain. Appended last means last on
// the request path and first on the response path.
func (c *Chain) Append(f Filter) {
	c.filters = append(c.filters, f)
}

// RunRequest passes req through every request filter in registration order.
// A non-nil shortCircuit payload means the request must not be forwarded and
// the payload goes straight back to the client.
func (c *Chain) RunRequest(req *Request) (forward *Request, shortCircuit []byte, err error) {
	current := req
	for _, f := range c.filters {
		rf, ok := f.(RequestFilter)
		if !ok {
			continue
		}
		verdict, err := rf.OnRequest(current)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		if verdict.shortCircuit != nil {
			return nil, verdict.shortCircuit, nil
		}
		if verdict.request == nil {
			return nil, nil, fmt.Errorf("filter %s returned no request and no response", f.Name())
		}
		current = verdict.request
	}
	return current, nil, nil
}

// RunResponse passes resp through every response filter in reverse
// registration order. A nil response with nil error means a filter dropped it.
func (c *Chain) RunResponse(resp *Response) (*Response, error) {
	current := resp
	for i := len(c.filters) - 1; i >= 0; i-- {
		rf, ok := c.filters[i].(ResponseFilter)
		if !ok {
			continue
		}
		verdict, err := rf.OnResponse(current)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", c.filters[i].Name(), err)
		}
		if verdict.drop {
			return nil, nil
		}
		if verdict.response == nil {
			return nil, fmt.Errorf("filter %s returned no response", c.filters[i].Name())
		}
		current = verdict.response
	}
	return current, nil
}
