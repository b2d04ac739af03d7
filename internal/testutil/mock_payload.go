// Package testutil provides testing utilities for the Payload cache.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPayloadResponse defines the behavior for a mock Payload endpoint response.
type MockPayloadResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPayload is a configurable mock Payload REST API for testing.
// Endpoints are served at "/<endpoint>", so URL() is the API base URL.
type MockPayload struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	// Tracking
	RequestCount int
	LastQuery    string
}

// NewMockPayload creates a new mock Payload server.
func NewMockPayload() *MockPayload {
	mock := &MockPayload{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.URL.Path]++
		mock.LastQuery = r.URL.RawQuery
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock API base URL.
func (m *MockPayload) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPayload) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPayload) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = ""
	m.counts = make(map[string]int)
}

// SetHandler sets a custom handler for an endpoint.
func (m *MockPayload) SetHandler(endpoint string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers["/"+strings.TrimLeft(endpoint, "/")] = handler
}

// SetResponse configures a fixed response for an endpoint.
func (m *MockPayload) SetResponse(endpoint string, resp MockPayloadResponse) {
	m.SetHandler(endpoint, respond(resp))
}

// SetSequence answers successive requests with resps in order, repeating
// the last one once the sequence is used up.
func (m *MockPayload) SetSequence(endpoint string, resps ...MockPayloadResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		respond(resp)(w, r)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPayload) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetEndpointCount returns the number of requests made to one endpoint.
func (m *MockPayload) GetEndpointCount(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts["/"+strings.TrimLeft(endpoint, "/")]
}

// GetLastQuery returns the raw query of the most recent request.
func (m *MockPayload) GetLastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler answers unknown endpoints the way Payload does.
func (m *MockPayload) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"errors":[{"message":"The requested resource was not found."}]}`))
}

func respond(resp MockPayloadResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// ListBody renders a one-page list envelope around the given JSON docs.
func ListBody(docs ...string) string {
	return PageBody(1, 1, docs...)
}

// PageBody renders page of totalPages around the given JSON docs.
func PageBody(page, totalPages int, docs ...string) string {
	next, prev := "null", "null"
	if page < totalPages {
		next = strconv.Itoa(page + 1)
	}
	if page > 1 {
		prev = strconv.Itoa(page - 1)
	}
	return fmt.Sprintf(
		`{"docs":[%s],"hasNextPage":%t,"hasPrevPage":%t,"limit":10,"nextPage":%s,"page":%d,"pagingCounter":%d,"prevPage":%s,"totalDocs":%d,"totalPages":%d}`,
		strings.Join(docs, ","), page < totalPages, page > 1, next, page, (page-1)*10+1, prev, len(docs)*totalPages, totalPages,
	)
}

// NewListResponse creates a 200 OK list envelope response.
func NewListResponse(docs ...string) MockPayloadResponse {
	return MockPayloadResponse{
		StatusCode: http.StatusOK,
		Body:       ListBody(docs...),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewEmptyListResponse creates a 200 OK list envelope with no documents.
func NewEmptyListResponse() MockPayloadResponse {
	return MockPayloadResponse{
		StatusCode: http.StatusOK,
		Body:       `{"docs":[],"hasNextPage":false,"hasPrevPage":false,"limit":10,"nextPage":null,"page":1,"pagingCounter":1,"prevPage":null,"totalDocs":0,"totalPages":1}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewObjectResponse creates a 200 OK single-object response (globals).
func NewObjectResponse(body string) MockPayloadResponse {
	return MockPayloadResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockPayloadResponse {
	return MockPayloadResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"message":"Something went wrong."}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewPagedHandler serves totalPages pages of a collection, choosing the page
// from the "page" query parameter.
func NewPagedHandler(totalPages int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		if page > totalPages {
			respond(NewEmptyListResponse())(w, r)
			return
		}
		doc := fmt.Sprintf(`{"id":%d,"title":"Doc %d"}`, page, page)
		respond(MockPayloadResponse{
			StatusCode: http.StatusOK,
			Body:       PageBody(page, totalPages, doc),
			Headers:    map[string]string{"Content-Type": "application/json"},
		})(w, r)
	}
}
