// Package fixtures provides canned CRM gateway responses and a scripted
// gateway server for client tests.
package fixtures

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// RecordedRequest captures one request the stub gateway received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// CRMServer is a scripted CRM gateway. Each path is answered with a fixed
// JSON document; unknown paths get an empty success envelope.
type CRMServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []RecordedRequest
	responses map[string]string
	statuses  map[string]int
}

// NewCRMServer starts a stub gateway answering each configured path with the
// given JSON body. The server is closed automatically when the test ends.
func NewCRMServer(t *testing.T, responses map[string]string) *CRMServer {
	t.Helper()

	stub := &CRMServer{
		responses: responses,
		statuses:  map[string]int{},
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.Server.Close)
	return stub
}

// SetStatus overrides the HTTP status returned for a path.
func (s *CRMServer) SetStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[path] = status
}

// SetResponse replaces the body returned for a path.
func (s *CRMServer) SetResponse(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = body
}

// Requests returns a copy of everything the stub has received so far.
func (s *CRMServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request, or false when none arrived.
func (s *CRMServer) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

func (s *CRMServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})
	response, ok := s.responses[r.URL.Path]
	status := s.statuses[r.URL.Path]
	s.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if !ok {
		response = ListEnvelope()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

// TokenEnvelope renders a successful token-exchange response.
func TokenEnvelope(token string, expireSeconds int) string {
	return marshal(map[string]any{
		"code": "00000",
		"data": map[string]any{
			"access_token": token,
			"expire":       expireSeconds,
		},
	})
}

// ListEnvelope renders a successful list response carrying the given records.
func ListEnvelope(records ...map[string]any) string {
	list := make([]any, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	return marshal(map[string]any{
		"code": "00000",
		"data": map[string]any{
			"recordList": list,
		},
	})
}

// DetailEnvelope renders a successful detail response with the given data.
func DetailEnvelope(data map[string]any) string {
	return marshal(map[string]any{
		"code": "00000",
		"data": data,
	})
}

// AddressEnvelope renders a successful address-list response.
func AddressEnvelope(addresses ...map[string]any) string {
	list := make([]any, 0, len(addresses))
	for _, a := range addresses {
		list = append(list, a)
	}
	return marshal(map[string]any{
		"code": "00000",
		"data": list,
	})
}

// ErrorEnvelope renders a gateway error envelope.
func ErrorEnvelope(code, message string) string {
	return marshal(map[string]any{
		"code":    code,
		"message": message,
	})
}

func marshal(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
