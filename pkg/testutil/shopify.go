package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	jsonpool "github.com/ultimatecoffee/shopsync/pkg/json"
)

// ShopifyServer is an in-process stand-in for the Shopify Admin REST API.
// It serves registered collections in pages of the requested limit and
// chains them with Link headers carrying page_info cursors.
type ShopifyServer struct {
	*httptest.Server

	APIVersion string

	mu          sync.Mutex
	collections map[string]collection
	requests    []*http.Request
	failures    []int
}

type collection struct {
	key     string
	records []map[string]interface{}
}

// NewShopifyServer starts a server that is closed when the test ends
func NewShopifyServer(t interface{ Cleanup(func()) }, apiVersion string) *ShopifyServer {
	s := &ShopifyServer{
		APIVersion:  apiVersion,
		collections: make(map[string]collection),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddCollection serves records under resultKey at endpoint (e.g. "orders.json")
func (s *ShopifyServer) AddCollection(endpoint, resultKey string, records []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[endpoint] = collection{key: resultKey, records: records}
}

// FailNext answers the next len(statuses) requests with the given statuses
func (s *ShopifyServer) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns the requests received so far
func (s *ShopifyServer) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

func (s *ShopifyServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		w.WriteHeader(status)
		return
	}
	prefix := "/admin/api/" + s.APIVersion + "/"
	c, ok := s.collections[strings.TrimPrefix(r.URL.Path, prefix)]
	s.mu.Unlock()

	if !ok || !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	page := 1
	if pi := q.Get("page_info"); pi != "" {
		if _, err := fmt.Sscanf(pi, "p%d", &page); err != nil || page < 1 {
			http.Error(w, "invalid page_info", http.StatusBadRequest)
			return
		}
	}

	start := (page - 1) * limit
	if start > len(c.records) {
		start = len(c.records)
	}
	end := start + limit
	if end > len(c.records) {
		end = len(c.records)
	}

	base := "http://" + r.Host + r.URL.Path
	var links []string
	if page > 1 {
		links = append(links, fmt.Sprintf(`<%s>; rel="previous"`, cursorURL(base, limit, page-1)))
	}
	if end < len(c.records) {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, cursorURL(base, limit, page+1)))
	}
	if len(links) > 0 {
		w.Header().Set("Link", strings.Join(links, ", "))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = jsonpool.NewEncoder(w).Encode(map[string]interface{}{c.key: c.records[start:end]})
}

func cursorURL(base string, limit, page int) string {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("page_info", fmt.Sprintf("p%d", page))
	return base + "?" + v.Encode()
}
