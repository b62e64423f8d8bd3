package http_test

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/store"
	httpstore "github.com/marmos91/depositd/pkg/store/http"
	"github.com/marmos91/depositd/pkg/store/storetest"
)

// fakeRecordServer is a minimal in-memory record store speaking the wire
// protocol the client expects: JSON bodies, strong ETags carrying the
// version, If-Match on updates, 412 on version mismatch.
type fakeRecordServer struct {
	mu      sync.Mutex
	nextID  int
	records map[string]*fakeRecord // key: kind/id
}

type fakeRecord struct {
	kind    string
	id      string
	version int64
	body    map[string]any
}

func newFakeRecordServer() *fakeRecordServer {
	return &fakeRecordServer{records: make(map[string]*fakeRecord)}
}

func (s *fakeRecordServer) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(nethttp.StatusOK)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/records/"), "/"), "/")
	kind := parts[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == nethttp.MethodPost && len(parts) == 1:
		s.create(w, r, kind)
	case r.Method == nethttp.MethodGet && len(parts) == 1:
		s.find(w, r, kind)
	case r.Method == nethttp.MethodGet && len(parts) == 2:
		s.read(w, kind, parts[1])
	case r.Method == nethttp.MethodPut && len(parts) == 2:
		s.update(w, r, kind, parts[1])
	default:
		w.WriteHeader(nethttp.StatusMethodNotAllowed)
	}
}

func (s *fakeRecordServer) create(w nethttp.ResponseWriter, r *nethttp.Request, kind string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(nethttp.StatusBadRequest)
		return
	}

	id, _ := body["id"].(string)
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("rec-%d", s.nextID)
		body["id"] = id
	}

	s.records[kind+"/"+id] = &fakeRecord{kind: kind, id: id, version: 1, body: body}

	w.Header().Set("ETag", `"1"`)
	w.WriteHeader(nethttp.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (s *fakeRecordServer) read(w nethttp.ResponseWriter, kind, id string) {
	rec, ok := s.records[kind+"/"+id]
	if !ok {
		w.WriteHeader(nethttp.StatusNotFound)
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.FormatInt(rec.version, 10)))
	_ = json.NewEncoder(w).Encode(rec.body)
}

func (s *fakeRecordServer) update(w nethttp.ResponseWriter, r *nethttp.Request, kind, id string) {
	rec, ok := s.records[kind+"/"+id]
	if !ok {
		w.WriteHeader(nethttp.StatusNotFound)
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	expected, err := strconv.ParseInt(ifMatch, 10, 64)
	if err != nil || expected != rec.version {
		w.WriteHeader(nethttp.StatusPreconditionFailed)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(nethttp.StatusBadRequest)
		return
	}
	body["id"] = id

	rec.version++
	rec.body = body

	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.FormatInt(rec.version, 10)))
	w.WriteHeader(nethttp.StatusOK)
}

func (s *fakeRecordServer) find(w nethttp.ResponseWriter, r *nethttp.Request, kind string) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")

	var ids []string
	for _, rec := range s.records {
		if rec.kind != kind {
			continue
		}
		if attrMatches(rec.body[field], value) {
			ids = append(ids, rec.id)
		}
	}
	_ = json.NewEncoder(w).Encode(map[string][]string{"ids": ids})
}

func attrMatches(v any, want string) bool {
	switch val := v.(type) {
	case string:
		return val == want
	case bool:
		return strconv.FormatBool(val) == want
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64) == want
	}
	return false
}

func TestHTTPConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		srv := httptest.NewServer(newFakeRecordServer())
		t.Cleanup(srv.Close)

		c, err := httpstore.New(httpstore.Config{BaseURL: srv.URL})
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(nethttp.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := httpstore.New(httpstore.Config{BaseURL: srv.URL, Token: "secret-token"})
	require.NoError(t, err)

	require.NoError(t, c.HealthCheck(t.Context()))
	require.Equal(t, "Bearer secret-token", gotAuth)
}
