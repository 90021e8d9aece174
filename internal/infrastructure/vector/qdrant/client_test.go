package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/resilience"
)

var (
	_ ports.SemanticIndex = (*Index)(nil)
	_ ports.Embedder      = (*embedderStub)(nil)
)

type embedderStub struct {
	vector []float32
}

func (e *embedderStub) Embed(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func (e *embedderStub) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func noBreakerExec() *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{MaxAttempts: 1, BreakerDisabled: true})
}

func TestIndexEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/records":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/records/points":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1, 0.2}}, noBreakerExec())
	for i := 0; i < 2; i++ {
		if err := ix.Index(context.Background(), "rec-1", "3주차 과제"); err != nil {
			t.Fatalf("Index() call %d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected one ensure-collection call, got %d", got)
	}
}

func TestIndexUsesDeterministicPointID(t *testing.T) {
	var pointIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/records/points" {
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert body: %v", err)
			}
			for _, p := range body.Points {
				pointIDs = append(pointIDs, p.ID)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, noBreakerExec())
	if err := ix.Index(context.Background(), "rec-1", "과제"); err != nil {
		t.Fatalf("first Index() error = %v", err)
	}
	if err := ix.Index(context.Background(), "rec-1", "수정된 과제"); err != nil {
		t.Fatalf("second Index() error = %v", err)
	}

	if len(pointIDs) != 2 || pointIDs[0] != pointIDs[1] {
		t.Fatalf("same record must map to the same point id: %v", pointIDs)
	}
	if pointIDs[0] != pointID("rec-1") {
		t.Fatalf("unexpected point id %s", pointIDs[0])
	}
}

func TestEnsureCollectionTreatsConflictAsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/records" {
			http.Error(w, "already exists", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, noBreakerExec())
	if err := ix.Index(context.Background(), "rec-1", "과제"); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
}

func TestSearchMapsPayloadToHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/records/points/search" {
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.91,"payload":{"record_id":"rec-1","text":"과제"}},
				{"score":0.47,"payload":{"record_id":"rec-2","text":"공지"}},
				{"score":0.11,"payload":{"text":"점수만 있는 포인트"}}
			]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, noBreakerExec())
	hits, err := ix.Search(context.Background(), "과제 마감", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("points without a record_id must be skipped, got %+v", hits)
	}
	if hits[0].RecordID != "rec-1" || hits[0].Score != 0.91 {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
}

func TestSearchServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection not ready", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, noBreakerExec())
	_, err := ix.Search(context.Background(), "과제", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestIndexRetriesTransientServerError(t *testing.T) {
	var upserts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/records/points" {
			if atomic.AddInt32(&upserts, 1) == 1 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Policy{MaxAttempts: 2, InitialBackoff: 1, BreakerDisabled: true})
	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, exec)
	if err := ix.Index(context.Background(), "rec-1", "과제"); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if got := atomic.LoadInt32(&upserts); got != 2 {
		t.Fatalf("expected a retry after 503, got %d upserts", got)
	}
}

func TestRemoveDeletesByDerivedPointID(t *testing.T) {
	var deleted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/records/points/delete" {
			var body struct {
				Points []string `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode delete body: %v", err)
			}
			deleted = append(deleted, body.Points...)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ix := NewIndex(server.URL, "records", &embedderStub{vector: []float32{0.1}}, noBreakerExec())
	if err := ix.Remove(context.Background(), "rec-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(deleted) != 1 || deleted[0] != pointID("rec-1") {
		t.Fatalf("unexpected deleted ids %v", deleted)
	}
}
