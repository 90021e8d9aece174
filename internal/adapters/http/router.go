package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/config"
	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/observability/metrics"
)

const serviceName = "campus-knowledge-api"

type Router struct {
	ingestor  ports.RecordIngestor
	retriever ports.ContextRetriever
	store     ports.KnowledgeStore
	metrics   *metrics.HTTPServerMetrics
	cfg       config.Config
}

func NewRouter(
	ingestor ports.RecordIngestor,
	retriever ports.ContextRetriever,
	store ports.KnowledgeStore,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		ingestor:  ingestor,
		retriever: retriever,
		store:     store,
		metrics:   httpMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/records", rt.ingestRecords)
	mux.HandleFunc("/v1/records/", rt.getRecordByID)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/query", rt.query)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRecordRequest struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	SourceURL string    `json:"source_url"`
	CourseID  string    `json:"course_id"`
	PostedAt  time.Time `json:"posted_at"`
}

func (rt *Router) ingestRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Records []ingestRecordRequest `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "records are required"})
		return
	}

	raws := make([]domain.RawRecord, 0, len(req.Records))
	for _, rec := range req.Records {
		raws = append(raws, domain.RawRecord{
			ID:        rec.ID,
			Text:      rec.Text,
			SourceURL: rec.SourceURL,
			CourseID:  rec.CourseID,
			PostedAt:  rec.PostedAt,
		})
	}

	accepted, err := rt.ingestor.IngestBatch(r.Context(), raws)
	if err != nil && len(accepted) == 0 {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{"accepted": accepted}
	if err != nil {
		// Siblings are isolated: report the rejects next to the accepted ids.
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (rt *Router) getRecordByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "record id is required"})
		return
	}

	raw, err := rt.store.GetRaw(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{"record": raw}
	if structured, err := rt.store.GetStructured(r.Context(), id); err == nil {
		resp["structured"] = structured
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query, k, ok := rt.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	ranked, err := rt.retriever.Retrieve(r.Context(), query, k)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(serviceName, "retrieve", len(ranked.Candidates), time.Since(start))
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	question, k, ok := rt.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	answer, err := rt.retriever.Answer(r.Context(), question, k)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(serviceName, "query", len(answer.Context.Candidates), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) decodeQueryRequest(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	var req struct {
		Question string `json:"question"`
		Query    string `json:"query"`
		Limit    int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return "", 0, false
	}
	text := strings.TrimSpace(req.Question)
	if text == "" {
		text = strings.TrimSpace(req.Query)
	}
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return "", 0, false
	}
	k := req.Limit
	if k <= 0 {
		k = rt.cfg.RetrievalTopK
	}
	return text, k, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
