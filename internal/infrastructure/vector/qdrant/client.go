package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/resilience"
)

// Index stores one point per record in a Qdrant collection over HTTP.
// Point ids are derived from the record id, so re-indexing a record
// overwrites its previous point instead of accumulating duplicates.
type Index struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	exec       *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func NewIndex(baseURL, collection string, embedder ports.Embedder, exec *resilience.Executor) *Index {
	return &Index{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
		exec:       exec,
	}
}

func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

func (ix *Index) Index(ctx context.Context, id, text string) error {
	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed record %s: %w", id, err)
	}
	if len(vector) == 0 {
		return fmt.Errorf("embed record %s: empty vector", id)
	}

	if err := ix.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"points": []map[string]any{
			{
				"id":     pointID(id),
				"vector": vector,
				"payload": map[string]any{
					"record_id": id,
					"text":      text,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", ix.baseURL, ix.collection)
	return ix.exec.Run(ctx, "qdrant.upsert", classifyQdrantError, func(ctx context.Context) error {
		return ix.do(ctx, http.MethodPut, url, body, nil)
	})
}

func (ix *Index) Remove(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]any{
		"points": []string{pointID(id)},
	})
	if err != nil {
		return fmt.Errorf("marshal delete body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", ix.baseURL, ix.collection)
	return ix.exec.Run(ctx, "qdrant.delete", classifyQdrantError, func(ctx context.Context) error {
		return ix.do(ctx, http.MethodPost, url, body, nil)
	})
}

func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}
	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", ix.baseURL, ix.collection)
	err = ix.exec.Run(ctx, "qdrant.search", classifyQdrantError, func(ctx context.Context) error {
		return ix.do(ctx, http.MethodPost, url, body, &searchResp)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		recordID := payloadString(r.Payload, "record_id")
		if recordID == "" {
			continue
		}
		out = append(out, domain.SearchHit{RecordID: recordID, Score: r.Score})
	}
	return out, nil
}

func (ix *Index) ensureCollection(ctx context.Context, vectorSize int) error {
	ix.ensureMu.Lock()
	if ix.ensuredCollection && ix.ensuredVectorSize == vectorSize {
		ix.ensureMu.Unlock()
		return nil
	}
	ix.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", ix.baseURL, ix.collection)
	err = ix.exec.Run(ctx, "qdrant.ensure_collection", classifyQdrantError, func(ctx context.Context) error {
		err := ix.do(ctx, http.MethodPut, url, body, nil)
		// 409 means the collection already exists.
		var status *statusError
		if errors.As(err, &status) && status.Code == http.StatusConflict {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	ix.ensureMu.Lock()
	ix.ensuredCollection = true
	ix.ensuredVectorSize = vectorSize
	ix.ensureMu.Unlock()
	return nil
}

func (ix *Index) do(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ix.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrUnavailable, "qdrant request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant status %d", e.Code)
	}
	return fmt.Sprintf("qdrant status %d: %s", e.Code, e.Body)
}

// Transport faults and server-side errors are retryable and count against
// the breaker; client-side rejections are neither.
func classifyQdrantError(err error) resilience.Verdict {
	var status *statusError
	if errors.As(err, &status) {
		retry := status.Code >= 500 || status.Code == http.StatusTooManyRequests
		return resilience.Verdict{Retry: retry, TripsBreaker: retry}
	}
	if domain.IsKind(err, domain.ErrUnavailable) {
		return resilience.Verdict{Retry: true, TripsBreaker: true}
	}
	return resilience.Verdict{}
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
