package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}
}

// Structurer asks the model for a strict-JSON extraction. Model output is
// untrusted: the payload is cut down to its outermost JSON object and run
// through jsonrepair before parsing, so trailing prose or a missing brace
// does not lose the record. What cannot be parsed even then is a schema
// violation for the caller to repair or reject.
type Structurer struct {
	client *Client
}

func NewStructurer(client *Client) *Structurer {
	return &Structurer{client: client}
}

func (s *Structurer) Structure(ctx context.Context, req domain.StructuringRequest) (*domain.ExtractionPayload, error) {
	respText, err := s.client.generateJSON(ctx, req.Instruction+"\n\nRecord text:\n"+req.RawText)
	if err != nil {
		return nil, err
	}
	return parseExtractionPayload(respText)
}

func parseExtractionPayload(raw string) (*domain.ExtractionPayload, error) {
	candidate := extractJSONObject(raw)

	var wire struct {
		Category   string  `json:"category"`
		RealDate   *string `json:"real_date"`
		Importance float64 `json:"importance"`
		Summary    string  `json:"summary"`
		WeekIndex  float64 `json:"week_index"`
		PastDue    bool    `json:"past_due"`
	}
	if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil, domain.WrapError(domain.ErrSchemaViolation, "parse structuring payload", repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
			return nil, domain.WrapError(domain.ErrSchemaViolation, "parse structuring payload", err)
		}
	}

	return &domain.ExtractionPayload{
		Category:   wire.Category,
		RealDate:   wire.RealDate,
		Importance: int(math.Round(wire.Importance)),
		Summary:    wire.Summary,
		WeekIndex:  int(math.Round(wire.WeekIndex)),
		PastDue:    wire.PastDue,
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, contextSet domain.RankedContext) (string, error) {
	return g.client.generateText(ctx, buildAnswerPrompt(question, contextSet))
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
