// Package evaluator provides an optional post-generation auditing pass that
// verifies the answer's grounding against the retrieved context and scores
// citation quality.
//
// Evaluation is best-effort: a failing or malformed evaluation never fails
// the query. The caller gets the pre-evaluation answer back with all metrics
// zeroed and Failed set.
package evaluator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/citeright/citeright/internal/llm"
	"github.com/citeright/citeright/internal/reranker"
)

const evaluatorPrompt = `You are an answer auditor for a retrieval-augmented assistant. You receive the model's raw answer and the retrieved chunks (with metadata), and must verify, fuse, and label each statement.

### Your Objectives
1. **Evaluate grounding:** For each factual claim, confirm whether it is explicitly supported by at least one retrieved chunk.
2. **Compute metrics:**
   - Precision@k: proportion of retrieved chunks relevant to the query.
   - Citation accuracy: fraction of statements correctly attributed.
   - Faithfulness score: 0-1 scale showing how closely the output matches retrieved content.
3. **Context fusion:** Merge complementary facts across sources and synthesize a unified, cited explanation.
4. **Transparency trace:** For each sentence, output short identifiers of the supporting chunks.

Return a structured JSON with fields:
{
  "final_answer": "...synthesized, cited text...",
  "precision_at_k": float,
  "citation_accuracy": float,
  "faithfulness_score": float,
  "trace": [{"sentence": "...", "supported_by": ["chunk_id1", "chunk_id2"]}]
}

### Context for Evaluation
Retrieved Chunks (with metadata):
{{context}}

Original Query:
{{query}}

Model's Raw Answer:
{{answer}}

IMPORTANT: Return ONLY valid JSON. Do not include any text before or after the JSON object.`

// TraceEntry links one answer sentence to the chunks that support it.
type TraceEntry struct {
	Sentence    string   `json:"sentence"`
	SupportedBy []string `json:"supported_by"`
}

// Result holds the evaluation metrics and the possibly rewritten answer.
type Result struct {
	FinalAnswer      string       `json:"final_answer"`
	PrecisionAtK     float64      `json:"precision_at_k"`
	CitationAccuracy float64      `json:"citation_accuracy"`
	Faithfulness     float64      `json:"faithfulness_score"`
	Trace            []TraceEntry `json:"trace"`

	// Failed marks that evaluation could not complete and the metrics are
	// zeroed fallbacks around the original answer.
	Failed bool `json:"evaluation_failed,omitempty"`
}

// Evaluator audits generated answers with an LLM.
type Evaluator struct {
	llmClient llm.LLM
	model     string
	logger    *slog.Logger
}

// New creates an evaluator using the given LLM client and model.
func New(llmClient llm.LLM, model string) *Evaluator {
	return &Evaluator{
		llmClient: llmClient,
		model:     model,
		logger:    slog.Default(),
	}
}

// Evaluate audits the answer against the assembled context. It never returns
// an error: any backend or parse failure falls back to the original answer
// with zeroed metrics and Failed=true.
func (e *Evaluator) Evaluate(ctx context.Context, query, contextText, answer string) Result {
	prompt := strings.NewReplacer(
		"{{context}}", contextText,
		"{{query}}", query,
		"{{answer}}", answer,
	).Replace(evaluatorPrompt)

	response, err := e.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       e.model,
		Temperature: 0.1, // Lower temperature for more consistent JSON
		MaxTokens:   2048,
	})
	if err != nil {
		e.logger.Error("evaluation call failed", "error", err)
		return fallback(answer)
	}

	result, err := parseEvaluation(response)
	if err != nil {
		e.logger.Warn("evaluation response unusable", "error", err)
		return fallback(answer)
	}

	return result
}

// parseEvaluation extracts the JSON object from the model response and
// validates that the required fields are present.
func parseEvaluation(response string) (Result, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return Result{}, errNoJSON
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return Result{}, err
	}
	for _, key := range []string{"final_answer", "precision_at_k", "citation_accuracy", "faithfulness_score"} {
		if _, ok := raw[key]; !ok {
			return Result{}, errMissingFields
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

var (
	errNoJSON        = jsonError("no JSON object found in evaluation response")
	errMissingFields = jsonError("evaluation response missing required fields")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }

// fallback returns the unmodified answer with zeroed metrics.
func fallback(answer string) Result {
	return Result{
		FinalAnswer: answer,
		Trace:       []TraceEntry{},
		Failed:      true,
	}
}

// SourceDistribution counts retrieved chunks per origin.
func SourceDistribution(results []reranker.ScoredChunk) map[string]int {
	distribution := make(map[string]int)
	for _, r := range results {
		origin := r.Metadata.Origin
		if origin == "" {
			origin = "Unknown"
		}
		distribution[origin]++
	}
	return distribution
}

// DominantTone suggests an answer tone from the origin distribution:
// "scholarly" when papers dominate, "practical" when Q&A content dominates,
// "balanced" otherwise.
func DominantTone(results []reranker.ScoredChunk) string {
	distribution := SourceDistribution(results)
	total := 0
	for _, n := range distribution {
		total += n
	}
	if total == 0 {
		return "balanced"
	}

	arxiv := float64(distribution["arXiv"]) / float64(total)
	stack := float64(distribution["StackExchange"]) / float64(total)

	switch {
	case arxiv >= 0.6:
		return "scholarly"
	case stack >= 0.6:
		return "practical"
	default:
		return "balanced"
	}
}
