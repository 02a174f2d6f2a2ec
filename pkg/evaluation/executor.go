package evaluation

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/metrics"
)

// JobResult is the measured outcome of running one (variant, query) job.
type JobResult struct {
	QueryID   string             `json:"query_id"`
	Metrics   map[string]float64 `json:"metrics"`
	LatencyMs float64            `json:"latency_ms"`
	Tokens    int                `json:"tokens"`
	Cost      float64            `json:"cost"`
}

// Metric names produced per job.
const (
	MetricNDCG5    = "ndcg@5"
	MetricNDCG10   = "ndcg@10"
	MetricRecall5  = "recall@5"
	MetricRecall10 = "recall@10"
	MetricMRR      = "mrr"
	MetricMAP5     = "map@5"
	MetricMAP10    = "map@10"
)

// costPerToken is the flat cost estimate applied to embedding traffic.
const costPerToken = 1e-7

// Executor instantiates a genome as a runnable retrieval strategy and runs
// it against one query.
type Executor struct {
	embeddings *EmbeddingCache
}

// NewExecutor creates an executor over the shared embedding cache.
func NewExecutor(embeddings *EmbeddingCache) *Executor {
	return &Executor{embeddings: embeddings}
}

// strategy is the decoded view of a genome's genes.
type strategy struct {
	model          string
	chunkSize      int
	chunkOverlap   int
	topK           int
	similarity     string
	queryExpansion bool
	rerankDepth    int
}

func decodeStrategy(g *genome.Genome) strategy {
	s := strategy{
		model:      g.Genes[genome.GeneEmbeddingModel].Str,
		similarity: g.Genes[genome.GeneSimilarity].Str,
	}
	s.chunkSize = int(g.Genes[genome.GeneChunkSize].Num)
	s.chunkOverlap = int(g.Genes[genome.GeneChunkOverlap].Num)
	s.topK = int(g.Genes[genome.GeneTopK].Num)
	s.queryExpansion = g.Genes[genome.GeneQueryExpansion].Str == "on"
	s.rerankDepth = int(g.Genes[genome.GeneRerankDepth].Num)
	return s
}

// RunQuery executes the strategy for one query over the document corpus
// and scores the resulting ranking against the query's relevance labels.
func (x *Executor) RunQuery(ctx context.Context, g *genome.Genome, q Query, docs []Document) (*JobResult, error) {
	start := time.Now()
	strat := decodeStrategy(g)

	queryVec, tokens, err := x.embedQuery(ctx, strat, q.Text)
	if err != nil {
		return nil, err
	}

	type docScore struct {
		id    string
		score float64
		mean  float64
	}
	scores := make([]docScore, 0, len(docs))

	for _, doc := range docs {
		chunks := chunkText(doc.Text, strat.chunkSize, strat.chunkOverlap)
		best := 0.0
		var sum float64
		for i, chunk := range chunks {
			vec, embErr := x.embeddings.Embed(ctx, chunk, strat.model)
			if embErr != nil {
				return nil, errors.WithFields(embErr, errors.Fields{"doc_id": doc.ID})
			}
			tokens += estimateTokens(chunk)
			sim := similarity(queryVec, vec, strat.similarity)
			if i == 0 || sim > best {
				best = sim
			}
			sum += sim
		}
		mean := 0.0
		if len(chunks) > 0 {
			mean = sum / float64(len(chunks))
		}
		scores = append(scores, docScore{id: doc.ID, score: best, mean: mean})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	// Optional rerank pass: reorder the head of the ranking by mean chunk
	// similarity, which rewards documents that are relevant throughout
	// rather than in a single chunk.
	if strat.rerankDepth > 1 {
		depth := strat.rerankDepth
		if depth > len(scores) {
			depth = len(scores)
		}
		head := scores[:depth]
		sort.SliceStable(head, func(i, j int) bool {
			return head[i].mean > head[j].mean
		})
	}

	ranked := make([]string, 0, strat.topK)
	for i, s := range scores {
		if i >= strat.topK {
			break
		}
		ranked = append(ranked, s.id)
	}

	result := &JobResult{
		QueryID: q.ID,
		Metrics: map[string]float64{
			MetricNDCG5:    metrics.NDCGAtK(ranked, q.Relevant, 5),
			MetricNDCG10:   metrics.NDCGAtK(ranked, q.Relevant, 10),
			MetricRecall5:  metrics.RecallAtK(ranked, q.Relevant, 5),
			MetricRecall10: metrics.RecallAtK(ranked, q.Relevant, 10),
			MetricMRR:      metrics.MRR(ranked, q.Relevant),
			MetricMAP5:     metrics.MAPAtK(ranked, q.Relevant, 5),
			MetricMAP10:    metrics.MAPAtK(ranked, q.Relevant, 10),
		},
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		Tokens:    tokens,
	}
	result.Cost = float64(result.Tokens) * costPerToken
	return result, nil
}

// embedQuery embeds the query text, optionally blending in an expanded
// variant that repeats the query's content words.
func (x *Executor) embedQuery(ctx context.Context, strat strategy, text string) ([]float64, int, error) {
	vec, err := x.embeddings.Embed(ctx, text, strat.model)
	if err != nil {
		return nil, 0, err
	}
	tokens := estimateTokens(text)

	if !strat.queryExpansion {
		return vec, tokens, nil
	}

	expanded := expandQuery(text)
	expVec, err := x.embeddings.Embed(ctx, expanded, strat.model)
	if err != nil {
		return nil, 0, err
	}
	tokens += estimateTokens(expanded)

	blended := make([]float64, len(vec))
	for i := range vec {
		blended[i] = (vec[i] + expVec[i]) / 2
	}
	return blended, tokens, nil
}

// expandQuery emphasizes the query's longer content words by repeating
// them, a cheap deterministic stand-in for LLM query expansion.
func expandQuery(text string) string {
	words := strings.Fields(text)
	expanded := make([]string, 0, len(words)*2)
	expanded = append(expanded, words...)
	for _, w := range words {
		if len(w) > 4 {
			expanded = append(expanded, w)
		}
	}
	return strings.Join(expanded, " ")
}

// chunkText splits text into character chunks of the given size with
// overlap between consecutive chunks.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size - 1
	}
	stride := size - overlap

	var chunks []string
	for start := 0; start < len(text); start += stride {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

func similarity(a, b []float64, kind string) float64 {
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	if kind == genome.SimilarityDot {
		return dot
	}

	var normA, normB float64
	for i := 0; i < n; i++ {
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// estimateTokens approximates token count as chars/4.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
