package metrics

import (
	"math"
	"sort"
)

// Retrieval metrics over a ranked document list. "ranked" is the document
// ids in retrieval order, best first; "relevance" maps document id to a
// graded relevance label (>0 means relevant).

// NDCGAtK computes normalized discounted cumulative gain at cutoff k.
func NDCGAtK(ranked []string, relevance map[string]float64, k int) float64 {
	if k <= 0 || len(relevance) == 0 {
		return 0
	}

	var dcg float64
	for i, id := range ranked {
		if i >= k {
			break
		}
		if rel := relevance[id]; rel > 0 {
			dcg += (math.Pow(2, rel) - 1) / math.Log2(float64(i)+2)
		}
	}

	// Ideal DCG: relevance labels sorted descending.
	labels := make([]float64, 0, len(relevance))
	for _, rel := range relevance {
		if rel > 0 {
			labels = append(labels, rel)
		}
	}
	if len(labels) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(labels)))

	var idcg float64
	for i, rel := range labels {
		if i >= k {
			break
		}
		idcg += (math.Pow(2, rel) - 1) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// RecallAtK computes the fraction of relevant documents retrieved in the
// top k.
func RecallAtK(ranked []string, relevance map[string]float64, k int) float64 {
	totalRelevant := 0
	for _, rel := range relevance {
		if rel > 0 {
			totalRelevant++
		}
	}
	if totalRelevant == 0 || k <= 0 {
		return 0
	}

	found := 0
	for i, id := range ranked {
		if i >= k {
			break
		}
		if relevance[id] > 0 {
			found++
		}
	}
	return float64(found) / float64(totalRelevant)
}

// MRR computes the mean reciprocal rank: 1/(position of the first relevant
// document), or 0 when none is retrieved.
func MRR(ranked []string, relevance map[string]float64) float64 {
	for i, id := range ranked {
		if relevance[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// MAPAtK computes mean average precision at cutoff k for a single query:
// the mean of precision@i over the ranks i at which relevant documents
// appear, normalized by the number of relevant documents.
func MAPAtK(ranked []string, relevance map[string]float64, k int) float64 {
	totalRelevant := 0
	for _, rel := range relevance {
		if rel > 0 {
			totalRelevant++
		}
	}
	if totalRelevant == 0 || k <= 0 {
		return 0
	}

	var sum float64
	found := 0
	for i, id := range ranked {
		if i >= k {
			break
		}
		if relevance[id] > 0 {
			found++
			sum += float64(found) / float64(i+1)
		}
	}

	denom := totalRelevant
	if k < denom {
		denom = k
	}
	return sum / float64(denom)
}

// Percentile returns the p-th percentile (0..100) of values using
// nearest-rank on a sorted copy. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
