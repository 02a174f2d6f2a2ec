package genome

// Gene names used by the default retrieval strategy space.
const (
	GeneEmbeddingModel = "embedding_model"
	GeneChunkSize      = "chunk_size"
	GeneChunkOverlap   = "chunk_overlap"
	GeneTopK           = "top_k"
	GeneSimilarity     = "similarity"
	GeneQueryExpansion = "query_expansion"
	GeneRerankDepth    = "rerank_depth"
)

// Similarity metric values for GeneSimilarity.
const (
	SimilarityCosine = "cosine"
	SimilarityDot    = "dot"
)

// DefaultSpace returns the gene space for retrieval/embedding strategies.
func DefaultSpace() (*Space, error) {
	return NewSpace(map[string]Domain{
		GeneEmbeddingModel: CategoricalDomain{Values: []string{
			"embed-small", "embed-large", "embed-multilingual",
		}},
		GeneChunkSize:      NumericDomain{Min: 128, Max: 1024, Step: 64},
		GeneChunkOverlap:   NumericDomain{Min: 0, Max: 128, Step: 16},
		GeneTopK:           NumericDomain{Min: 1, Max: 20, Step: 1},
		GeneSimilarity:     CategoricalDomain{Values: []string{SimilarityCosine, SimilarityDot}},
		GeneQueryExpansion: CategoricalDomain{Values: []string{"off", "on"}},
		GeneRerankDepth:    NumericDomain{Min: 0, Max: 10, Step: 1},
	})
}

// DefaultPresets returns the named strategy presets callers can seed a run
// with. "baseline" is the reference configuration improvement is measured
// against.
func DefaultPresets() map[string]map[string]GeneValue {
	return map[string]map[string]GeneValue{
		"baseline": {
			GeneEmbeddingModel: CategoricalValue("embed-small"),
			GeneChunkSize:      NumericValue(512),
			GeneChunkOverlap:   NumericValue(64),
			GeneTopK:           NumericValue(10),
			GeneSimilarity:     CategoricalValue(SimilarityCosine),
			GeneQueryExpansion: CategoricalValue("off"),
			GeneRerankDepth:    NumericValue(0),
		},
		"dense-large": {
			GeneEmbeddingModel: CategoricalValue("embed-large"),
			GeneChunkSize:      NumericValue(256),
			GeneChunkOverlap:   NumericValue(32),
			GeneTopK:           NumericValue(10),
			GeneSimilarity:     CategoricalValue(SimilarityCosine),
			GeneQueryExpansion: CategoricalValue("off"),
			GeneRerankDepth:    NumericValue(5),
		},
		"expanded-query": {
			GeneEmbeddingModel: CategoricalValue("embed-small"),
			GeneChunkSize:      NumericValue(512),
			GeneChunkOverlap:   NumericValue(64),
			GeneTopK:           NumericValue(15),
			GeneSimilarity:     CategoricalValue(SimilarityDot),
			GeneQueryExpansion: CategoricalValue("on"),
			GeneRerankDepth:    NumericValue(0),
		},
	}
}
