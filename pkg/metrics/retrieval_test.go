package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var binaryRelevance = map[string]float64{"d1": 1, "d3": 1}

func TestNDCGAtK(t *testing.T) {
	t.Run("perfect ranking scores 1", func(t *testing.T) {
		ranked := []string{"d1", "d3", "d2"}
		assert.InDelta(t, 1.0, NDCGAtK(ranked, binaryRelevance, 3), 1e-9)
	})

	t.Run("relevant documents at the bottom score less", func(t *testing.T) {
		good := NDCGAtK([]string{"d1", "d3", "d2"}, binaryRelevance, 3)
		bad := NDCGAtK([]string{"d2", "d1", "d3"}, binaryRelevance, 3)
		assert.Greater(t, good, bad)
		assert.Greater(t, bad, 0.0)
	})

	t.Run("graded relevance weights higher labels more", func(t *testing.T) {
		graded := map[string]float64{"d1": 2, "d2": 1}
		best := NDCGAtK([]string{"d1", "d2"}, graded, 2)
		swapped := NDCGAtK([]string{"d2", "d1"}, graded, 2)
		assert.InDelta(t, 1.0, best, 1e-9)
		assert.Less(t, swapped, best)
	})

	t.Run("no relevant documents scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, NDCGAtK([]string{"d1"}, map[string]float64{}, 5))
		assert.Equal(t, 0.0, NDCGAtK([]string{"d1"}, map[string]float64{"d1": 0}, 5))
	})

	t.Run("k of zero scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, NDCGAtK([]string{"d1"}, binaryRelevance, 0))
	})
}

func TestRecallAtK(t *testing.T) {
	ranked := []string{"d1", "d2", "d3", "d4"}

	t.Run("full recall within the cutoff", func(t *testing.T) {
		assert.Equal(t, 1.0, RecallAtK(ranked, binaryRelevance, 3))
	})

	t.Run("cutoff truncates", func(t *testing.T) {
		assert.Equal(t, 0.5, RecallAtK(ranked, binaryRelevance, 2))
	})

	t.Run("no relevant documents", func(t *testing.T) {
		assert.Equal(t, 0.0, RecallAtK(ranked, nil, 3))
	})
}

func TestMRR(t *testing.T) {
	t.Run("first relevant at rank 1", func(t *testing.T) {
		assert.Equal(t, 1.0, MRR([]string{"d1", "d2"}, binaryRelevance))
	})

	t.Run("first relevant at rank 3", func(t *testing.T) {
		assert.InDelta(t, 1.0/3, MRR([]string{"d2", "d4", "d3"}, binaryRelevance), 1e-9)
	})

	t.Run("no relevant retrieved", func(t *testing.T) {
		assert.Equal(t, 0.0, MRR([]string{"d2", "d4"}, binaryRelevance))
	})
}

func TestMAPAtK(t *testing.T) {
	t.Run("all relevant ranked first", func(t *testing.T) {
		assert.InDelta(t, 1.0, MAPAtK([]string{"d1", "d3", "d2"}, binaryRelevance, 3), 1e-9)
	})

	t.Run("interleaved relevance", func(t *testing.T) {
		// Precision at the relevant ranks: 1/1 and 2/3, averaged over 2.
		got := MAPAtK([]string{"d1", "d2", "d3"}, binaryRelevance, 3)
		assert.InDelta(t, (1.0+2.0/3)/2, got, 1e-9)
	})

	t.Run("cutoff bounds the denominator", func(t *testing.T) {
		rel := map[string]float64{"d1": 1, "d2": 1, "d3": 1}
		got := MAPAtK([]string{"d1", "d2"}, rel, 2)
		assert.InDelta(t, 1.0, got, 1e-9)
	})

	t.Run("no relevant documents", func(t *testing.T) {
		assert.Equal(t, 0.0, MAPAtK([]string{"d1"}, nil, 5))
	})
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	t.Run("nearest rank", func(t *testing.T) {
		assert.Equal(t, 50.0, Percentile(values, 50))
		assert.Equal(t, 100.0, Percentile(values, 95))
		assert.Equal(t, 100.0, Percentile(values, 99))
	})

	t.Run("bounds", func(t *testing.T) {
		assert.Equal(t, 10.0, Percentile(values, 0))
		assert.Equal(t, 100.0, Percentile(values, 100))
		assert.Equal(t, 0.0, Percentile(nil, 50))
	})

	t.Run("input is not reordered", func(t *testing.T) {
		in := []float64{3, 1, 2}
		Percentile(in, 50)
		assert.Equal(t, []float64{3, 1, 2}, in)
	})
}

func TestMean(t *testing.T) {
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.Equal(t, 0.0, Mean(nil))
	assert.False(t, math.IsNaN(Mean([]float64{})))
}
