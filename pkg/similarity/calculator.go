package similarity

import (
	"fmt"
	"math"
	"sort"
)

func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d vs %d", len(a), len(b))
	}

	var dotProduct, normA, normB float64

	for i := 0; i < len(a); i++ {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (normA * normB), nil
}

func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d vs %d", len(a), len(b))
	}

	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}

	return math.Sqrt(sum), nil
}

// Match is one candidate scored against a query vector.
type Match struct {
	Index      int
	Similarity float64
	Distance   float64
}

// TopK scores every candidate against query and returns the k best by
// cosine similarity, ties broken by insertion order.
func TopK(query []float32, candidates [][]float32, k int) ([]Match, error) {
	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate similarity for candidate %d: %w", i, err)
		}
		dist, err := EuclideanDistance(query, c)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate distance for candidate %d: %w", i, err)
		}
		matches = append(matches, Match{Index: i, Similarity: sim, Distance: dist})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if k >= 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Pair links two vectors by their positions in the input slice.
type Pair struct {
	I          int
	J          int
	Distance   float64
	Similarity float64
}

// AllPairs compares every vector with every later one and keeps the pairs
// whose cosine similarity is at least minSimilarity.
func AllPairs(vectors [][]float32, minSimilarity float64) ([]Pair, error) {
	pairs := []Pair{}

	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			distance, err := EuclideanDistance(vectors[i], vectors[j])
			if err != nil {
				return nil, fmt.Errorf("failed to calculate distance between vectors %d and %d: %w", i, j, err)
			}

			cosineSim, err := CosineSimilarity(vectors[i], vectors[j])
			if err != nil {
				return nil, fmt.Errorf("failed to calculate similarity between vectors %d and %d: %w", i, j, err)
			}

			if cosineSim < minSimilarity {
				continue
			}
			pairs = append(pairs, Pair{I: i, J: j, Distance: distance, Similarity: cosineSim})
		}
	}

	return pairs, nil
}
