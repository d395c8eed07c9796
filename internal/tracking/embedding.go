// Package tracking implements the identity core: deciding whether an
// incoming face embedding belongs to a person already seen in the current
// session, a person remembered from an earlier session, or somebody new,
// and keeping the session's aggregate counts consistent while detections
// keep arriving.
package tracking

import "math"

// Embedding is a fixed-length face descriptor produced by the external
// detection model. It is opaque to this package except for pairwise
// similarity; it is set once at person creation and never replaced.
type Embedding []float32

// Similarity computes the cosine similarity between two embeddings.
// Returns a value between -1 and 1 (1 means identical direction).
// Returns 0 for empty vectors, mismatched lengths, or zero vectors --
// these are treated as "no similarity", not as errors.
func Similarity(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}
