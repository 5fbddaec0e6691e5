package search

import (
	"math"
	"slices"
	"strings"

	"github.com/bull/docintel/internal/storage"
)

// CosineSimilarity returns 1 - cosine distance, in [-1, 1].
// A zero-norm vector is similar to nothing and scores 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every candidate against query and returns the best limit,
// ordered by descending similarity with ties broken by ascending document ID.
func Rank(query []float32, candidates []storage.EmbeddedDocument, limit int) []storage.ScoredDocument {
	scored := make([]storage.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, storage.ScoredDocument{
			EmbeddedDocument: c,
			Similarity:       CosineSimilarity(query, c.Vector),
		})
	}
	slices.SortFunc(scored, compareScored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func compareScored(a, b storage.ScoredDocument) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	default:
		return strings.Compare(a.DocumentID, b.DocumentID)
	}
}

// Round4 rounds to 4 decimal places, half away from zero.
func Round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
