package clustering

import "github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/normalize"

// Blend weights for Similarity.
const (
	TokenWeight  = 0.7
	EntityWeight = 0.3
)

// Jaccard returns |a∩b| / |a∪b|. Two empty sets score 0.
func Jaccard(a, b normalize.Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for v := range small {
		if large.Has(v) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity blends token and entity overlap into a score in [0,1].
func Similarity(a, b normalize.Features) float64 {
	return TokenWeight*Jaccard(a.Tokens, b.Tokens) + EntityWeight*Jaccard(a.Entities, b.Entities)
}
