package retriever

import (
	"math"

	"pdf-rag/internal/models"
)

// SelectMMR greedily picks k candidates maximising
// lambda*relevance - (1-lambda)*max similarity to what is already picked.
// Candidates must carry their embeddings and relevance in Score.
func SelectMMR(candidates []models.Match, k int, lambda float64) []models.Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= k {
		k = len(candidates)
	}
	lambda = math.Max(0, math.Min(1, lambda))

	remaining := append([]models.Match(nil), candidates...)
	selected := make([]models.Match, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		best := math.Inf(-1)

		for i, cand := range remaining {
			maxSim := 0.0
			if len(selected) > 0 {
				maxSim = math.Inf(-1)
			}
			for _, sel := range selected {
				if sim := CosineSimilarity(cand.Embedding, sel.Embedding); sim > maxSim {
					maxSim = sim
				}
			}

			score := lambda*float64(cand.Score) - (1-lambda)*maxSim
			if score > best {
				best = score
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
