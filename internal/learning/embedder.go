package learning

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/philippgille/chromem-go"
)

// HashingEmbedder returns a deterministic local embedding function: token
// unigrams and bigrams are hashed into a fixed-dimension vector which is then
// L2-normalized. It carries no semantic model; it gives stable, repeatable
// similarity for overlapping vocabulary, which is enough for ranking the
// knowledge base without downloading a model. Deployments with a real
// embedding backend pass their own chromem.EmbeddingFunc instead.
func HashingEmbedder(dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = 128
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		tokens := strings.Fields(strings.ToLower(text))
		for i, tok := range tokens {
			addHashed(vec, tok)
			if i > 0 {
				addHashed(vec, tokens[i-1]+" "+tok)
			}
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for i := range vec {
				vec[i] *= scale
			}
		}
		return vec, nil
	}
}

func addHashed(vec []float32, token string) {
	h := fnv.New32a()
	h.Write([]byte(token))
	sum := h.Sum32()
	idx := int(sum % uint32(len(vec)))
	// Sign from one hash bit keeps the vector roughly zero-centered.
	if sum&0x80000000 != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}
