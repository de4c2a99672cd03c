package sources

import (
	"hash/fnv"
	"math"
	"strings"
)

const (
	embeddingDim     = 512
	defaultChunkSize = 800
)

// bestChunk splits text into paragraph chunks and returns the one most
// similar to query. It returns "" when text has no usable content.
func bestChunk(query, text string, chunkSize int) string {
	chunks := splitChunks(text, chunkSize)
	if len(chunks) == 0 {
		return ""
	}

	queryVec := embed(query)
	best, bestScore := 0, float32(-1)
	for i, c := range chunks {
		if score := cosineSimilarity(queryVec, embed(c)); score > bestScore {
			best, bestScore = i, score
		}
	}
	return chunks[best]
}

// embed converts text into a fixed-size vector using feature hashing.
func embed(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,;:!?()[]\"'")))
		vec[int(h.Sum32()%embeddingDim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm = math.Sqrt(norm); norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// splitChunks groups paragraphs into chunks of at most maxLen bytes. A
// single paragraph longer than maxLen becomes its own chunk.
func splitChunks(text string, maxLen int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var chunks []string
	current := strings.Builder{}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(p)+2 > maxLen {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
