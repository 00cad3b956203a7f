package platform

import "hash/fnv"

// Embeddings is the host-side "embeddings" adapter surface (see llm.go for
// why no real client is wired: the pack has no complete repo embedding one).
type Embeddings interface {
	Embed(text string) ([]float64, error)
}

// HashEmbeddings is a deterministic, dependency-free stand-in: it derives a
// small fixed-width vector from an FNV hash of the input. It is not a
// semantically meaningful embedding; it exists so the adapter plumbing and
// the vector store built on top of it can be exercised without a network
// dependency.
type HashEmbeddings struct {
	Dims int
}

// Embed implements Embeddings.
func (h HashEmbeddings) Embed(text string) ([]float64, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 8
	}
	out := make([]float64, dims)
	for i := 0; i < dims; i++ {
		sum := fnv.New64a()
		sum.Write([]byte(text))
		sum.Write([]byte{byte(i)})
		out[i] = float64(sum.Sum64()%1000) / 1000.0
	}
	return out, nil
}

type embeddingsAdapter struct {
	backend Embeddings
}

// NewEmbeddingsAdapter wraps backend for registration under the
// "embeddings" adapter name.
func NewEmbeddingsAdapter(backend Embeddings) any {
	if backend == nil {
		backend = HashEmbeddings{}
	}
	return &embeddingsAdapter{backend: backend}
}

// Embed implements the "embed" RPC method.
func (a *embeddingsAdapter) Embed(text string) ([]float64, error) {
	return a.backend.Embed(text)
}
