package pipeline

import (
	"context"

	apperrors "pharma-assistant/errors"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FormularySearcher runs nearest-neighbor lookups against the corpus.
type FormularySearcher interface {
	SearchFormulary(ctx context.Context, embedding []float32, k int, floor float64) ([]types.RetrievedChunk, error)
}

// Retriever executes similarity search for each query variant: one embedding
// call, one nearest-neighbor lookup, similarity floor applied in the store.
type Retriever struct {
	embedder Embedder
	store    FormularySearcher
	k        int
	floor    float64
	logger   *zap.Logger
}

func NewRetriever(embedder Embedder, store FormularySearcher, k int, floor float64, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		k:        k,
		floor:    floor,
		logger:   logger,
	}
}

// RetrieveAll fans out over all variants concurrently and joins on an
// all-complete barrier. Result slots are indexed by variant, so output
// ordering never depends on completion timing. A failed non-primary variant
// contributes an empty slot; a failed primary variant (index 0, the
// highest-priority one issued) is request-fatal.
func (r *Retriever) RetrieveAll(ctx context.Context, variants []QueryVariant) ([][]types.RetrievedChunk, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	results := make([][]types.RetrievedChunk, len(variants))
	var g errgroup.Group

	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			chunks, err := r.retrieveOne(ctx, variant.Text)
			if err != nil {
				if i == 0 {
					return apperrors.WrapErrorf(apperrors.ErrRetrieval, "primary variant %q: %v", variant.Text, err)
				}
				r.logger.Warn("Variant retrieval failed, continuing without it",
					zap.String("variant", variant.Text),
					zap.Float64("weight", variant.Weight),
					zap.Error(err))
				return nil
			}
			results[i] = chunks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Retriever) retrieveOne(ctx context.Context, text string) ([]types.RetrievedChunk, error) {
	embedding, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.store.SearchFormulary(ctx, embedding, r.k, r.floor)
}
