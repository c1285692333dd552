package pipeline

import (
	"context"
	"sync"

	"pharma-assistant/clinical"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
)

// InventorySearcher looks up live stock rows by name pattern.
type InventorySearcher interface {
	SearchProducts(ctx context.Context, pattern string, pharmacyID int, limit int) ([]types.InventoryFact, error)
}

// ClinicalLookup resolves a drug subject against the external reference.
type ClinicalLookup interface {
	Lookup(ctx context.Context, subject string) (*types.ExternalFact, error)
}

// AggregateResult carries the structured facts gathered for one question.
// These merge into the synthesis context but never into the chunk set.
type AggregateResult struct {
	Inventory []types.InventoryFact
	Clinical  *types.ExternalFact
}

// Aggregator pulls structured inventory and clinical facts in parallel,
// driven by the intent's required sources. A missing result for one need
// never cancels the others.
type Aggregator struct {
	inventory InventorySearcher
	clinical  ClinicalLookup
	logger    *zap.Logger
}

func NewAggregator(inventory InventorySearcher, clinical ClinicalLookup, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		inventory: inventory,
		clinical:  clinical,
		logger:    logger,
	}
}

// Gather runs the lookups the intent asks for. Failures are absorbed: an
// unreachable source is the same as a source with nothing to say.
func (a *Aggregator) Gather(ctx context.Context, intent Intent, subject string, pharmacyID int) AggregateResult {
	var result AggregateResult
	if subject == "" {
		return result
	}

	var wg sync.WaitGroup

	if intent.Sources[SourceInternalDB] && a.inventory != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pattern := clinical.CleanSubject(subject)
			if pattern == "" {
				return
			}
			facts, err := a.inventory.SearchProducts(ctx, pattern, pharmacyID, 10)
			if err != nil {
				a.logger.Warn("Inventory lookup failed, continuing without stock facts",
					zap.String("subject", subject),
					zap.Error(err))
				return
			}
			result.Inventory = facts
		}()
	}

	if intent.Sources[SourceExternalDB] && a.clinical != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fact, err := a.clinical.Lookup(ctx, subject)
			if err != nil {
				a.logger.Warn("Clinical lookup failed, continuing without reference facts",
					zap.String("subject", subject),
					zap.Error(err))
				return
			}
			result.Clinical = fact
		}()
	}

	wg.Wait()
	return result
}
