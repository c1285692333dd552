package pipeline

import (
	"context"
	"sync"
	"time"

	"pharma-assistant/config"
	"pharma-assistant/utils"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
)

// Stage labels the per-request state progression for telemetry.
type Stage string

const (
	StageReceived     Stage = "received"
	StageClassified   Stage = "classified"
	StageExpanded     Stage = "expanded"
	StageRetrieving   Stage = "retrieving"
	StageMerged       Stage = "merged"
	StageAggregating  Stage = "aggregating"
	StageSynthesizing Stage = "synthesizing"
	StageAnswered     Stage = "answered"
	StageDegraded     Stage = "degraded"
)

// AuditStore records Q/A exchanges for the audit trail.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec types.AuditRecord) error
}

// Answer is the full pipeline output for one question.
type Answer struct {
	Structured types.StructuredAnswer
	Intent     Intent
	Subject    string // active topic to carry into the next turn
	Inventory  []types.InventoryFact
	Clinical   *types.ExternalFact
	Sources    []string
	Confidence float64
	Notes      []string
	Degraded   bool
}

// Service is the conversational retrieval pipeline: classify, expand,
// retrieve and aggregate in parallel, merge, synthesize. It is constructed
// once at process start and injected into handlers; it holds no per-request
// state, so concurrent requests are independent.
type Service struct {
	cfg         *config.Config
	classifier  *Classifier
	retriever   *Retriever
	aggregator  *Aggregator
	synthesizer *Synthesizer
	audit       AuditStore
	logger      *zap.Logger
}

func NewService(cfg *config.Config, classifier *Classifier, retriever *Retriever,
	aggregator *Aggregator, synthesizer *Synthesizer, audit AuditStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:         cfg,
		classifier:  classifier,
		retriever:   retriever,
		aggregator:  aggregator,
		synthesizer: synthesizer,
		audit:       audit,
		logger:      logger,
	}
}

// Answer runs the full pipeline for one question. Only malformed input is
// rejected; classification, retrieval, and generation failures degrade the
// answer instead of failing the request.
func (s *Service) Answer(ctx context.Context, query Query, pharmacyID int) (*Answer, error) {
	started := time.Now()

	if err := utils.ValidateQuestion(query.Text); err != nil {
		return nil, err
	}
	maxResults := utils.ClampMaxResults(query.MaxResults, s.cfg.MaxChunks)

	conv := NewConversationContext(query.History, query.ActiveTopic, s.cfg.HistoryTurns)
	s.logStage(StageReceived, query.Text, nil)

	intent := s.classifier.Classify(ctx, query.Text)
	if intent.Subject == "" && conv.ActiveTopic != "" {
		// Hint propagation: follow-up questions inherit the active subject
		intent.Subject = conv.ActiveTopic
	}
	s.logStage(StageClassified, query.Text, []zap.Field{
		zap.String("intent", string(intent.Kind)),
		zap.String("subject", intent.Subject),
	})

	variants := ExpandQuery(query.Text, conv)
	s.logStage(StageExpanded, query.Text, []zap.Field{zap.Int("variants", len(variants))})

	// Retrieval and aggregation are independent of each other and run in
	// parallel; each joins on an all-complete barrier internally.
	var (
		wg             sync.WaitGroup
		perVariant     [][]types.RetrievedChunk
		retrievalErr   error
		facts          AggregateResult
		needsAggregate = intent.Sources[SourceInternalDB] || intent.Sources[SourceExternalDB]
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logStage(StageRetrieving, query.Text, nil)
		perVariant, retrievalErr = s.retriever.RetrieveAll(ctx, variants)
	}()

	if needsAggregate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logStage(StageAggregating, query.Text, nil)
			facts = s.aggregator.Gather(ctx, intent, intent.Subject, pharmacyID)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Caller is gone; in-flight results are simply discarded
		return nil, ctx.Err()
	}

	answer := &Answer{
		Intent:    intent,
		Inventory: facts.Inventory,
		Clinical:  facts.Clinical,
		Sources:   intent.SourceList(),
	}

	var result SynthesisResult
	if retrievalErr != nil {
		// Primary-variant embedding failure: best-effort answer stating the
		// formulary is unavailable, assembled from whatever facts arrived.
		s.logger.Warn("Formulary retrieval failed, degrading answer",
			zap.String("question", query.Text),
			zap.Error(retrievalErr))
		result = s.synthesizer.Templated(conv, nil, facts, "formulary data is currently unavailable")
	} else {
		merged := MergeChunks(perVariant, conv.ActiveTopic, maxResults)
		s.logStage(StageMerged, query.Text, []zap.Field{zap.Int("chunks", len(merged))})

		s.logStage(StageSynthesizing, query.Text, nil)
		result = s.synthesizer.Synthesize(ctx, query.Text, conv, merged, facts)
	}

	answer.Structured = result.Answer
	answer.Subject = result.Subject
	answer.Notes = result.Notes
	answer.Degraded = result.Degraded || retrievalErr != nil
	answer.Confidence = s.confidence(answer)
	answer.Structured.LatencyMs = int(time.Since(started).Milliseconds())

	if answer.Degraded {
		s.logStage(StageDegraded, query.Text, nil)
	} else {
		s.logStage(StageAnswered, query.Text, []zap.Field{
			zap.Int("latency_ms", answer.Structured.LatencyMs),
		})
	}

	s.recordAudit(query, answer, pharmacyID)
	return answer, nil
}

// confidence is a coarse quality signal for the caller: degraded paths sit
// at or below 0.5, a clean run with context sits well above it.
func (s *Service) confidence(a *Answer) float64 {
	switch {
	case a.Degraded:
		return 0.4
	case len(a.Structured.Citations) == 0:
		return 0.5
	default:
		return 0.85
	}
}

// recordAudit persists the exchange off the request path. Audit failures are
// logged, never surfaced.
func (s *Service) recordAudit(query Query, answer *Answer, pharmacyID int) {
	if s.audit == nil {
		return
	}
	rec := types.AuditRecord{
		PharmacyID: pharmacyID,
		Question:   query.Text,
		Intent:     string(answer.Intent.Kind),
		Answer:     answer.Structured.Overview,
		Sources:    answer.Sources,
		LatencyMs:  answer.Structured.LatencyMs,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.InsertAuditRecord(ctx, rec); err != nil {
			s.logger.Warn("Failed to record audit entry", zap.Error(err))
		}
	}()
}

func (s *Service) logStage(stage Stage, question string, fields []zap.Field) {
	all := append([]zap.Field{
		zap.String("stage", string(stage)),
		zap.String("question", question),
	}, fields...)
	s.logger.Debug("Pipeline stage", all...)
}
