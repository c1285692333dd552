package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharma-assistant/config"
	apperrors "pharma-assistant/errors"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	chunks []types.RetrievedChunk
}

func (f *fakeSearcher) SearchFormulary(_ context.Context, _ []float32, _ int, _ float64) ([]types.RetrievedChunk, error) {
	return f.chunks, nil
}

type fakeInventory struct {
	facts []types.InventoryFact
}

func (f *fakeInventory) SearchProducts(_ context.Context, _ string, _ int, _ int) ([]types.InventoryFact, error) {
	return f.facts, nil
}

type fakeClinical struct {
	fact *types.ExternalFact
}

func (f *fakeClinical) Lookup(_ context.Context, _ string) (*types.ExternalFact, error) {
	if f.fact == nil {
		return nil, errors.New("no match")
	}
	return f.fact, nil
}

type fakeAudit struct {
	records chan types.AuditRecord
}

func (f *fakeAudit) InsertAuditRecord(_ context.Context, rec types.AuditRecord) error {
	f.records <- rec
	return nil
}

func testService(embed *fakeEmbedder, search *fakeSearcher, gen *fakeGenerator, audit AuditStore) *Service {
	logger := zap.NewNop()
	cfg := &config.Config{MaxChunks: 6, SimilarityFloor: 0.3, HistoryTurns: 6}
	return NewService(cfg,
		NewClassifier(nil, false, logger),
		NewRetriever(embed, search, 6, cfg.SimilarityFloor, logger),
		NewAggregator(&fakeInventory{}, &fakeClinical{fact: &types.ExternalFact{Name: "amoxicillin"}}, logger),
		NewSynthesizer(gen, logger),
		audit, logger)
}

func TestServiceAnswerHappyPath(t *testing.T) {
	gen := &fakeGenerator{reply: `{
		"overview": "Amoxicillin is indicated for susceptible bacterial infections.",
		"subject": "amoxicillin",
		"sections": {"dosage": "Adults take 500 mg every 8 hours."},
		"citations": ["chunk-1"]
	}`}
	audit := &fakeAudit{records: make(chan types.AuditRecord, 1)}
	svc := testService(&fakeEmbedder{}, &fakeSearcher{chunks: amoxicillinChunks()}, gen, audit)

	answer, err := svc.Answer(context.Background(), Query{Text: "what is the dosage of amoxicillin?"}, 1)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Degraded {
		t.Error("clean run must not be degraded")
	}
	if answer.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", answer.Confidence)
	}
	if answer.Subject != "amoxicillin" {
		t.Errorf("subject = %q, want amoxicillin", answer.Subject)
	}
	if answer.Intent.Kind != IntentDosage {
		t.Errorf("intent = %q, want %q", answer.Intent.Kind, IntentDosage)
	}
	if answer.Structured.LatencyMs < 0 {
		t.Errorf("latency = %d, want non-negative", answer.Structured.LatencyMs)
	}

	select {
	case rec := <-audit.records:
		if rec.Question != "what is the dosage of amoxicillin?" {
			t.Errorf("audit question = %q", rec.Question)
		}
		if rec.Intent != string(IntentDosage) {
			t.Errorf("audit intent = %q", rec.Intent)
		}
	case <-time.After(2 * time.Second):
		t.Error("audit record was never written")
	}
}

func TestServiceAnswerCarriesActiveTopicIntoSubject(t *testing.T) {
	gen := &fakeGenerator{reply: `{"overview": "Amoxicillin is indicated for susceptible bacterial infections.", "sections": {}, "citations": ["chunk-2"]}`}
	svc := testService(&fakeEmbedder{}, &fakeSearcher{chunks: amoxicillinChunks()}, gen, nil)

	query := Query{
		Text:        "what about the dosage?",
		History:     []string{"user: tell me about amoxicillin", "assistant: Amoxicillin is a penicillin antibiotic."},
		ActiveTopic: "amoxicillin",
	}
	answer, err := svc.Answer(context.Background(), query, 1)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Intent.Subject != "amoxicillin" {
		t.Errorf("intent subject = %q, want the active topic", answer.Intent.Subject)
	}
}

func TestServiceAnswerDegradesOnRetrievalFailure(t *testing.T) {
	gen := &fakeGenerator{reply: `{}`}
	svc := testService(&fakeEmbedder{err: errors.New("embedding backend down")}, &fakeSearcher{}, gen, nil)

	answer, err := svc.Answer(context.Background(), Query{Text: "dosage of amoxicillin?"}, 1)
	if err != nil {
		t.Fatalf("retrieval failure must degrade, not fail: %v", err)
	}
	if !answer.Degraded {
		t.Fatal("expected degraded answer")
	}
	if answer.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", answer.Confidence)
	}
	if gen.calls != 0 {
		t.Errorf("generation called %d times on the degraded path, want 0", gen.calls)
	}
	if len(answer.Notes) == 0 {
		t.Error("degraded answer must carry an explanatory note")
	}
}

func TestServiceAnswerDegradesOnGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("generation backend down")}
	svc := testService(&fakeEmbedder{}, &fakeSearcher{chunks: amoxicillinChunks()}, gen, nil)

	answer, err := svc.Answer(context.Background(), Query{Text: "dosage of amoxicillin?"}, 1)
	if err != nil {
		t.Fatalf("generation failure must degrade, not fail: %v", err)
	}
	if !answer.Degraded {
		t.Fatal("expected degraded answer")
	}
	if answer.Confidence > 0.5 {
		t.Errorf("confidence = %v, want at most 0.5", answer.Confidence)
	}
	if answer.Structured.Overview == "" {
		t.Error("degraded answer must still carry a displayable overview")
	}
}

func TestServiceAnswerRejectsInvalidQuestion(t *testing.T) {
	svc := testService(&fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{}, nil)

	_, err := svc.Answer(context.Background(), Query{Text: "   "}, 1)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !apperrors.IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestServiceAnswerEmptyCorpusLowersConfidence(t *testing.T) {
	gen := &fakeGenerator{reply: `{}`}
	logger := zap.NewNop()
	cfg := &config.Config{MaxChunks: 6, SimilarityFloor: 0.3, HistoryTurns: 6}
	svc := NewService(cfg,
		NewClassifier(nil, false, logger),
		NewRetriever(&fakeEmbedder{}, &fakeSearcher{}, 6, cfg.SimilarityFloor, logger),
		NewAggregator(&fakeInventory{}, &fakeClinical{}, logger),
		NewSynthesizer(gen, logger),
		nil, logger)

	answer, err := svc.Answer(context.Background(), Query{Text: "storage conditions for adrenaline?"}, 1)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Degraded {
		t.Error("empty corpus is not a degraded run")
	}
	if answer.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", answer.Confidence)
	}
	if answer.Structured.Overview != NotCoveredSentinel {
		t.Errorf("overview = %q, want sentinel", answer.Structured.Overview)
	}
}
