package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pharma-assistant/llmclient"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
)

// fakeGenerator returns a canned reply or error and counts invocations.
type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) ChatJSON(_ context.Context, _ []llmclient.Message, _ *float64) (string, error) {
	f.calls++
	return f.reply, f.err
}

func amoxicillinChunks() []types.RetrievedChunk {
	return []types.RetrievedChunk{
		{
			ID:         "c1",
			Content:    "Amoxicillin adults: 500 mg every 8 hours. Max 3 g per day.",
			Similarity: 0.91,
			Metadata:   types.ChunkMetadata{SubjectName: "amoxicillin", Section: "dosage", SourceRange: "p.12"},
		},
		{
			ID:         "c2",
			Content:    "Amoxicillin is indicated for susceptible bacterial infections.",
			Similarity: 0.84,
			Metadata:   types.ChunkMetadata{SubjectName: "amoxicillin", Section: "indications", SourceRange: "p.10"},
		},
	}
}

func TestSynthesizeEmptyContextNeverCallsGeneration(t *testing.T) {
	gen := &fakeGenerator{reply: `{}`}
	s := NewSynthesizer(gen, zap.NewNop())

	result := s.Synthesize(context.Background(), "storage of insulin?", ConversationContext{}, nil, AggregateResult{})

	if gen.calls != 0 {
		t.Fatalf("generation called %d times with empty context, want 0", gen.calls)
	}
	if result.Degraded {
		t.Error("empty context is a valid answer, not a degraded one")
	}
	for _, key := range SectionKeys {
		if result.Answer.Sections[key] != NotCoveredSentinel {
			t.Errorf("section %q = %q, want sentinel", key, result.Answer.Sections[key])
		}
	}
	if result.Answer.Overview != NotCoveredSentinel {
		t.Errorf("overview = %q, want sentinel", result.Answer.Overview)
	}
}

func TestSynthesizeKeepsVerifiedSections(t *testing.T) {
	gen := &fakeGenerator{reply: `{
		"overview": "Standard adult course of amoxicillin.",
		"subject": "amoxicillin",
		"sections": {"dosage": "Adults take 500 mg every 8 hours.", "storage": ""},
		"followUpQuestions": ["Renal dosing?"],
		"citations": ["chunk-1"]
	}`}
	s := NewSynthesizer(gen, zap.NewNop())

	result := s.Synthesize(context.Background(), "amoxicillin dose?", ConversationContext{}, amoxicillinChunks(), AggregateResult{})

	if result.Degraded {
		t.Fatal("valid generation must not be degraded")
	}
	if got := result.Answer.Sections["dosage"]; got != "Adults take 500 mg every 8 hours." {
		t.Errorf("dosage = %q", got)
	}
	if got := result.Answer.Sections["storage"]; got != NotCoveredSentinel {
		t.Errorf("empty section = %q, want sentinel", got)
	}
	if result.Subject != "amoxicillin" {
		t.Errorf("subject = %q, want amoxicillin", result.Subject)
	}
	if len(result.Answer.Citations) != 1 || result.Answer.Citations[0].ChunkID != "c1" {
		t.Errorf("citations = %+v, want single reference to c1", result.Answer.Citations)
	}
}

func TestSynthesizeWithholdsUnverifiableNumbers(t *testing.T) {
	// 250 appears nowhere in the chunk contents
	gen := &fakeGenerator{reply: `{
		"overview": "Amoxicillin is indicated for susceptible bacterial infections.",
		"sections": {"dosage": "Take 250 mg twice daily."},
		"citations": ["chunk-1"]
	}`}
	s := NewSynthesizer(gen, zap.NewNop())

	result := s.Synthesize(context.Background(), "amoxicillin dose?", ConversationContext{}, amoxicillinChunks(), AggregateResult{})

	if got := result.Answer.Sections["dosage"]; got != NotCoveredSentinel {
		t.Fatalf("unverified dosage survived: %q", got)
	}
	found := false
	for _, note := range result.Notes {
		if strings.Contains(note, "dosage") {
			found = true
		}
	}
	if !found {
		t.Errorf("notes = %v, want a withholding note for the dosage section", result.Notes)
	}
}

func TestSynthesizeFallsBackOnGenerationError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream timeout")}
	s := NewSynthesizer(gen, zap.NewNop())
	facts := AggregateResult{
		Clinical: &types.ExternalFact{Name: "amoxicillin", Dosage: "500 mg every 8 hours", Warnings: "Penicillin allergy"},
	}

	result := s.Synthesize(context.Background(), "amoxicillin dose?", ConversationContext{ActiveTopic: "amoxicillin"}, amoxicillinChunks(), facts)

	if !result.Degraded {
		t.Fatal("generation failure must degrade the answer")
	}
	if got := result.Answer.Sections["dosage"]; got != "500 mg every 8 hours" {
		t.Errorf("dosage = %q, want the clinical fact", got)
	}
	if got := result.Answer.Sections["warnings"]; got != "Penicillin allergy" {
		t.Errorf("warnings = %q, want the clinical fact", got)
	}
	if got := result.Answer.Sections["interactions"]; got != NotCoveredSentinel {
		t.Errorf("unbacked section = %q, want sentinel", got)
	}
	if result.Subject != "amoxicillin" {
		t.Errorf("subject = %q, want active topic carried through", result.Subject)
	}
	if len(result.Notes) == 0 {
		t.Error("degraded answer must explain itself in notes")
	}
}

func TestSynthesizeFallsBackOnMalformedJSON(t *testing.T) {
	gen := &fakeGenerator{reply: "I am sorry, I cannot answer in JSON."}
	s := NewSynthesizer(gen, zap.NewNop())

	result := s.Synthesize(context.Background(), "amoxicillin dose?", ConversationContext{}, amoxicillinChunks(), AggregateResult{})

	if !result.Degraded {
		t.Fatal("malformed generation output must degrade the answer")
	}
	// Chunks are still cited so staff can look them up by hand
	if len(result.Answer.Citations) != 2 {
		t.Errorf("citations = %d, want all surviving chunks", len(result.Answer.Citations))
	}
}

func TestResolveCitations(t *testing.T) {
	chunks := amoxicillinChunks()

	tests := []struct {
		name string
		tags []string
		want []string // expected chunk IDs in order
	}{
		{"explicit tags", []string{"chunk-2", "chunk-1"}, []string{"c2", "c1"}},
		{"out of range dropped", []string{"chunk-9", "chunk-1"}, []string{"c1"}},
		{"duplicates collapse", []string{"chunk-1", "chunk-1"}, []string{"c1"}},
		{"no usable tags cite everything", []string{"source A"}, []string{"c1", "c2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCitations(tt.tags, chunks)
			if len(got) != len(tt.want) {
				t.Fatalf("citations = %+v, want IDs %v", got, tt.want)
			}
			for i := range got {
				if got[i].ChunkID != tt.want[i] {
					t.Errorf("citation %d = %q, want %q", i, got[i].ChunkID, tt.want[i])
				}
			}
		})
	}
}

func TestFollowUpQuestionsCapped(t *testing.T) {
	gen := &fakeGenerator{reply: `{
		"overview": "Amoxicillin is indicated for susceptible bacterial infections.",
		"sections": {},
		"followUpQuestions": ["a?", "b?", "c?", "d?", "e?"],
		"citations": ["chunk-2"]
	}`}
	s := NewSynthesizer(gen, zap.NewNop())

	result := s.Synthesize(context.Background(), "what is amoxicillin for?", ConversationContext{}, amoxicillinChunks(), AggregateResult{})

	if got := len(result.Answer.FollowUpQuestions); got != 3 {
		t.Errorf("follow-ups = %d, want capped at 3", got)
	}
}
