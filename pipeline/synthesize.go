package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pharma-assistant/llmclient"
	"pharma-assistant/prompts"
	"pharma-assistant/web/types"

	"go.uber.org/zap"
)

// NotCoveredSentinel fills any answer section the retrieved context does not
// support. An explicit sentinel beats an empty answer or a crash.
const NotCoveredSentinel = "Not covered in provided context"

// SectionKeys is the fixed output schema; every key is always present.
var SectionKeys = []string{"indications", "dosage", "warnings", "interactions", "sideEffects", "storage"}

// Generator is the structured-output generation capability.
type Generator interface {
	ChatJSON(ctx context.Context, messages []llmclient.Message, temperature *float64) (string, error)
}

// generatedAnswer is the schema the generation backend must return.
type generatedAnswer struct {
	Overview          string            `json:"overview"`
	Subject           string            `json:"subject"`
	Sections          map[string]string `json:"sections"`
	FollowUpQuestions []string          `json:"followUpQuestions"`
	Citations         []string          `json:"citations"`
}

// SynthesisResult is the synthesizer's full output: the answer, the subject
// to carry into the next turn, and whether the templated fallback ran.
type SynthesisResult struct {
	Answer   types.StructuredAnswer
	Subject  string
	Degraded bool
	Notes    []string
}

var numericTokenPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

var chunkTagPattern = regexp.MustCompile(`chunk-(\d+)`)

// Synthesizer turns merged context into a schema-conformant answer. Output
// is validated before being returned; generation failure triggers a
// templated response assembled from the structured facts instead.
type Synthesizer struct {
	llm    Generator
	logger *zap.Logger
}

func NewSynthesizer(llm Generator, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, logger: logger}
}

// Synthesize produces the structured answer for one question. It never
// returns an error: empty context yields an all-sentinel answer, and a
// failed generation call lands on the fact-templated fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, conv ConversationContext,
	chunks []types.RetrievedChunk, facts AggregateResult) SynthesisResult {

	// Empty context is a valid synthesis input, distinct from generation
	// failure: no call is made, nothing to fabricate from.
	if len(chunks) == 0 && facts.Inventory == nil && facts.Clinical == nil {
		return SynthesisResult{
			Answer:  EmptyAnswer(),
			Subject: conv.ActiveTopic,
		}
	}

	if s.llm == nil {
		return s.Templated(conv, chunks, facts, "generation backend not configured")
	}

	messages := []llmclient.Message{
		{Role: "system", Content: prompts.SynthesisSystem()},
		{Role: "user", Content: prompts.SynthesisUser(question, conv.History, chunks, facts.Inventory, facts.Clinical, conv.ActiveTopic)},
	}

	raw, err := s.llm.ChatJSON(ctx, messages, floatPtr(0.2))
	if err != nil {
		s.logger.Warn("Generation call failed, building templated answer",
			zap.String("question", question),
			zap.Error(err))
		return s.Templated(conv, chunks, facts, "answer generation unavailable")
	}

	var parsed generatedAnswer
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Warn("Generation returned malformed JSON, building templated answer", zap.Error(err))
		return s.Templated(conv, chunks, facts, "answer generation returned an invalid response")
	}

	answer, notes := s.validate(parsed, chunks)

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		subject = conv.ActiveTopic
	}

	return SynthesisResult{
		Answer:  answer,
		Subject: subject,
		Notes:   notes,
	}
}

// EmptyAnswer is the all-sentinel answer shape for zero-context synthesis.
func EmptyAnswer() types.StructuredAnswer {
	sections := make(map[string]string, len(SectionKeys))
	for _, key := range SectionKeys {
		sections[key] = NotCoveredSentinel
	}
	return types.StructuredAnswer{
		Overview:          NotCoveredSentinel,
		Sections:          sections,
		FollowUpQuestions: []string{},
		Citations:         []types.Citation{},
	}
}

// validate normalizes generated output against the fixed schema: unknown
// section keys are dropped, missing keys get the sentinel, and every numeric
// token in a populated section must appear verbatim in a surviving chunk.
func (s *Synthesizer) validate(parsed generatedAnswer, chunks []types.RetrievedChunk) (types.StructuredAnswer, []string) {
	var notes []string

	sections := make(map[string]string, len(SectionKeys))
	for _, key := range SectionKeys {
		content := strings.TrimSpace(parsed.Sections[key])
		if content == "" {
			content = NotCoveredSentinel
		}
		sections[key] = content
	}

	for _, key := range SectionKeys {
		content := sections[key]
		if content == NotCoveredSentinel {
			continue
		}
		if bad := unverifiedNumericToken(content, chunks); bad != "" {
			s.logger.Warn("Dropping section with unverifiable numeric value",
				zap.String("section", key),
				zap.String("token", bad))
			sections[key] = NotCoveredSentinel
			notes = append(notes, fmt.Sprintf("the %s section was withheld: a stated value could not be verified against the formulary", key))
		}
	}

	overview := strings.TrimSpace(parsed.Overview)
	if overview == "" {
		overview = NotCoveredSentinel
	} else if bad := unverifiedNumericToken(overview, chunks); bad != "" {
		s.logger.Warn("Dropping overview with unverifiable numeric value", zap.String("token", bad))
		overview = NotCoveredSentinel
		notes = append(notes, "the overview was withheld: a stated value could not be verified against the formulary")
	}

	followUps := parsed.FollowUpQuestions
	if len(followUps) > 3 {
		followUps = followUps[:3]
	}
	if followUps == nil {
		followUps = []string{}
	}

	return types.StructuredAnswer{
		Overview:          overview,
		Sections:          sections,
		FollowUpQuestions: followUps,
		Citations:         resolveCitations(parsed.Citations, chunks),
	}, notes
}

// unverifiedNumericToken returns the first numeric token in text that does
// not appear verbatim in any chunk's content, or "" when all check out.
func unverifiedNumericToken(text string, chunks []types.RetrievedChunk) string {
	for _, token := range numericTokenPattern.FindAllString(text, -1) {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Content, token) {
				found = true
				break
			}
		}
		if !found {
			return token
		}
	}
	return ""
}

// resolveCitations maps the generator's [chunk-N] tags back onto chunk
// references, dropping anything out of range. A populated answer with no
// usable tags cites every surviving chunk so traceability never goes dark.
func resolveCitations(tags []string, chunks []types.RetrievedChunk) []types.Citation {
	var citations []types.Citation
	seen := make(map[int]struct{})

	for _, tag := range tags {
		m := chunkTagPattern.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		citations = append(citations, citationFor(chunks[n-1]))
	}

	if citations == nil && len(chunks) > 0 {
		for _, chunk := range chunks {
			citations = append(citations, citationFor(chunk))
		}
	}
	if citations == nil {
		citations = []types.Citation{}
	}
	return citations
}

func citationFor(chunk types.RetrievedChunk) types.Citation {
	return types.Citation{
		ChunkID:     chunk.ID,
		SubjectName: chunk.Metadata.SubjectName,
		Section:     chunk.Metadata.Section,
		SourceRange: chunk.Metadata.SourceRange,
	}
}

// Templated assembles the lower-fidelity templated answer directly from the
// structured fact records. Sections not backed by a fact stay sentinel:
// without a validated generation step nothing ties free text to the chunks.
func (s *Synthesizer) Templated(conv ConversationContext, chunks []types.RetrievedChunk,
	facts AggregateResult, reason string) SynthesisResult {

	answer := EmptyAnswer()
	notes := []string{reason}

	var overview []string
	if facts.Clinical != nil {
		if facts.Clinical.Dosage != "" {
			answer.Sections["dosage"] = facts.Clinical.Dosage
		}
		if facts.Clinical.Warnings != "" {
			answer.Sections["warnings"] = facts.Clinical.Warnings
		}
		if facts.Clinical.Usage != "" {
			answer.Sections["indications"] = facts.Clinical.Usage
		}
		overview = append(overview, fmt.Sprintf("Clinical reference data for %s is shown below.", facts.Clinical.Name))
	}
	for _, fact := range facts.Inventory {
		line := fmt.Sprintf("%s: %d in stock", fact.Name, fact.Quantity)
		if fact.ExpiryDate != "" {
			line += ", expires " + fact.ExpiryDate
		}
		overview = append(overview, line)
	}

	if len(overview) > 0 {
		answer.Overview = strings.Join(overview, " ")
	} else {
		answer.Overview = "The assistant could not generate a full answer for this question."
	}

	// Surviving chunks are still cited so staff can follow up manually
	for _, chunk := range chunks {
		answer.Citations = append(answer.Citations, citationFor(chunk))
	}

	return SynthesisResult{
		Answer:   answer,
		Subject:  conv.ActiveTopic,
		Degraded: true,
		Notes:    notes,
	}
}
