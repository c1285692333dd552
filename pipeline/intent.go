package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"pharma-assistant/llmclient"
	"pharma-assistant/prompts"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

// IntentKind is the coarse category of a staff question.
type IntentKind string

const (
	IntentDrugInfo     IntentKind = "drug_info"
	IntentStockCheck   IntentKind = "stock_check"
	IntentDosage       IntentKind = "dosage"
	IntentAlternatives IntentKind = "alternatives"
	IntentOther        IntentKind = "other"
)

// NeedTag marks one piece of information the question asks for.
type NeedTag string

const (
	NeedStock        NeedTag = "stock"
	NeedDosage       NeedTag = "dosage"
	NeedWarnings     NeedTag = "warnings"
	NeedAlternatives NeedTag = "alternatives"
	NeedPrice        NeedTag = "price"
	NeedExpiry       NeedTag = "expiry"
	NeedLocalName    NeedTag = "localName"
)

// needOrder fixes the canonical listing order for deterministic responses.
var needOrder = []NeedTag{NeedStock, NeedDosage, NeedWarnings, NeedAlternatives, NeedPrice, NeedExpiry, NeedLocalName}

// SourceTag names one of the three knowledge origins.
type SourceTag string

const (
	SourceInternalDB SourceTag = "internal_db"
	SourceExternalDB SourceTag = "external_db"
	SourceWebSearch  SourceTag = "web_search"
)

var sourceOrder = []SourceTag{SourceInternalDB, SourceExternalDB, SourceWebSearch}

// Intent is the classified shape of a question: category, candidate drug
// subject, the needs it expresses, and the sources required to satisfy them.
type Intent struct {
	Kind    IntentKind
	Subject string
	Needs   map[NeedTag]bool
	Sources map[SourceTag]bool
}

// NeedList returns the needs in canonical order.
func (i Intent) NeedList() []string {
	var out []string
	for _, tag := range needOrder {
		if i.Needs[tag] {
			out = append(out, string(tag))
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// SourceList returns the sources in canonical order.
func (i Intent) SourceList() []string {
	var out []string
	for _, tag := range sourceOrder {
		if i.Sources[tag] {
			out = append(out, string(tag))
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// needRule couples a need tag with the vocabulary that triggers it. The rule
// table is ordered and fixed so the heuristic stays unit-testable on its own.
type needRule struct {
	need    NeedTag
	pattern *regexp.Regexp
}

var needRules = []needRule{
	{NeedStock, regexp.MustCompile(`(?i)\b(stock|stocked|available|availability|do we have|have we got|quantity|how many|units left|remaining|carry)\b`)},
	{NeedDosage, regexp.MustCompile(`(?i)\b(dosage|dose|doses|dosing|posology|how much|how often|frequency|per day|daily|regimen)\b`)},
	{NeedWarnings, regexp.MustCompile(`(?i)\b(warning|warnings|side effect|side effects|adverse|interaction|interactions|contraindication|contraindications|precaution|precautions|pregnancy|pregnant|safe|safety)\b`)},
	{NeedAlternatives, regexp.MustCompile(`(?i)\b(alternative|alternatives|substitute|substitutes|substitution|replacement|instead of|equivalent|generic for)\b`)},
	{NeedPrice, regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|expensive|cheap)\b`)},
	{NeedExpiry, regexp.MustCompile(`(?i)\b(expiry|expires|expire|expired|expiration|best before|shelf life)\b`)},
	{NeedLocalName, regexp.MustCompile(`(?i)\b(local name|known as|called here|local brand|sold as)\b`)},
}

// webSearchPattern flags recall/advisory/comparison vocabulary that only the
// open web can answer.
var webSearchPattern = regexp.MustCompile(`(?i)\b(recall|recalled|advisory|alert|news|compare|comparison|versus|vs)\b`)

// dosageSubjectPattern captures "name + strength + unit" subjects such as
// "paracetamol 500 mg" or "amoxicillin 250mg".
var dosageSubjectPattern = regexp.MustCompile(`(?i)\b([a-z][a-z-]{2,})\s+(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|iu|%)\b`)

// capitalizedRunPattern captures 1-3 consecutive capitalized words.
var capitalizedRunPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2})\b`)

var subjectStopWords = map[string]struct{}{
	"do": {}, "we": {}, "have": {}, "the": {}, "a": {}, "an": {}, "is": {}, "are": {},
	"what": {}, "whats": {}, "what's": {}, "how": {}, "much": {}, "many": {}, "of": {},
	"for": {}, "in": {}, "on": {}, "at": {}, "to": {}, "any": {}, "you": {}, "your": {},
	"there": {}, "their": {}, "this": {}, "that": {}, "it": {}, "its": {}, "with": {},
	"and": {}, "or": {}, "does": {}, "did": {}, "can": {}, "could": {}, "should": {},
	"would": {}, "will": {}, "i": {}, "me": {}, "my": {}, "our": {}, "us": {},
	"please": {}, "show": {}, "tell": {}, "give": {}, "get": {}, "need": {},
	"want": {}, "know": {}, "about": {}, "still": {}, "some": {},
}

// remoteIntent is the schema the remote classifier must return.
type remoteIntent struct {
	Intent  string   `json:"intent"`
	Subject string   `json:"subject"`
	Needs   []string `json:"needs"`
	Sources []string `json:"sources"`
}

// Classifier derives an Intent from a raw question. A remote LLM-backed
// classification is attempted first when configured; every failure path
// lands on the deterministic heuristic, so Classify never errors.
type Classifier struct {
	llm       *llmclient.Client
	useRemote bool
	logger    *zap.Logger
}

func NewClassifier(llm *llmclient.Client, useRemote bool, logger *zap.Logger) *Classifier {
	return &Classifier{
		llm:       llm,
		useRemote: useRemote,
		logger:    logger,
	}
}

// Classify returns the intent for a question. Worst case is IntentOther with
// empty needs and the internal store as source.
func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	if c.useRemote && c.llm != nil {
		if intent, ok := c.classifyRemote(ctx, text); ok {
			return intent
		}
	}
	return c.ClassifyHeuristic(text)
}

func (c *Classifier) classifyRemote(ctx context.Context, text string) (Intent, bool) {
	system, user := prompts.ClassifyPrompt(text)
	messages := []llmclient.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	raw, err := c.llm.ChatJSON(ctx, messages, floatPtr(0))
	if err != nil {
		c.logger.Debug("Remote classification unavailable, using heuristic", zap.Error(err))
		return Intent{}, false
	}

	var parsed remoteIntent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("Remote classification returned malformed JSON, using heuristic", zap.Error(err))
		return Intent{}, false
	}

	intent, ok := validateRemoteIntent(parsed)
	if !ok {
		c.logger.Warn("Remote classification failed schema validation, using heuristic",
			zap.String("intent", parsed.Intent))
		return Intent{}, false
	}
	if intent.Subject == "" {
		intent.Subject = c.extractSubject(text)
	}
	return intent, true
}

// validateRemoteIntent rejects any field outside the fixed vocabularies
// rather than trusting unchecked model output.
func validateRemoteIntent(parsed remoteIntent) (Intent, bool) {
	kind := IntentKind(parsed.Intent)
	switch kind {
	case IntentDrugInfo, IntentStockCheck, IntentDosage, IntentAlternatives, IntentOther:
	default:
		return Intent{}, false
	}

	needs := make(map[NeedTag]bool)
	for _, raw := range parsed.Needs {
		tag := NeedTag(raw)
		valid := false
		for _, known := range needOrder {
			if tag == known {
				valid = true
				break
			}
		}
		if !valid {
			return Intent{}, false
		}
		needs[tag] = true
	}

	sources := make(map[SourceTag]bool)
	for _, raw := range parsed.Sources {
		tag := SourceTag(raw)
		valid := false
		for _, known := range sourceOrder {
			if tag == known {
				valid = true
				break
			}
		}
		if !valid {
			return Intent{}, false
		}
		sources[tag] = true
	}

	// Other carries no needs; reject contradictory output
	if kind == IntentOther && len(needs) > 0 {
		return Intent{}, false
	}
	if len(sources) == 0 {
		sources[SourceInternalDB] = true
	}

	return Intent{
		Kind:    kind,
		Subject: strings.TrimSpace(parsed.Subject),
		Needs:   needs,
		Sources: sources,
	}, true
}

// ClassifyHeuristic is the deterministic fallback: subject extraction, need
// vocabulary membership, then intent and source derivation.
func (c *Classifier) ClassifyHeuristic(text string) Intent {
	needs := make(map[NeedTag]bool)
	for _, rule := range needRules {
		if rule.pattern.MatchString(text) {
			needs[rule.need] = true
		}
	}

	var kind IntentKind
	switch {
	case needs[NeedAlternatives]:
		kind = IntentAlternatives
	case needs[NeedStock] && needs[NeedDosage]:
		kind = IntentDrugInfo
	case needs[NeedStock]:
		kind = IntentStockCheck
	case needs[NeedDosage]:
		kind = IntentDosage
	case len(needs) > 0:
		kind = IntentDrugInfo
	default:
		kind = IntentOther
	}

	sources := make(map[SourceTag]bool)
	if needs[NeedStock] || needs[NeedPrice] || needs[NeedExpiry] || needs[NeedLocalName] || needs[NeedAlternatives] {
		sources[SourceInternalDB] = true
	}
	if needs[NeedDosage] || needs[NeedWarnings] {
		sources[SourceExternalDB] = true
	}
	if webSearchPattern.MatchString(text) {
		sources[SourceWebSearch] = true
	}
	if len(sources) == 0 {
		sources[SourceInternalDB] = true
	}

	// Other implies empty needs by construction of the switch above
	return Intent{
		Kind:    kind,
		Subject: c.extractSubject(text),
		Needs:   needs,
		Sources: sources,
	}
}

// extractSubject tries, in order: a dosage-pattern match, a capitalized-token
// run, then the longest stop-word-filtered lowercase token.
func (c *Classifier) extractSubject(text string) string {
	if m := dosageSubjectPattern.FindString(text); m != "" {
		return strings.ToLower(strings.Join(strings.Fields(m), " "))
	}

	for _, run := range capitalizedRunPattern.FindAllString(text, -1) {
		if !runIsStopWords(run) {
			return run
		}
	}

	return longestContentToken(text, c.logger)
}

func runIsStopWords(run string) bool {
	for _, word := range strings.Fields(run) {
		if _, ok := subjectStopWords[strings.ToLower(word)]; !ok {
			return false
		}
	}
	return true
}

// longestContentToken tokenizes the question and keeps the longest lowercase
// token that is neither a stop word nor part of a need vocabulary. Prose
// handles contractions better than naive splitting; on tokenizer failure a
// plain fields split takes over.
func longestContentToken(text string, logger *zap.Logger) string {
	var tokens []string
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		if logger != nil {
			logger.Debug("Tokenizer failed, splitting on whitespace", zap.Error(err))
		}
		tokens = strings.Fields(text)
	} else {
		for _, tok := range doc.Tokens() {
			tokens = append(tokens, tok.Text)
		}
	}

	candidates := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.Trim(strings.ToLower(tok), ".,!?;:'\"")
		if len(tok) < 4 {
			continue
		}
		if tok != strings.ToLower(tok) {
			continue
		}
		if _, stop := subjectStopWords[tok]; stop {
			continue
		}
		if tokenInNeedVocabulary(tok) {
			continue
		}
		candidates = append(candidates, tok)
	}
	if len(candidates) == 0 {
		return ""
	}

	// Longest wins; stable tiebreak on first appearance
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	return candidates[0]
}

func tokenInNeedVocabulary(tok string) bool {
	for _, rule := range needRules {
		if rule.pattern.MatchString(tok) {
			return true
		}
	}
	return webSearchPattern.MatchString(tok)
}

func floatPtr(v float64) *float64 { return &v }
