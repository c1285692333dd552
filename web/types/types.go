package types

import "time"

// ChunkMetadata carries provenance for one retrieved formulary chunk.
type ChunkMetadata struct {
	SubjectName    string `json:"subjectName,omitempty"`
	Section        string `json:"section,omitempty"`
	SourceRange    string `json:"sourceRange,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// RetrievedChunk is one retrievable unit of formulary text with its
// similarity score. Produced by the retriever, read-only downstream.
type RetrievedChunk struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Similarity float64       `json:"similarity"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// Citation points a synthesized section back at a surviving chunk.
type Citation struct {
	ChunkID     string `json:"chunkId"`
	SubjectName string `json:"subjectName,omitempty"`
	Section     string `json:"section,omitempty"`
	SourceRange string `json:"sourceRange,omitempty"`
}

// StructuredAnswer is the schema-constrained pipeline output. Every section
// key is always present; absent content carries the "not covered" sentinel.
type StructuredAnswer struct {
	Overview          string            `json:"overview"`
	Sections          map[string]string `json:"sections"`
	FollowUpQuestions []string          `json:"followUpQuestions"`
	Citations         []Citation        `json:"citations"`
	LatencyMs         int               `json:"latencyMs"`
}

// InventoryFact is a structured record from the internal inventory store.
type InventoryFact struct {
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	GenericName string  `json:"genericName,omitempty"`
	Strength    string  `json:"strength,omitempty"`
	DosageForm  string  `json:"dosageForm,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	ExpiryDate  string  `json:"expiryDate,omitempty"`
}

// ExternalFact is a structured record from the external clinical reference.
type ExternalFact struct {
	Name     string `json:"name"`
	RxCUI    string `json:"rxcui,omitempty"`
	Dosage   string `json:"dosage,omitempty"`
	Usage    string `json:"usage,omitempty"`
	Warnings string `json:"warnings,omitempty"`
}

// AuditRecord captures one Q/A exchange for the audit trail.
type AuditRecord struct {
	ID         string
	PharmacyID int
	Question   string
	Intent     string
	Answer     string
	Sources    []string
	LatencyMs  int
	CreatedAt  time.Time
}

// --- HTTP request/response bodies ---

type IntentRequest struct {
	Text string `json:"text"`
}

type IntentResponse struct {
	Intent   string   `json:"intent"`
	DrugName string   `json:"drugName"`
	Needs    []string `json:"needs"`
	Sources  []string `json:"sources"`
}

type ChatRequest struct {
	Message    string `json:"message"`
	PharmacyID int    `json:"pharmacyId"`
	SessionID  string `json:"sessionId,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

type ChatUI struct {
	StaffMessage  string `json:"staffMessage"`
	DetailedNotes string `json:"detailedNotes,omitempty"`
}

type ChatResponse struct {
	UI         ChatUI          `json:"ui"`
	Inventory  []InventoryFact `json:"inventory"`
	Clinical   *ExternalFact   `json:"clinical"`
	Sources    []string        `json:"sources"`
	Confidence float64         `json:"confidence"`
}

type FormularyChatRequest struct {
	Question          string   `json:"question"`
	ChatHistory       []string `json:"chatHistory"`
	LastDrugDiscussed string   `json:"lastDrugDiscussed,omitempty"`
	K                 int      `json:"k,omitempty"`
}

type FormularyChatResponse struct {
	Answer            string            `json:"answer"`
	Sections          map[string]string `json:"sections"`
	FollowUpQuestions []string          `json:"followUpQuestions"`
	Notes             []string          `json:"notes"`
	LatencyMs         int               `json:"latencyMs"`
	DrugContext       string            `json:"drugContext,omitempty"`
	RelatedDrugs      []string          `json:"relatedDrugs,omitempty"`
}

type HealthResponse struct {
	Status               string `json:"status"`
	GenerationConfigured bool   `json:"generationConfigured"`
	EmbeddingConfigured  bool   `json:"embeddingConfigured"`
	DatabaseReachable    bool   `json:"databaseReachable"`
}
