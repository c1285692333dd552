package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"pharma-assistant/config"
	apperrors "pharma-assistant/errors"
	"pharma-assistant/pipeline"
	"pharma-assistant/web/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssistantHandler serves the conversational endpoints. All pipeline work is
// delegated to the injected service; the handler only does transport shaping.
type AssistantHandler struct {
	service    *pipeline.Service
	classifier *pipeline.Classifier
	cfg        *config.Config
	db         Pinger
	logger     *zap.Logger
}

// Pinger is the database reachability probe used by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewAssistantHandler(service *pipeline.Service, classifier *pipeline.Classifier,
	cfg *config.Config, db Pinger, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		service:    service,
		classifier: classifier,
		cfg:        cfg,
		db:         db,
		logger:     logger,
	}
}

// Intent classifies a single question without running retrieval.
func (h *AssistantHandler) Intent(c *gin.Context) {
	var req types.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "request body must be JSON with a text field")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondWithClientError(c, http.StatusBadRequest, "text must not be empty")
		return
	}

	intent := h.classifier.Classify(c.Request.Context(), req.Text)
	c.JSON(http.StatusOK, types.IntentResponse{
		Intent:   string(intent.Kind),
		DrugName: intent.Subject,
		Needs:    intent.NeedList(),
		Sources:  intent.SourceList(),
	})
}

// Chat answers a staff question. Error responses still carry a best-effort
// ui.staffMessage so the caller always has something to display.
func (h *AssistantHandler) Chat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondChatError(c, http.StatusBadRequest, "The question could not be read. Please rephrase and try again.")
		return
	}
	if !h.cfg.GenerationConfigured() {
		respondChatError(c, http.StatusServiceUnavailable, "The assistant is not fully configured yet. Please contact your administrator.")
		return
	}

	answer, err := h.service.Answer(c.Request.Context(), pipeline.Query{Text: req.Message}, req.PharmacyID)
	if err != nil {
		if apperrors.IsValidation(err) {
			respondChatError(c, http.StatusBadRequest, "The question must be between 1 and 1000 characters.")
			return
		}
		h.logger.Error("Chat pipeline failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		respondChatError(c, http.StatusInternalServerError, "Something went wrong answering this question. Please try again.")
		return
	}

	c.JSON(http.StatusOK, types.ChatResponse{
		UI: types.ChatUI{
			StaffMessage:  staffMessage(answer),
			DetailedNotes: strings.Join(answer.Notes, " "),
		},
		Inventory:  answer.Inventory,
		Clinical:   answer.Clinical,
		Sources:    answer.Sources,
		Confidence: answer.Confidence,
	})
}

// FormularyChat answers a question against the formulary corpus with full
// conversational context and the structured section breakdown.
func (h *AssistantHandler) FormularyChat(c *gin.Context) {
	var req types.FormularyChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "request body must be JSON with a question field")
		return
	}

	query := pipeline.Query{
		Text:        req.Question,
		History:     req.ChatHistory,
		ActiveTopic: req.LastDrugDiscussed,
		MaxResults:  req.K,
	}
	answer, err := h.service.Answer(c.Request.Context(), query, 0)
	if err != nil {
		if apperrors.IsValidation(err) {
			respondWithClientError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(c, http.StatusInternalServerError, err, "failed to answer the question", h.logger,
			zap.String("question", req.Question))
		return
	}

	c.JSON(http.StatusOK, types.FormularyChatResponse{
		Answer:            answer.Structured.Overview,
		Sections:          answer.Structured.Sections,
		FollowUpQuestions: answer.Structured.FollowUpQuestions,
		Notes:             answer.Notes,
		LatencyMs:         answer.Structured.LatencyMs,
		DrugContext:       answer.Subject,
		RelatedDrugs:      relatedDrugs(answer),
	})
}

// Health reports configuration and dependency reachability.
func (h *AssistantHandler) Health(c *gin.Context) {
	resp := types.HealthResponse{
		GenerationConfigured: h.cfg.GenerationConfigured(),
		EmbeddingConfigured:  strings.TrimSpace(h.cfg.EmbeddingModel) != "",
	}
	if h.db != nil {
		resp.DatabaseReachable = h.db.Ping(c.Request.Context()) == nil
	}

	resp.Status = "ok"
	status := http.StatusOK
	if !resp.GenerationConfigured || !resp.DatabaseReachable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// respondChatError keeps the chat contract on failures: an error field plus a
// displayable staff message.
func respondChatError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error": message,
		"ui":    types.ChatUI{StaffMessage: message},
	})
}

// staffMessage condenses the structured answer into one displayable line.
func staffMessage(answer *pipeline.Answer) string {
	if answer.Structured.Overview != "" && answer.Structured.Overview != pipeline.NotCoveredSentinel {
		return answer.Structured.Overview
	}
	if answer.Degraded {
		return "Only partial information is available for this question right now."
	}
	return "No relevant information was found for this question."
}

// relatedDrugs lists the other subjects the citations touched, sorted for a
// stable response body.
func relatedDrugs(answer *pipeline.Answer) []string {
	seen := make(map[string]struct{})
	var drugs []string
	for _, cite := range answer.Structured.Citations {
		name := strings.ToLower(strings.TrimSpace(cite.SubjectName))
		if name == "" || name == strings.ToLower(answer.Subject) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		drugs = append(drugs, name)
	}
	sort.Strings(drugs)
	return drugs
}
