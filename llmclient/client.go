package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pharma-assistant/config"
	apperrors "pharma-assistant/errors"

	"go.uber.org/zap"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client talks to an OpenAI-compatible chat/embeddings backend. Calls are
// single-attempt with a bounded timeout: retries belong to the upstream
// client, not this layer, to avoid compounding request latency.
type Client struct {
	cfg    *config.Config
	chat   *http.Client
	embed  *http.Client
	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		chat:   &http.Client{Timeout: cfg.GenerationTimeout},
		embed:  &http.Client{Timeout: cfg.EmbeddingTimeout},
		logger: logger,
	}
}

// ChatJSON performs a non-streaming chat completion constrained to JSON output.
// temperature is optional; pass nil to use server default.
func (c *Client) ChatJSON(ctx context.Context, messages []Message, temperature *float64) (string, error) {
	if !c.cfg.GenerationConfigured() {
		return "", apperrors.ErrConfiguration
	}

	reqBody := chatRequest{
		Model:          c.cfg.GenerationModel,
		Messages:       messages,
		Temperature:    temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", c.cfg.GenerationBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.GenerationAPIKey)

	resp, err := c.chat.Do(req)
	if err != nil {
		return "", classifyTransportError(err, "chat completion")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation server status %s: %s", resp.Status, truncateBody(bodyBytes))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("no response choices from generation server")
	}
	return cr.Choices[0].Message.Content, nil
}

// Embed generates an embedding vector for the provided text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.cfg.GenerationConfigured() {
		return nil, apperrors.ErrConfiguration
	}

	reqBody := embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: text,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.cfg.GenerationBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.GenerationAPIKey)

	resp, err := c.embed.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, "embedding")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server status %s: %s", resp.Status, truncateBody(bodyBytes))
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return er.Data[0].Embedding, nil
}

func classifyTransportError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapError(apperrors.ErrUpstreamTimeout, op)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.WrapError(apperrors.ErrUpstreamTimeout, op)
	}
	return fmt.Errorf("%s request: %w", op, err)
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
