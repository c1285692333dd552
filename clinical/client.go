package clinical

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"pharma-assistant/cache"
	"pharma-assistant/config"
	apperrors "pharma-assistant/errors"
	"pharma-assistant/web/types"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// strengthPattern matches dose strength tokens like "500mg", "500 mg", "5 ml".
var strengthPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|iu|%)\b`)

// dosageFormWords are stripped before querying: upstream catalogs key on the
// ingredient name, not the presentation.
var dosageFormWords = map[string]struct{}{
	"tablet": {}, "tablets": {}, "tab": {}, "tabs": {},
	"capsule": {}, "capsules": {}, "cap": {}, "caps": {},
	"syrup": {}, "suspension": {}, "injection": {}, "injectable": {},
	"cream": {}, "ointment": {}, "gel": {}, "drops": {}, "spray": {},
	"suppository": {}, "patch": {}, "inhaler": {},
}

type rxcuiResponse struct {
	IDGroup struct {
		Name     string   `json:"name"`
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

type drugLabelResponse struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosageAndAdministration"`
	Usage    string `json:"indicationsAndUsage"`
	Warnings string `json:"warnings"`
}

// Client queries the external clinical reference for dosage, usage, and
// warning text. Results are cached process-wide with lazy TTL expiry keyed
// by the cleaned subject name, since upstream catalogs change slowly.
type Client struct {
	http   *resty.Client
	cache  *cache.TTL[*types.ExternalFact]
	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	backend, err := cache.NewLRUBackend(cfg.ClinicalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create clinical cache: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.ClinicalAPIBaseURL).
		SetTimeout(cfg.ClinicalTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		cache:  cache.NewTTL[*types.ExternalFact](backend, cfg.ClinicalCacheTTL),
		logger: logger,
	}, nil
}

// CleanSubject strips strength and dosage-form tokens from a drug subject so
// the remaining ingredient name matches upstream catalog entries.
func CleanSubject(subject string) string {
	cleaned := strengthPattern.ReplaceAllString(subject, " ")

	var kept []string
	for _, word := range strings.Fields(cleaned) {
		if _, isForm := dosageFormWords[strings.ToLower(word)]; isForm {
			continue
		}
		kept = append(kept, word)
	}
	return strings.ToLower(strings.TrimSpace(strings.Join(kept, " ")))
}

// Lookup resolves a subject to a clinical fact. A missing upstream match
// returns (nil, nil); only transport problems surface as errors.
func (c *Client) Lookup(ctx context.Context, subject string) (*types.ExternalFact, error) {
	normalized := CleanSubject(subject)
	if normalized == "" {
		return nil, nil
	}

	if fact, ok := c.cache.Get(normalized); ok {
		return fact, nil
	}

	rxcui, err := c.resolveRxCUI(ctx, normalized)
	if err != nil {
		return nil, err
	}

	fact := &types.ExternalFact{Name: normalized, RxCUI: rxcui}
	if err := c.fetchLabel(ctx, normalized, fact); err != nil {
		return nil, err
	}

	if fact.RxCUI == "" && fact.Dosage == "" && fact.Usage == "" && fact.Warnings == "" {
		// Negative results are cached too: repeated misses for unknown names
		// should not hammer the upstream catalog.
		c.cache.Set(normalized, nil)
		return nil, nil
	}

	c.cache.Set(normalized, fact)
	return fact, nil
}

func (c *Client) resolveRxCUI(ctx context.Context, name string) (string, error) {
	var parsed rxcuiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetQueryParam("search", "1").
		SetResult(&parsed).
		Get("/REST/rxcui.json")
	if err != nil {
		return "", classifyError(err, "rxcui lookup")
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("Clinical rxcui lookup returned non-200",
			zap.Int("status", resp.StatusCode()),
			zap.String("name", name))
		return "", nil
	}
	if len(parsed.IDGroup.RxNormID) == 0 {
		return "", nil
	}
	return parsed.IDGroup.RxNormID[0], nil
}

func (c *Client) fetchLabel(ctx context.Context, name string, fact *types.ExternalFact) error {
	var parsed drugLabelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetResult(&parsed).
		Get("/REST/drugLabel.json")
	if err != nil {
		return classifyError(err, "drug label lookup")
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("Clinical label lookup returned non-200",
			zap.Int("status", resp.StatusCode()),
			zap.String("name", name))
		return nil
	}

	fact.Dosage = strings.TrimSpace(parsed.Dosage)
	fact.Usage = strings.TrimSpace(parsed.Usage)
	fact.Warnings = strings.TrimSpace(parsed.Warnings)
	if parsed.Name != "" {
		fact.Name = parsed.Name
	}
	return nil
}

func classifyError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapError(apperrors.ErrUpstreamTimeout, op)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.WrapError(apperrors.ErrUpstreamTimeout, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
