package utils

import (
	"fmt"
	"strings"

	apperrors "pharma-assistant/errors"
)

const (
	// MinQuestionLength and MaxQuestionLength bound accepted question text.
	MinQuestionLength = 1
	MaxQuestionLength = 1000

	// MaxResultsCeiling bounds the caller-supplied k.
	MaxResultsCeiling = 12
)

// ValidateQuestion checks the length bounds on free-text question input.
// The returned error enumerates the violated constraint and wraps
// ErrValidation for HTTP mapping.
func ValidateQuestion(text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinQuestionLength {
		return apperrors.WrapError(apperrors.ErrValidation, "question text must not be empty")
	}
	if len(trimmed) > MaxQuestionLength {
		return apperrors.WrapError(apperrors.ErrValidation,
			fmt.Sprintf("question text must be at most %d characters, got %d", MaxQuestionLength, len(trimmed)))
	}
	return nil
}

// ClampMaxResults normalizes a caller-supplied result cap into [1,12],
// substituting the configured default for zero.
func ClampMaxResults(k, fallback int) int {
	if k <= 0 {
		return fallback
	}
	if k > MaxResultsCeiling {
		return MaxResultsCeiling
	}
	return k
}
