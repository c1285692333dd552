package database

import (
	"context"
	"fmt"
	"strings"

	"pharma-assistant/web/types"

	"github.com/google/uuid"
)

// InsertAuditRecord persists one Q/A exchange. Called off the request path,
// so failures are logged by the caller rather than surfaced to staff.
func (s *PostgresStore) InsertAuditRecord(ctx context.Context, rec types.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	const query = `
        INSERT INTO qa_audit (id, pharmacy_id, question, intent, answer, sources, latency_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := s.DB.ExecContext(ctx, query, rec.ID, rec.PharmacyID, rec.Question,
		rec.Intent, rec.Answer, strings.Join(rec.Sources, ","), rec.LatencyMs)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
