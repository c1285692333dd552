package database

import (
	"context"
	"database/sql"
	"fmt"

	"pharma-assistant/web/types"

	"github.com/pgvector/pgvector-go"
)

// SearchFormulary runs a cosine nearest-neighbor lookup against the formulary
// corpus, returning up to k chunks at or above the similarity floor.
func (s *PostgresStore) SearchFormulary(ctx context.Context, embedding []float32, k int, floor float64) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	const query = `
        SELECT id, content, subject_name, section, source_range, classification,
               1 - (embedding <=> $1) AS similarity
        FROM formulary_chunks
        WHERE embedding IS NOT NULL
          AND 1 - (embedding <=> $1) >= $2
        ORDER BY embedding <=> $1
        LIMIT $3`

	rows, err := s.DB.QueryContext(ctx, query, pgvector.NewVector(embedding), floor, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query formulary chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.RetrievedChunk
	for rows.Next() {
		var chunk types.RetrievedChunk
		var subject, section, sourceRange, classification sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.Content, &subject, &section,
			&sourceRange, &classification, &chunk.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan formulary row: %w", err)
		}
		chunk.Metadata = types.ChunkMetadata{
			SubjectName:    subject.String,
			Section:        section.String,
			SourceRange:    sourceRange.String,
			Classification: classification.String,
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate formulary rows: %w", err)
	}
	return chunks, nil
}

// UpsertFormularyChunk stores one corpus chunk with its embedding. Index
// construction itself happens out of band; this keeps the corpus writable
// for fixtures and incremental updates.
func (s *PostgresStore) UpsertFormularyChunk(ctx context.Context, chunk types.RetrievedChunk, embedding []float32) error {
	const query = `
        INSERT INTO formulary_chunks (id, content, subject_name, section, source_range, classification, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (id)
        DO UPDATE SET content = EXCLUDED.content, subject_name = EXCLUDED.subject_name,
                      section = EXCLUDED.section, source_range = EXCLUDED.source_range,
                      classification = EXCLUDED.classification, embedding = EXCLUDED.embedding`

	_, err := s.DB.ExecContext(ctx, query, chunk.ID, chunk.Content,
		chunk.Metadata.SubjectName, chunk.Metadata.Section, chunk.Metadata.SourceRange,
		chunk.Metadata.Classification, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert formulary chunk: %w", err)
	}
	return nil
}
