package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Println("Successfully connected to the database")
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS products (
            id UUID PRIMARY KEY,
            pharmacy_id INT NOT NULL,
            name TEXT NOT NULL,
            brand TEXT DEFAULT '',
            generic_name TEXT DEFAULT '',
            strength TEXT DEFAULT '',
            dosage_form TEXT DEFAULT '',
            quantity INT NOT NULL DEFAULT 0,
            price NUMERIC(12,2) NOT NULL DEFAULT 0,
            expiry_date DATE,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            deleted_at TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS idx_products_pharmacy_name ON products(pharmacy_id, name)`,
		`CREATE TABLE IF NOT EXISTS formulary_chunks (
            id UUID PRIMARY KEY,
            content TEXT NOT NULL,
            subject_name TEXT DEFAULT '',
            section TEXT DEFAULT '',
            source_range TEXT DEFAULT '',
            classification TEXT DEFAULT '',
            embedding vector(1536),
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS qa_audit (
            id UUID PRIMARY KEY,
            pharmacy_id INT,
            question TEXT NOT NULL,
            intent TEXT DEFAULT '',
            answer TEXT DEFAULT '',
            sources TEXT DEFAULT '',
            latency_ms INT DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_qa_audit_created_at ON qa_audit(created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Ping reports database reachability for the health probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
