package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pharma-assistant/web/types"
)

// SearchProducts pattern-matches live inventory rows on name, brand, and
// generic name. Soft-deleted rows are never surfaced. pharmacyID of zero
// searches all pharmacies.
func (s *PostgresStore) SearchProducts(ctx context.Context, pattern string, pharmacyID int, limit int) ([]types.InventoryFact, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var builder strings.Builder
	builder.WriteString(`
        SELECT name, brand, generic_name, strength, dosage_form, quantity, price, expiry_date
        FROM products
        WHERE deleted_at IS NULL
          AND (name ILIKE $1 OR brand ILIKE $1 OR generic_name ILIKE $1)`)
	args := []any{"%" + pattern + "%"}
	paramIndex := 2

	if pharmacyID > 0 {
		builder.WriteString(fmt.Sprintf(" AND pharmacy_id = $%d", paramIndex))
		args = append(args, pharmacyID)
		paramIndex++
	}

	builder.WriteString(fmt.Sprintf(" ORDER BY name LIMIT $%d", paramIndex))
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	var facts []types.InventoryFact
	for rows.Next() {
		var fact types.InventoryFact
		var expiry sql.NullTime
		if err := rows.Scan(&fact.Name, &fact.Brand, &fact.GenericName, &fact.Strength,
			&fact.DosageForm, &fact.Quantity, &fact.Price, &expiry); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		if expiry.Valid {
			fact.ExpiryDate = expiry.Time.Format("2006-01-02")
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product rows: %w", err)
	}
	return facts, nil
}
