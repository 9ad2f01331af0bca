package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaProbe checks which columns a table actually has. The readiness
// guard uses it to refuse media intake on a partially migrated database.
type SchemaProbe struct {
	pool *pgxpool.Pool
}

func NewSchemaProbe(pool *pgxpool.Pool) *SchemaProbe {
	return &SchemaProbe{pool: pool}
}

func (p *SchemaProbe) TableColumns(ctx context.Context, table string) (map[string]bool, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	const query = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
`

	rows, err := p.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("probe table %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("probe table %s: %w", table, err)
	}

	return columns, nil
}
