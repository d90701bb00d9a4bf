package fixture

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot captures the current contents of the store's tables as a fixture
// named name. When the store was opened without a table list every base
// table of the database is captured.
func (s *SQLStore) Snapshot(ctx context.Context, name string) (*Fixture, error) {
	tables := s.tables
	if len(tables) == 0 {
		var err error
		tables, err = s.tableNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
	}

	f := &Fixture{Name: name}
	for _, table := range tables {
		records, err := s.readTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", table, err)
		}
		f.Collections = append(f.Collections, Collection{Name: table, Records: records})
	}
	return f, nil
}

// tableNames retrieves all base table names from the database
func (s *SQLStore) tableNames(ctx context.Context) ([]string, error) {
	var schema string
	switch s.dialect {
	case "postgres":
		schema = "'public'"
	case "mysql":
		schema = "DATABASE()"
	case "sqlserver":
		schema = "'dbo'"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", s.dialect)
	}

	query := `
		SELECT LOWER(table_name)
		FROM information_schema.tables
		WHERE table_schema = ` + schema + `
		AND table_type = 'BASE TABLE'
		ORDER BY 1
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// readTable reads every row ordered by the first column
func (s *SQLStore) readTable(ctx context.Context, table string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.quote(table)+" ORDER BY 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// scanRecords converts result rows into JSON-compatible records
func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, column := range columns {
			record[column] = columnValue(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// columnValue turns driver values into JSON values. Text holding a JSON
// object or array is decoded so nested records survive a Load/Snapshot round
// trip.
func columnValue(v interface{}) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	text := string(b)
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded interface{}
		if err := json.Unmarshal(b, &decoded); err == nil {
			return decoded
		}
	}
	return text
}
