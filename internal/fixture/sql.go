package fixture

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // for sqlserver
	_ "github.com/go-sql-driver/mysql"   // for mysql
	_ "github.com/lib/pq"                // for postgres
)

// DBConfig holds database connection configuration
type DBConfig struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN builds the driver specific connection string
func (c DBConfig) DSN() (string, error) {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	case "sqlserver":
		return fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s",
			c.Host, c.Port, c.User, c.Password, c.Database), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

// SQLStore seeds a relational database. Each collection maps to a table of
// the same name and each record key to a column.
type SQLStore struct {
	db      *sql.DB
	dialect string
	tables  []string
}

// OpenSQLStore connects to the database described by config. tables lists
// every table Clear must empty.
func OpenSQLStore(ctx context.Context, config DBConfig, tables []string) (*SQLStore, error) {
	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Type, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewSQLStore(db, config.Type, tables), nil
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect string, tables []string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, tables: tables}
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Load implements the Store interface. All tables are emptied and reseeded
// in one transaction so the SUT never observes a partial fixture. Configured
// tables are seeded in their listed order, parents first, and emptied in
// reverse.
func (s *SQLStore) Load(ctx context.Context, f *Fixture) error {
	tables := s.tables
	for _, c := range f.Collections {
		tables = appendUnique(tables, c.Name)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.clear(ctx, tx, tables); err != nil {
			return err
		}
		for _, table := range tables {
			for i, record := range f.Collection(table) {
				query, args, err := s.insert(table, record)
				if err != nil {
					return fmt.Errorf("failed to insert record %d into %s: %w", i, table, err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("failed to insert record %d into %s: %w", i, table, err)
				}
			}
		}
		return nil
	})
}

// Clear implements the Store interface
func (s *SQLStore) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.clear(ctx, tx, s.tables)
	})
}

// clear empties tables children first
func (s *SQLStore) clear(ctx context.Context, tx *sql.Tx, tables []string) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.quote(tables[i])); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", tables[i], err)
		}
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insert builds a parameterised INSERT with columns in sorted order. Nested
// objects and arrays are stored as JSON text.
func (s *SQLStore) insert(table string, record Record) (string, []interface{}, error) {
	if len(record) == 0 {
		return "", nil, fmt.Errorf("record has no fields")
	}

	columns := make([]string, 0, len(record))
	for column := range record {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, column := range columns {
		quoted[i] = s.quote(column)
		placeholders[i] = s.placeholder(i + 1)

		value := record[column]
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			data, err := json.Marshal(value)
			if err != nil {
				return "", nil, err
			}
			value = string(data)
		}
		args[i] = value
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

func (s *SQLStore) placeholder(n int) string {
	switch s.dialect {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func (s *SQLStore) quote(identifier string) string {
	switch s.dialect {
	case "mysql":
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	case "sqlserver":
		return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(append([]string(nil), list...), item)
}
