package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"olist-ml/internal/dataset"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/snowflakedb/gosnowflake"
)

// SnowflakeConfig holds the connection settings of a Snowflake account.
type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
}

// DSN renders the settings as a gosnowflake data source name.
func (c SnowflakeConfig) DSN() (string, error) {
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Database:  c.Database,
		Schema:    c.Schema,
		Warehouse: c.Warehouse,
		Role:      c.Role,
	})
}

// URL renders the settings as a snowflake:// source URL for Open.
func (c SnowflakeConfig) URL() (string, error) {
	dsn, err := c.DSN()
	if err != nil {
		return "", err
	}
	return "snowflake://" + dsn, nil
}

// ParseURL splits a source URL of the form driver://dsn.
func ParseURL(url string) (driver, dsn string, err error) {
	if url == "" {
		return "", "", fmt.Errorf("source url is empty")
	}
	parts := strings.SplitN(url, "://", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("expecting driver://dsn, got %q", url)
	}
	driver, dsn = parts[0], parts[1]
	// pgx expects the full postgres URL as its DSN.
	if driver == "postgres" || driver == "postgresql" {
		return "pgx", url, nil
	}
	return driver, dsn, nil
}

// SQLSource runs queries through database/sql.
type SQLSource struct {
	db      *sql.DB
	driver  string
	ph      Placeholder
	metrics MetricsInterface
}

// Open connects to the database identified by url and verifies the
// connection. Supported drivers: snowflake, pgx (postgres://...) and any
// other database/sql driver registered by the binary.
func Open(ctx context.Context, url string) (*SQLSource, error) {
	driver, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	registered := false
	for _, d := range sql.Drivers() {
		if d == driver {
			registered = true
			break
		}
	}
	if !registered {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	log.Info().Str("driver", driver).Msg("Connected to warehouse")
	return NewSQLSource(db, driver), nil
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	ph := Question
	if driver == "pgx" || driver == "postgres" {
		ph = Dollar
	}
	return &SQLSource{db: db, driver: driver, ph: ph}
}

// WithMetrics sets the metrics sink and returns s.
func (s *SQLSource) WithMetrics(m MetricsInterface) *SQLSource {
	s.metrics = m
	return s
}

// Query runs q and reads the full result.
func (s *SQLSource) Query(ctx context.Context, q Query) (*dataset.Dataset, error) {
	stmt, args, err := q.Build(s.ph)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := s.query(ctx, stmt, args)
	if s.metrics != nil {
		s.metrics.QueryDurationObserve(time.Since(start).Seconds())
		if err != nil {
			s.metrics.QueryErrorsInc()
		}
	}
	if err != nil {
		log.Error().Err(err).Str("driver", s.driver).Str("query", stmt).Msg("Warehouse query failed")
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	log.Debug().Str("query", stmt).Int("rows", ds.NumRows()).Int("columns", ds.NumCols()).
		Dur("elapsed", time.Since(start)).Msg("Warehouse query completed")
	return ds, nil
}

func (s *SQLSource) query(ctx context.Context, stmt string, args []any) (*dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(types))
	kinds := make([]dataset.Kind, len(types))
	known := make([]bool, len(types))
	for j, ct := range types {
		names[j] = ct.Name()
		kinds[j], known[j] = kindOf(ct.DatabaseTypeName())
	}

	raw := make([][]any, len(types))
	cells := make([]any, len(types))
	ptrs := make([]any, len(types))
	for j := range cells {
		ptrs[j] = &cells[j]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for j, v := range cells {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			raw[j] = append(raw[j], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for j := range raw {
		if raw[j] == nil {
			raw[j] = []any{}
		}
	}
	return assemble(names, kinds, known, raw)
}

// Close releases the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
