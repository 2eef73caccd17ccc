package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver - no CGO required
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name          string
	timestamp     string
	dollarParams  bool
	inlineIndexes bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", timestamp: "DATETIME"}
	postgresDialect = dialect{name: "postgres", timestamp: "TIMESTAMPTZ", dollarParams: true}
	mysqlDialect    = dialect{name: "mysql", timestamp: "DATETIME(6)", inlineIndexes: true}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite", "sqlite3", "":
		return sqliteDialect, nil
	case "postgres", "postgresql":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported store driver %q", driver)
}

// rebind rewrites ? placeholders as $n for drivers that need it.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore is the local relational store backing all repositories.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLStore opens the database, applies pool settings and creates tables.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.name, err)
	}

	if d.name == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite only supports 1 writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLStore] Initialized %s store", d.name)
	return s, nil
}

// NewSQLStore wraps an existing connection without migrating it.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: d}, nil
}

type tableDef struct {
	name    string
	columns string
	indexes [][2]string // name, column list
}

func (s *SQLStore) tables() []tableDef {
	ts := s.dialect.timestamp
	return []tableDef{
		{
			name: "products",
			columns: `
				id VARCHAR(64) PRIMARY KEY,
				sku VARCHAR(191) NOT NULL UNIQUE,
				name TEXT NOT NULL,
				price VARCHAR(64) NOT NULL,
				stock_level INTEGER NOT NULL,
				barcode VARCHAR(191) NOT NULL,
				barcode_2 VARCHAR(191) NOT NULL,
				barcode_3 VARCHAR(191) NOT NULL,
				last_synced_at ` + ts + ` NULL,
				created_at ` + ts + ` NOT NULL,
				updated_at ` + ts + ` NOT NULL`,
			indexes: [][2]string{
				{"idx_products_barcode", "barcode"},
				{"idx_products_barcode_2", "barcode_2"},
				{"idx_products_barcode_3", "barcode_3"},
			},
		},
		{
			name: "stock_deltas",
			columns: `
				id VARCHAR(64) PRIMARY KEY,
				item_key VARCHAR(191) NOT NULL,
				quantity_change INTEGER NOT NULL,
				reason VARCHAR(16) NOT NULL,
				source_id VARCHAR(191) NOT NULL,
				state VARCHAR(16) NOT NULL,
				previous_level INTEGER NULL,
				new_level INTEGER NULL,
				error_type VARCHAR(64) NOT NULL,
				error_message TEXT NULL,
				submitted_at ` + ts + ` NULL,
				created_at ` + ts + ` NOT NULL,
				updated_at ` + ts + ` NOT NULL`,
			indexes: [][2]string{
				{"idx_stock_deltas_state", "state"},
				{"idx_stock_deltas_item_key", "item_key"},
			},
		},
		{
			name: "stock_movements",
			columns: `
				id VARCHAR(64) PRIMARY KEY,
				product_id VARCHAR(64) NOT NULL,
				from_location VARCHAR(191) NOT NULL,
				to_location VARCHAR(191) NOT NULL,
				quantity INTEGER NOT NULL,
				type VARCHAR(32) NOT NULL,
				user_id VARCHAR(64) NOT NULL,
				moved_at ` + ts + ` NOT NULL`,
			indexes: [][2]string{
				{"idx_stock_movements_product", "product_id"},
			},
		},
		{
			name: "pending_product_updates",
			columns: `
				id VARCHAR(64) PRIMARY KEY,
				product_id VARCHAR(64) NOT NULL,
				changes_detected TEXT NOT NULL,
				status VARCHAR(16) NOT NULL,
				reviewer_id VARCHAR(64) NOT NULL,
				reviewed_at ` + ts + ` NULL,
				accepted_at ` + ts + ` NULL,
				created_at ` + ts + ` NOT NULL`,
			indexes: [][2]string{
				{"idx_pending_updates_product_status", "product_id, status"},
				{"idx_pending_updates_status", "status"},
			},
		},
	}
}

// Migrate creates all tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, t := range s.tables() {
		cols := t.columns
		if s.dialect.inlineIndexes {
			for _, idx := range t.indexes {
				cols += fmt.Sprintf(",\n\t\t\t\tINDEX %s (%s)", idx[0], idx[1])
			}
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n\t\t\t)", t.name, cols)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.name, err)
		}
		if s.dialect.inlineIndexes {
			continue
		}
		for _, idx := range t.indexes {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx[0], t.name, idx[1])
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to index %s: %w", t.name, err)
			}
		}
	}
	return nil
}

// Products returns the product repository.
func (s *SQLStore) Products() *SQLProductRepository {
	return &SQLProductRepository{store: s}
}

// Deltas returns the stock delta repository.
func (s *SQLStore) Deltas() *SQLDeltaRepository {
	return &SQLDeltaRepository{store: s}
}

// Movements returns the stock movement repository.
func (s *SQLStore) Movements() *SQLMovementRepository {
	return &SQLMovementRepository{store: s}
}

// PendingUpdates returns the pending product update repository.
func (s *SQLStore) PendingUpdates() *SQLPendingUpdateRepository {
	return &SQLPendingUpdateRepository{store: s}
}

// Driver returns the dialect name.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// Ping verifies the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetStats returns row counts and pool statistics.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	for _, table := range []string{"products", "stock_deltas", "stock_movements", "pending_product_updates"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, err
		}
		stats[table] = count
	}

	var failed int64
	q := s.dialect.rebind("SELECT COUNT(*) FROM stock_deltas WHERE state = ?")
	if err := s.db.QueryRowContext(ctx, q, "failed").Scan(&failed); err == nil {
		stats["failed_deltas"] = failed
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	stats["driver"] = s.dialect.name

	return stats, nil
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
