package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var (
	ErrUnsafeStatement = errors.New("statement refused by read-only guard")
	ErrPoolTimeout     = errors.New("timed out acquiring a store connection")
	ErrUnavailable     = errors.New("store unavailable")
	ErrQuery           = errors.New("query failed")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultMaxOpenConns   = 10
	defaultAcquireTimeout = 5 * time.Second
	defaultQueryTimeout   = 30 * time.Second
	defaultMaxRows        = 500
)

type Config struct {
	Driver         string        `envconfig:"DRIVER" split_words:"true" default:"postgres"`
	DSN            string        `envconfig:"DSN" split_words:"true"`
	MaxOpenConns   int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	MaxIdleConns   int           `envconfig:"MAX_IDLE_CONNS" split_words:"true" default:"5"`
	AcquireTimeout time.Duration `envconfig:"ACQUIRE_TIMEOUT" split_words:"true" default:"5s"`
	QueryTimeout   time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"30s"`
	MaxRows        int           `envconfig:"MAX_ROWS" split_words:"true" default:"500"`
	SchemaHint     string        `envconfig:"SCHEMA_HINT" split_words:"true"`
}

// Option customizes Store.
type Option func(*Store)

func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.acquireTimeout = d
		}
	}
}

func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

func WithMaxRows(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

func WithSchemaHint(hint string) Option {
	return func(s *Store) {
		s.schemaHint = strings.TrimSpace(hint)
	}
}

// Store is the read-only, row-limited access path to the structured data.
// The bounded pool is shared by every request using the same Store.
type Store struct {
	db             *bun.DB
	acquireTimeout time.Duration
	queryTimeout   time.Duration
	maxRows        int
	schemaHint     string

	schemaMu sync.Mutex
	schema   string
}

var _ contractx.DataStore = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("store dsn is required")
	}

	var db *bun.DB
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	}

	return New(db,
		WithAcquireTimeout(cfg.AcquireTimeout),
		WithQueryTimeout(cfg.QueryTimeout),
		WithMaxRows(cfg.MaxRows),
		WithSchemaHint(cfg.SchemaHint),
	)
}

// New wraps an existing bun database. Pool limits are the caller's.
func New(db *bun.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}

	s := &Store{
		db:             db,
		acquireTimeout: defaultAcquireTimeout,
		queryTimeout:   defaultQueryTimeout,
		maxRows:        defaultMaxRows,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	db.AddQueryHook(queryLogHook{})
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query runs one guarded statement inside a read-only transaction and returns
// at most maxRows rows (the store-wide cap applies when maxRows is <= 0 or larger).
func (s *Store) Query(ctx context.Context, statement string, maxRows int) (contractx.QueryResult, error) {
	stmt, err := Guard(statement)
	if err != nil {
		return contractx.QueryResult{}, err
	}
	if maxRows <= 0 || maxRows > s.maxRows {
		maxRows = s.maxRows
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return contractx.QueryResult{}, err
	}
	defer conn.Close()

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := conn.BeginTx(queryCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: begin read-only tx: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(queryCtx, stmt)
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: read columns: %v", ErrQuery, err)
	}

	out := contractx.QueryResult{Columns: cols}
	for rows.Next() {
		if len(out.Rows) == maxRows {
			out.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return contractx.QueryResult{}, fmt.Errorf("%w: scan row: %v", ErrQuery, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// acquire takes a pooled connection, failing fast once the acquisition timeout passes.
func (s *Store) acquire(ctx context.Context) (bun.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		if ctx.Err() != nil {
			return bun.Conn{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return bun.Conn{}, fmt.Errorf("%w after %s", ErrPoolTimeout, s.acquireTimeout)
		}
		return bun.Conn{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

type columnInfo struct {
	TableName  string `bun:"table_name"`
	ColumnName string `bun:"column_name"`
	DataType   string `bun:"data_type"`
}

const (
	pgSchemaQuery = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

	sqliteSchemaQuery = `SELECT m.name AS table_name, p.name AS column_name, p.type AS data_type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`
)

// Schema describes tables and columns for query generation. A successful
// introspection is cached; on failure the configured hint is returned. Pool
// exhaustion and cancellation are reported as errors, hint or not.
func (s *Store) Schema(ctx context.Context) (string, error) {
	s.schemaMu.Lock()
	cached := s.schema
	s.schemaMu.Unlock()
	if cached != "" {
		return cached, nil
	}

	// Introspection waits on the pool like any query; the lock is not held meanwhile.
	conn, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := pgSchemaQuery
	if s.db.Dialect().Name() == dialect.SQLite {
		query = sqliteSchemaQuery
	}

	var cols []columnInfo
	if err := conn.NewRaw(query).Scan(queryCtx, &cols); err != nil || len(cols) == 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if s.schemaHint != "" {
			return s.schemaHint, nil
		}
		if err == nil {
			err = errors.New("no tables found")
		}
		return "", fmt.Errorf("%w: introspect schema: %v", ErrUnavailable, err)
	}

	rendered := renderSchema(cols, s.schemaHint)
	s.schemaMu.Lock()
	s.schema = rendered
	s.schemaMu.Unlock()
	return rendered, nil
}

func renderSchema(cols []columnInfo, hint string) string {
	var b strings.Builder
	current := ""
	for _, c := range cols {
		if c.TableName != current {
			if current != "" {
				b.WriteString(")\n")
			}
			current = c.TableName
			fmt.Fprintf(&b, "%s(", c.TableName)
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", c.ColumnName, strings.ToLower(c.DataType))
	}
	if current != "" {
		b.WriteString(")")
	}
	if hint != "" {
		b.WriteString("\n\n")
		b.WriteString(hint)
	}
	return b.String()
}

type queryLogHook struct{}

func (queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	logger := zerolog.Ctx(ctx)
	ev := logger.Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		ev = logger.Warn().Err(event.Err)
	}
	ev.Str("operation", event.Operation()).
		Dur("duration", time.Since(event.StartTime)).
		Msg("store query")
}
