// Package datasource connects the question agent to Microsoft SQL Server.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

// ErrNotConfigured is returned when the connection settings are incomplete.
var ErrNotConfigured = errors.New("SQL Server configuration is incomplete")

const schemaQuery = `SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE (@schema = '' OR TABLE_SCHEMA = @schema)
ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`

// Config holds SQL Server connection settings.
type Config struct {
	Server       string
	Port         string
	Database     string
	User         string
	Password     string
	Encrypt      bool
	SchemaFilter string
}

// SQLServer is a data source backed by a SQL Server database. The schema is
// loaded in the background after the connection is opened.
type SQLServer struct {
	db     *sql.DB
	cfg    Config
	logger *logger.Logger

	ready   chan struct{}
	mu      sync.RWMutex
	tables  []TableSchema
	loadErr error
}

// NewSQLServer opens the database and starts loading its schema.
func NewSQLServer(cfg Config, log *logger.Logger) (*SQLServer, error) {
	if cfg.Server == "" || cfg.Database == "" {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = logger.Global()
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL Server connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLServer{
		db:     db,
		cfg:    cfg,
		logger: log.Named("datasource"),
		ready:  make(chan struct{}),
	}
	go s.loadSchema(context.Background())

	return s, nil
}

func buildConnectionString(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "1433"
	}
	connStr := fmt.Sprintf("server=%s;port=%s;database=%s", cfg.Server, port, cfg.Database)

	if cfg.User != "" {
		connStr += fmt.Sprintf(";user id=%s;password=%s", cfg.User, cfg.Password)
	} else {
		connStr += ";trusted_connection=true"
	}

	if cfg.Encrypt {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	} else {
		connStr += ";encrypt=false"
	}

	return connStr
}

func (s *SQLServer) loadSchema(ctx context.Context) {
	defer close(s.ready)

	tables, err := s.queryTables(ctx)

	s.mu.Lock()
	s.tables, s.loadErr = tables, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to load schema", zap.Error(err))
		return
	}
	s.logger.Info("schema loaded", zap.Int("tables", len(tables)), zap.String("database", s.cfg.Database))
}

func (s *SQLServer) queryTables(ctx context.Context) ([]TableSchema, error) {
	rows, err := s.db.QueryContext(ctx, schemaQuery, sql.Named("schema", s.cfg.SchemaFilter))
	if err != nil {
		return nil, fmt.Errorf("failed to query schema: %w", err)
	}
	defer rows.Close()

	var cols []columnRow
	for rows.Next() {
		var c columnRow
		if err := rows.Scan(&c.schema, &c.table, &c.column, &c.dataType, &c.nullable); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return groupColumns(cols), nil
}

// AwaitReady blocks until the schema is loaded or ctx is done.
func (s *SQLServer) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the schema loaded successfully.
func (s *SQLServer) Ready() bool {
	select {
	case <-s.ready:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.loadErr == nil
	default:
		return false
	}
}

// Tables returns the loaded tables. It is empty until the schema is loaded.
func (s *SQLServer) Tables() []TableSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables
}

// ContextPrompt describes the tables with the given IDs, or every table
// when ids is empty.
func (s *SQLServer) ContextPrompt(ids []string) string {
	tables := s.Tables()
	if len(ids) == 0 {
		return buildContextPrompt(tables)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	selected := make([]TableSchema, 0, len(ids))
	for _, t := range tables {
		if wanted[t.UniqueID()] {
			selected = append(selected, t)
		}
	}
	return buildContextPrompt(selected)
}

// QuestionPrompt wraps a user question with answering instructions.
func (s *SQLServer) QuestionPrompt(question string) string {
	return buildQuestionPrompt(question)
}

// RunQuery executes query and returns its rows in column order.
func (s *SQLServer) RunQuery(ctx context.Context, query string) (model.RowSet, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result model.RowSet
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, model.NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// TryFixAndRun rewrites query into T-SQL and runs it when the rewrite
// changed anything. Execution failures are reported in the Answer.
func (s *SQLServer) TryFixAndRun(ctx context.Context, query string) (*model.Answer, error) {
	fixed, changed := RewriteForSQLServer(query)
	if !changed {
		return &model.Answer{Query: query}, nil
	}

	s.logger.Debug("running rewritten query", zap.String("query", fixed))
	rows, err := s.RunQuery(ctx, fixed)
	if errors.Is(err, ErrNotConfigured) {
		return nil, err
	}
	if err != nil {
		return &model.Answer{Query: fixed, Err: err.Error()}, nil
	}
	return &model.Answer{Query: fixed, HasResult: true, Rows: rows}, nil
}

// Ping checks the connection.
func (s *SQLServer) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLServer) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
