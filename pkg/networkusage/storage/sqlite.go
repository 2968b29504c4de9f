package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/relay/pkg/networkusage"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver: "sqlite3" or "sqlite".
	// Default: "sqlite"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/network_usage.db",
		Driver:       DriverPureGo,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements networkusage.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

var _ networkusage.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens the database, applies pragmas and creates the
// schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverPureGo
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, networkusage.NewStorageError("sqlite", "open",
			fmt.Errorf("unsupported driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "networkusage.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, networkusage.NewStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open(config.Driver, dsn(config))
	if err != nil {
		return nil, networkusage.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

// dsn puts the busy timeout in the connection string so every pooled
// connection gets it, not only the one that ran the pragma.
func dsn(config *SQLiteConfig) string {
	ms := config.BusyTimeout.Milliseconds()
	if config.Driver == DriverCGO {
		return fmt.Sprintf("%s?_busy_timeout=%d", config.Path, ms)
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)", config.Path, ms)
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return networkusage.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return networkusage.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return networkusage.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return networkusage.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return networkusage.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store inserts entity and sets its ID.
func (s *SQLiteStorage) Store(ctx context.Context, entity *networkusage.Entity) error {
	d := entity.ConnectionDetails

	var policy any
	if len(entity.PolicyProto) > 0 {
		policy = entity.PolicyProto
	}

	res, err := s.db.ExecContext(ctx, insertEntity,
		d.Type.String(), d.Key.Value(), d.PackageName,
		entity.URL, entity.Status.String(), entity.DownloadSize, entity.UploadSize,
		entity.CreationTime.UnixMilli(), entity.FCRunID, policy,
	)
	if err != nil {
		return networkusage.NewStorageError("sqlite", "store", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return networkusage.NewStorageError("sqlite", "store", err)
	}
	entity.ID = id

	s.logger.Debug("network usage stored", "id", id, "type", d.Type.String(), "status", entity.Status.String())
	return nil
}

// Query retrieves entities matching q, newest first unless q asks
// otherwise.
func (s *SQLiteStorage) Query(ctx context.Context, q *networkusage.Query) ([]*networkusage.Entity, error) {
	if q == nil {
		q = &networkusage.Query{}
	}
	where, args := buildWhereClause(q)

	query := selectColumns
	if where != "" {
		query += " WHERE " + where
	}

	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY creation_time_ms %s, id %s", order, order)

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, networkusage.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	entities := []*networkusage.Entity{}
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, networkusage.NewStorageError("sqlite", "scan", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, networkusage.NewStorageError("sqlite", "query", err)
	}
	return entities, nil
}

// Count returns the number of entities matching q.
func (s *SQLiteStorage) Count(ctx context.Context, q *networkusage.Query) (int64, error) {
	if q == nil {
		q = &networkusage.Query{}
	}
	where, args := buildWhereClause(q)

	query := "SELECT COUNT(*) FROM network_usage"
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, networkusage.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// DeleteBefore removes entities created before t.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM network_usage WHERE creation_time_ms < ?", t.UnixMilli())
	if err != nil {
		return 0, networkusage.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, networkusage.NewStorageError("sqlite", "delete", err)
	}
	s.logger.Info("network usage deleted", "before", t, "count", n)
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return networkusage.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return networkusage.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func buildWhereClause(q *networkusage.Query) (string, []any) {
	var conditions []string
	var args []any

	if q.Since != nil {
		conditions = append(conditions, "creation_time_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.Until != nil {
		conditions = append(conditions, "creation_time_ms < ?")
		args = append(args, q.Until.UnixMilli())
	}
	if q.Type != nil {
		conditions = append(conditions, "connection_type = ?")
		args = append(args, q.Type.String())
	}
	if q.Status != 0 {
		conditions = append(conditions, "status = ?")
		args = append(args, q.Status.String())
	}
	if q.PackageName != "" {
		conditions = append(conditions, "package_name = ?")
		args = append(args, q.PackageName)
	}

	return strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*networkusage.Entity, error) {
	var (
		e                     networkusage.Entity
		typeName, key, status string
		creationMs            int64
		policy                []byte
	)
	err := rows.Scan(
		&e.ID, &typeName, &key, &e.ConnectionDetails.PackageName,
		&e.URL, &status, &e.DownloadSize, &e.UploadSize,
		&creationMs, &e.FCRunID, &policy,
	)
	if err != nil {
		return nil, err
	}

	ct, err := networkusage.ParseConnectionType(typeName)
	if err != nil {
		return nil, err
	}
	e.ConnectionDetails.Type = ct
	e.ConnectionDetails.Key = keyFor(ct, key)

	if e.Status, err = networkusage.ParseStatus(status); err != nil {
		return nil, err
	}
	e.CreationTime = time.UnixMilli(creationMs)
	if len(policy) > 0 {
		e.PolicyProto = policy
	}
	return &e, nil
}

func keyFor(ct networkusage.ConnectionType, value string) networkusage.ConnectionKey {
	switch ct {
	case networkusage.ConnectionTypeHTTP:
		return networkusage.HTTPKey(value)
	case networkusage.ConnectionTypePIR:
		return networkusage.PIRKey(value)
	case networkusage.ConnectionTypeFCTrainingStartQuery:
		return networkusage.FCTrainingStartQueryKey(value)
	case networkusage.ConnectionTypePD:
		return networkusage.PDKey(value)
	default:
		return networkusage.EmptyKey(ct)
	}
}
