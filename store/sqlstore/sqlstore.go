// Package sqlstore 是 core.RecommendDataStore 的关系型实现，支持 sqlite（modernc.org/sqlite）
// 与 postgres（pgx stdlib）两种方言。
//
// 所有过滤值都通过参数绑定传入；多语句写入在事务中执行，嵌套调用加入外层事务。
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/rushteam/roommatch/core"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect 是 SQL 方言。
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// querier 由 *sql.DB 与 *sql.Tx 共同实现。
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store 是关系型仓储。事务内的 Store 共享同一个 *sql.Tx。
type Store struct {
	db      *sql.DB
	q       querier
	tx      *sql.Tx
	dialect Dialect
	logger  zerolog.Logger
}

// Open 按方言打开数据库并执行未应用的迁移。
//
// sqlite：dsn 为 ":memory:"（测试）或数据目录，数据库文件为 {dir}/roommatch.db。
// postgres：dsn 为 pgx 连接串。
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(ctx, dsn)
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr != nil {
				db.Close()
				err = pingErr
			}
		}
	default:
		return nil, core.NewInvalidInput(core.ModuleStore, "sqlstore: unknown dialect "+string(dialect))
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "sqlstore: open database", err)
	}

	s := &Store{db: db, q: db, dialect: dialect, logger: log.Logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return s, nil
}

func openSQLite(ctx context.Context, dataDir string) (*sql.DB, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "roommatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// 单连接：避免 "database is locked"，也让 :memory: 数据库在连接间保持一致。
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// WithLogger 设置日志记录器。
func (s *Store) WithLogger(l zerolog.Logger) *Store {
	s.logger = l
	return s
}

func (s *Store) Name() string { return "sql:" + string(s.dialect) }

// Close 关闭数据库连接；事务内调用无效。
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// DB 返回底层连接池（用于迁移命令与测试）。
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) InTx(ctx context.Context, fn func(core.RecommendDataStore) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "sqlstore: begin transaction", err)
	}
	txStore := &Store{db: s.db, q: tx, tx: tx, dialect: s.dialect, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("sqlstore: rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError, "sqlstore: commit failed", err)
	}
	return nil
}

// rebind 把 ? 占位符改写成方言的占位符（postgres 为 $1, $2, ...）。
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// placeholders 返回 n 个以逗号分隔的 ?。
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// migrate 读取内嵌的迁移文件，按文件名顺序应用尚未执行的迁移。
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL DEFAULT 0
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	dir := "migrations/" + string(s.dialect)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.queryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		err = s.inTx(ctx, func(tx *Store) error {
			if _, err := tx.q.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("applying migration %d: %w", version, err)
			}
			if _, err := tx.exec(ctx, "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, toNanos(nowUTC())); err != nil {
				return fmt.Errorf("recording migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.logger.Debug().Int("version", version).Str("dialect", string(s.dialect)).Msg("sqlstore: migration applied")
	}
	return nil
}

// parseMigrationVersion 从 "0001_init.sql" 中解析版本号。
func parseMigrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename %q: expected NNN_name.sql", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %q: %w", name, err)
	}
	return v, nil
}
