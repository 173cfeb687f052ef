// Package history 把每次运行的数据集统计持久化到 SQL（sqlite 或 mysql）。
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/John-Robertt/EMSC/internal/domain"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// evaluated_at 存 Unix 毫秒，避免两种方言在时间类型上的差异。
const schema = `CREATE TABLE IF NOT EXISTS emsc_runs (
	run_id         VARCHAR(64)  NOT NULL,
	dataset        VARCHAR(128) NOT NULL,
	evaluated_at   BIGINT       NOT NULL,
	window_seconds BIGINT       NOT NULL,
	recent         INTEGER      NOT NULL,
	matching       INTEGER      NOT NULL,
	non_matching   INTEGER      NOT NULL,
	status         VARCHAR(32)  NOT NULL,
	error_code     VARCHAR(64)  NOT NULL,
	source_file    VARCHAR(1024) NOT NULL,
	PRIMARY KEY (run_id, dataset)
)`

// Record 是 emsc_runs 的一行。
type Record struct {
	RunID       string        `json:"run_id"`
	Dataset     string        `json:"dataset"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	Window      time.Duration `json:"window"`
	Recent      int           `json:"recent"`
	Matching    int           `json:"matching"`
	NonMatching int           `json:"non_matching"`
	Status      string        `json:"status"`
	ErrorCode   string        `json:"error_code,omitempty"`
	SourceFile  string        `json:"source_file,omitempty"`
}

type Store struct {
	db     *sql.DB
	driver string
}

// Open 打开数据库、校验连接并确保表存在。
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		var err error
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("不支持的 history driver：%q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 %s 失败：%w", driver, err)
	}
	if driver == DriverSQLite {
		// :memory: 每个连接是独立数据库；单连接同时避免 SQLITE_BUSY。
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接 %s 失败：%w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建 emsc_runs 失败：%w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

// normalizeMySQLDSN 校验 DSN 并固定 UTC，保证跨主机一致。
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn 无效：%w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save 在一个事务内为每个数据集写入一行。
func (s *Store) Save(ctx context.Context, rr domain.RunReport) error {
	if rr.RunID == "" {
		return errors.New("run_id 为空")
	}
	if len(rr.Items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败：%w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO emsc_runs
		(run_id, dataset, evaluated_at, window_seconds, recent, matching, non_matching, status, error_code, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备语句失败：%w", err)
	}
	defer stmt.Close()

	// 运行级失败（例如没有找到文件）不会走到统计阶段，用结束时间排序。
	evaluated := rr.EvaluatedAt
	if evaluated.IsZero() {
		evaluated = rr.FinishedAt
	}

	for _, it := range rr.Items {
		var c domain.DatasetCounts
		if it.Counts != nil {
			c = *it.Counts
		}
		src := ""
		if it.File != nil {
			src = it.File.Src
		}
		if _, err := stmt.ExecContext(ctx,
			rr.RunID, it.Dataset, evaluated.UnixMilli(), int64(rr.Window/time.Second),
			c.Recent, c.Matching, c.NonMatching,
			it.Status, it.ErrorCode, src,
		); err != nil {
			return fmt.Errorf("写入 %s 失败：%w", it.Dataset, err)
		}
	}
	return tx.Commit()
}

// Recent 按评估时间倒序返回某数据集最近 limit 条记录。
func (s *Store) Recent(ctx context.Context, dataset string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, dataset, evaluated_at, window_seconds, recent, matching, non_matching, status, error_code, source_file
		FROM emsc_runs WHERE dataset = ? ORDER BY evaluated_at DESC, run_id DESC LIMIT ?`, dataset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			evalMs int64
			winSec int64
		)
		if err := rows.Scan(&r.RunID, &r.Dataset, &evalMs, &winSec,
			&r.Recent, &r.Matching, &r.NonMatching, &r.Status, &r.ErrorCode, &r.SourceFile); err != nil {
			return nil, err
		}
		r.EvaluatedAt = time.UnixMilli(evalMs).UTC()
		r.Window = time.Duration(winSec) * time.Second
		out = append(out, r)
	}
	return out, rows.Err()
}
