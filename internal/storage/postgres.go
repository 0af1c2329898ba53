package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage PostgreSQL 存储实现
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage 创建 PostgreSQL 存储
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 连接配置失败: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Init 初始化数据库表
func (s *PostgresStorage) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bindings (
			qq BIGINT PRIMARY KEY,
			mc TEXT,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			ban BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	if err != nil {
		return fmt.Errorf("创建 bindings 表失败: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// EnsureAdmins 将管理员列表写入 is_admin 标记
func (s *PostgresStorage) EnsureAdmins(ctx context.Context, admins []int64) error {
	for _, qq := range admins {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO bindings (qq, is_admin) VALUES ($1, TRUE)
			ON CONFLICT(qq) DO UPDATE SET is_admin = TRUE
		`, qq); err != nil {
			return fmt.Errorf("设置管理员 %d 失败: %w", qq, err)
		}
	}
	return nil
}

// AttemptBind 在单个事务内完成封禁/重复检查并写入绑定
func (s *PostgresStorage) AttemptBind(ctx context.Context, qq int64, name string) (BindOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback(ctx)

	var banned bool
	err = tx.QueryRow(ctx, `SELECT ban FROM bindings WHERE qq = $1`, qq).Scan(&banned)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("查询封禁状态失败: %w", err)
	}
	if err == nil && banned {
		return BindBannedQQ, nil
	}
	hasRow := err == nil

	err = tx.QueryRow(ctx, `SELECT ban FROM bindings WHERE mc = $1`, name).Scan(&banned)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("查询封禁状态失败: %w", err)
	}
	nameTaken := err == nil
	if nameTaken && banned {
		return BindBannedName, nil
	}

	if hasRow {
		var mc *string
		if err := tx.QueryRow(ctx, `SELECT mc FROM bindings WHERE qq = $1`, qq).Scan(&mc); err != nil {
			return 0, fmt.Errorf("查询已有绑定失败: %w", err)
		}
		if mc != nil && *mc != "" {
			return BindAlreadyBound, nil
		}
	}

	if nameTaken {
		return BindNameTaken, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bindings (qq, mc) VALUES ($1, $2)
		ON CONFLICT(qq) DO UPDATE SET mc = excluded.mc
	`, qq, name); err != nil {
		return 0, fmt.Errorf("写入绑定失败: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return BindOK, nil
}

// ForceBind 管理员强制绑定，跳过封禁与重复检查
func (s *PostgresStorage) ForceBind(ctx context.Context, qq int64, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bindings (qq, mc) VALUES ($1, $2)
		ON CONFLICT(qq) DO UPDATE SET mc = excluded.mc
	`, qq, name)
	if err != nil {
		return fmt.Errorf("强制绑定失败: %w", err)
	}
	return nil
}

// RemoveBinding 按任一键清除绑定，返回是否有绑定被清除
// 管理员行只清空 mc，保留 is_admin 标记
func (s *PostgresStorage) RemoveBinding(ctx context.Context, qq int64, name string) (bool, error) {
	var cond string
	var arg any

	switch {
	case qq != 0:
		cond, arg = "qq = $1", qq
	case name != "":
		cond, arg = "mc = $1", name
	default:
		return false, ErrNoKey
	}

	var total int64
	tag, err := s.pool.Exec(ctx,
		`UPDATE bindings SET mc = NULL WHERE `+cond+` AND is_admin AND mc IS NOT NULL`, arg)
	if err != nil {
		return false, fmt.Errorf("清除绑定失败: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `DELETE FROM bindings WHERE `+cond+` AND NOT is_admin`, arg)
	if err != nil {
		return false, fmt.Errorf("删除绑定失败: %w", err)
	}
	total += tag.RowsAffected()

	return total > 0, nil
}

// Ban 将匹配记录标记为封禁
func (s *PostgresStorage) Ban(ctx context.Context, qq int64, name string) (bool, error) {
	if qq == 0 && name == "" {
		return false, ErrNoKey
	}

	var total int64
	if qq != 0 {
		tag, err := s.pool.Exec(ctx, `UPDATE bindings SET ban = TRUE WHERE qq = $1`, qq)
		if err != nil {
			return false, fmt.Errorf("封禁失败: %w", err)
		}
		total += tag.RowsAffected()
	}
	if name != "" {
		tag, err := s.pool.Exec(ctx, `UPDATE bindings SET ban = TRUE WHERE mc = $1`, name)
		if err != nil {
			return false, fmt.Errorf("封禁失败: %w", err)
		}
		total += tag.RowsAffected()
	}
	return total > 0, nil
}

// CountMatching 按任一键统计记录数
func (s *PostgresStorage) CountMatching(ctx context.Context, qq int64, name string) (int, error) {
	var count int
	var err error

	switch {
	case qq != 0:
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bindings WHERE qq = $1`, qq).Scan(&count)
	case name != "":
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bindings WHERE mc = $1`, name).Scan(&count)
	default:
		return 0, ErrNoKey
	}
	if err != nil {
		return 0, fmt.Errorf("统计绑定失败: %w", err)
	}
	return count, nil
}

// LookupUsername 查询 qq 绑定的用户名
func (s *PostgresStorage) LookupUsername(ctx context.Context, qq int64) (string, bool, error) {
	var mc *string
	err := s.pool.QueryRow(ctx, `SELECT mc FROM bindings WHERE qq = $1`, qq).Scan(&mc)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询绑定用户名失败: %w", err)
	}
	if mc == nil || *mc == "" {
		return "", false, nil
	}
	return *mc, true, nil
}

// IsBanned 任一匹配记录被封禁即返回 true
func (s *PostgresStorage) IsBanned(ctx context.Context, qq int64, name string) (bool, error) {
	if qq == 0 && name == "" {
		return false, ErrNoKey
	}

	if qq != 0 {
		var banned bool
		err := s.pool.QueryRow(ctx, `SELECT ban FROM bindings WHERE qq = $1`, qq).Scan(&banned)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("查询封禁状态失败: %w", err)
		}
		if err == nil && banned {
			return true, nil
		}
	}
	if name != "" {
		var banned bool
		err := s.pool.QueryRow(ctx, `SELECT ban FROM bindings WHERE mc = $1`, name).Scan(&banned)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("查询封禁状态失败: %w", err)
		}
		if err == nil && banned {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin 查询 is_admin 标记
func (s *PostgresStorage) IsAdmin(ctx context.Context, qq int64) (bool, error) {
	var isAdmin bool
	err := s.pool.QueryRow(ctx, `SELECT is_admin FROM bindings WHERE qq = $1`, qq).Scan(&isAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询管理员标记失败: %w", err)
	}
	return isAdmin, nil
}
