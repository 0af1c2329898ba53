package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage SQLite 存储实现
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage 创建 SQLite 存储
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 配置
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteStorage{db: db}, nil
}

// Init 初始化数据库表
func (s *SQLiteStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bindings (
			qq INTEGER PRIMARY KEY NOT NULL,
			mc TEXT,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			ban BOOLEAN NOT NULL DEFAULT FALSE
		)
	`); err != nil {
		return fmt.Errorf("创建 bindings 表失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// EnsureAdmins 将管理员列表写入 is_admin 标记
// 使用 upsert 而不是 INSERT OR REPLACE，避免重启时清掉管理员自己的绑定
func (s *SQLiteStorage) EnsureAdmins(ctx context.Context, admins []int64) error {
	for _, qq := range admins {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO bindings (qq, is_admin) VALUES (?, TRUE)
			ON CONFLICT(qq) DO UPDATE SET is_admin = TRUE
		`, qq); err != nil {
			return fmt.Errorf("设置管理员 %d 失败: %w", qq, err)
		}
	}
	return nil
}

// AttemptBind 在单个事务内完成封禁/重复检查并写入绑定
func (s *SQLiteStorage) AttemptBind(ctx context.Context, qq int64, name string) (BindOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var banned bool
	err = tx.QueryRowContext(ctx, `SELECT ban FROM bindings WHERE qq = ?`, qq).Scan(&banned)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("查询封禁状态失败: %w", err)
	}
	if err == nil && banned {
		return BindBannedQQ, nil
	}
	hasRow := err == nil

	err = tx.QueryRowContext(ctx, `SELECT ban FROM bindings WHERE mc = ?`, name).Scan(&banned)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("查询封禁状态失败: %w", err)
	}
	nameTaken := err == nil
	if nameTaken && banned {
		return BindBannedName, nil
	}

	// 管理员行的 mc 为 NULL，不算已有绑定
	if hasRow {
		var mc sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT mc FROM bindings WHERE qq = ?`, qq).Scan(&mc); err != nil {
			return 0, fmt.Errorf("查询已有绑定失败: %w", err)
		}
		if mc.Valid && mc.String != "" {
			return BindAlreadyBound, nil
		}
	}

	if nameTaken {
		return BindNameTaken, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bindings (qq, mc) VALUES (?, ?)
		ON CONFLICT(qq) DO UPDATE SET mc = excluded.mc
	`, qq, name); err != nil {
		return 0, fmt.Errorf("写入绑定失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return BindOK, nil
}

// ForceBind 管理员强制绑定，跳过封禁与重复检查
func (s *SQLiteStorage) ForceBind(ctx context.Context, qq int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (qq, mc) VALUES (?, ?)
		ON CONFLICT(qq) DO UPDATE SET mc = excluded.mc
	`, qq, name)
	if err != nil {
		return fmt.Errorf("强制绑定失败: %w", err)
	}
	return nil
}

// RemoveBinding 按任一键清除绑定，返回是否有绑定被清除
// 管理员行只清空 mc，保留 is_admin 标记
func (s *SQLiteStorage) RemoveBinding(ctx context.Context, qq int64, name string) (bool, error) {
	var cond string
	var arg any

	switch {
	case qq != 0:
		cond, arg = "qq = ?", qq
	case name != "":
		cond, arg = "mc = ?", name
	default:
		return false, ErrNoKey
	}

	var total int64
	result, err := s.db.ExecContext(ctx,
		`UPDATE bindings SET mc = NULL WHERE `+cond+` AND is_admin AND mc IS NOT NULL`, arg)
	if err != nil {
		return false, fmt.Errorf("清除绑定失败: %w", err)
	}
	n, _ := result.RowsAffected()
	total += n

	result, err = s.db.ExecContext(ctx, `DELETE FROM bindings WHERE `+cond+` AND NOT is_admin`, arg)
	if err != nil {
		return false, fmt.Errorf("删除绑定失败: %w", err)
	}
	n, _ = result.RowsAffected()
	total += n

	return total > 0, nil
}

// Ban 将匹配记录标记为封禁
func (s *SQLiteStorage) Ban(ctx context.Context, qq int64, name string) (bool, error) {
	if qq == 0 && name == "" {
		return false, ErrNoKey
	}

	var total int64
	if qq != 0 {
		result, err := s.db.ExecContext(ctx, `UPDATE bindings SET ban = TRUE WHERE qq = ?`, qq)
		if err != nil {
			return false, fmt.Errorf("封禁失败: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	if name != "" {
		result, err := s.db.ExecContext(ctx, `UPDATE bindings SET ban = TRUE WHERE mc = ?`, name)
		if err != nil {
			return false, fmt.Errorf("封禁失败: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total > 0, nil
}

// CountMatching 按任一键统计记录数
func (s *SQLiteStorage) CountMatching(ctx context.Context, qq int64, name string) (int, error) {
	var count int
	var err error

	switch {
	case qq != 0:
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bindings WHERE qq = ?`, qq).Scan(&count)
	case name != "":
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bindings WHERE mc = ?`, name).Scan(&count)
	default:
		return 0, ErrNoKey
	}
	if err != nil {
		return 0, fmt.Errorf("统计绑定失败: %w", err)
	}
	return count, nil
}

// LookupUsername 查询 qq 绑定的用户名
func (s *SQLiteStorage) LookupUsername(ctx context.Context, qq int64) (string, bool, error) {
	var mc sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT mc FROM bindings WHERE qq = ?`, qq).Scan(&mc)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询绑定用户名失败: %w", err)
	}
	if !mc.Valid || mc.String == "" {
		return "", false, nil
	}
	return mc.String, true, nil
}

// IsBanned 任一匹配记录被封禁即返回 true
func (s *SQLiteStorage) IsBanned(ctx context.Context, qq int64, name string) (bool, error) {
	if qq == 0 && name == "" {
		return false, ErrNoKey
	}

	if qq != 0 {
		var banned bool
		err := s.db.QueryRowContext(ctx, `SELECT ban FROM bindings WHERE qq = ?`, qq).Scan(&banned)
		if err != nil && err != sql.ErrNoRows {
			return false, fmt.Errorf("查询封禁状态失败: %w", err)
		}
		if err == nil && banned {
			return true, nil
		}
	}
	if name != "" {
		var banned bool
		err := s.db.QueryRowContext(ctx, `SELECT ban FROM bindings WHERE mc = ?`, name).Scan(&banned)
		if err != nil && err != sql.ErrNoRows {
			return false, fmt.Errorf("查询封禁状态失败: %w", err)
		}
		if err == nil && banned {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin 查询 is_admin 标记
func (s *SQLiteStorage) IsAdmin(ctx context.Context, qq int64) (bool, error) {
	var isAdmin bool
	err := s.db.QueryRowContext(ctx, `SELECT is_admin FROM bindings WHERE qq = ?`, qq).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询管理员标记失败: %w", err)
	}
	return isAdmin, nil
}
