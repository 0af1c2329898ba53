package storage

import (
	"context"
	"errors"
)

// Binding 一条 QQ ↔ 游戏用户名绑定记录
type Binding struct {
	QQ      int64
	MC      string
	IsAdmin bool
	Ban     bool
}

// BindOutcome AttemptBind 的判定结果
type BindOutcome int

const (
	BindOK           BindOutcome = iota // 绑定成功
	BindAlreadyBound                    // 发起者已有绑定
	BindNameTaken                       // 用户名已被他人绑定
	BindBannedQQ                        // 发起者 QQ 被封禁
	BindBannedName                      // 用户名被封禁
)

// ErrNoKey 删除/查询时 qq 和用户名都未提供
var ErrNoKey = errors.New("至少需要提供 qq 或用户名")

// Storage 绑定注册表
// qq 参数为 0、name 参数为空串表示"该键未提供"。
type Storage interface {
	// Init 建表（幂等）
	Init(ctx context.Context) error
	Close() error

	// EnsureAdmins 启动时将管理员列表写入 is_admin 标记，不覆盖已有绑定
	EnsureAdmins(ctx context.Context, admins []int64) error

	// AttemptBind 在单个事务内完成封禁/重复检查并写入绑定
	AttemptBind(ctx context.Context, qq int64, name string) (BindOutcome, error)

	// ForceBind 管理员强制绑定，跳过封禁与重复检查
	ForceBind(ctx context.Context, qq int64, name string) error

	// RemoveBinding 按任一键清除绑定，返回是否有绑定被清除
	// 管理员行只清空 mc，保留 is_admin 标记
	RemoveBinding(ctx context.Context, qq int64, name string) (bool, error)

	// Ban 将匹配记录标记为封禁，返回是否有记录被标记
	Ban(ctx context.Context, qq int64, name string) (bool, error)

	// CountMatching 按任一键统计记录数
	CountMatching(ctx context.Context, qq int64, name string) (int, error)

	// LookupUsername 查询 qq 绑定的用户名，第二个返回值表示是否存在有效绑定
	LookupUsername(ctx context.Context, qq int64) (string, bool, error)

	// IsBanned 任一匹配记录被封禁即返回 true
	IsBanned(ctx context.Context, qq int64, name string) (bool, error)

	// IsAdmin 查询 is_admin 标记
	IsAdmin(ctx context.Context, qq int64) (bool, error)
}
