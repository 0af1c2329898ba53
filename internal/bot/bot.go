// Package bot 解析聊天命令并驱动绑定注册表与白名单控制器
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mcbridge/internal/config"
	"mcbridge/internal/logger"
	"mcbridge/internal/mc"
	"mcbridge/internal/qq"
	"mcbridge/internal/storage"
	"mcbridge/internal/whitelist"
)

// Gateway 回复出口（OneBot /send_msg）
type Gateway interface {
	SendGroupMessage(ctx context.Context, groupID int64, text string) error
	SendPrivateMessage(ctx context.Context, userID int64, text string) error
}

// StatusProber 服务器状态探测
type StatusProber interface {
	Probe(ctx context.Context, addr string) *mc.Status
}

// Bot 命令分发器
type Bot struct {
	store     storage.Storage
	prober    StatusProber
	whitelist whitelist.Controller
	gateway   Gateway

	// 热更新部分：管理员列表和服务器列表来自当前配置
	cfgMu sync.RWMutex
	cfg   *config.Config

	commands      map[string]commandSpec
	adminCommands map[string]commandSpec
}

// commandSpec 命令表条目：token 数约束 + 处理函数
type commandSpec struct {
	tokens int    // 期望的完整 token 数，0 表示不限
	usage  string // token 数不符时的用法提示
	handle func(ctx context.Context, qid int64, tokens []string) string
}

// New 创建命令分发器
func New(cfg *config.Config, store storage.Storage, prober StatusProber, wl whitelist.Controller, gateway Gateway) *Bot {
	b := &Bot{
		store:     store,
		prober:    prober,
		whitelist: wl,
		gateway:   gateway,
		cfg:       cfg,
	}

	b.commands = map[string]commandSpec{
		"status": {tokens: 1, handle: b.handleStatus},
		"help":   {tokens: 1, handle: b.handleHelp},
		"bind":   {tokens: 2, usage: "绑定命令正确用法：/bind <name>", handle: b.handleBind},
		"unbind": {tokens: 1, handle: b.handleUnbind},
		"admin":  {handle: b.handleAdmin},
	}
	b.adminCommands = map[string]commandSpec{
		"bind":   {tokens: 4, usage: "管理员命令/admin bind <QQ> <name>，请正确使用！", handle: b.handleAdminBind},
		"unbind": {tokens: 3, usage: "管理员命令/admin unbind <name>，请正确使用！", handle: b.handleAdminUnbind},
		"ban":    {tokens: 3, usage: "管理员命令/admin ban <name>，请正确使用！", handle: b.handleAdminBan},
	}

	return b
}

// UpdateConfig 应用热更新后的管理员/服务器列表
func (b *Bot) UpdateConfig(cfg *config.Config) {
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
}

// HandleEvent 处理一条上报事件：识别命令则回复，否则静默
func (b *Bot) HandleEvent(ctx context.Context, e *qq.Event) {
	if e == nil || e.PostType != "message" {
		return
	}
	qid := e.SenderID()
	if qid == 0 {
		return
	}

	reply, ok := b.Dispatch(ctx, qid, e.RawMessage)
	if !ok {
		return
	}

	switch e.MessageType {
	case "group":
		if e.GroupID == 0 {
			return
		}
		if err := b.gateway.SendGroupMessage(ctx, e.GroupID, reply); err != nil {
			logger.Error("bot", "发送群消息失败", "group_id", e.GroupID, "error", err)
		}
	case "private":
		if err := b.gateway.SendPrivateMessage(ctx, qid, reply); err != nil {
			logger.Error("bot", "发送私聊消息失败", "user_id", qid, "error", err)
		}
	}
}

// Dispatch 解析一条消息。第二个返回值为 false 表示不是本 bot 的命令，不回复。
func (b *Bot) Dispatch(ctx context.Context, qid int64, raw string) (string, bool) {
	tokens := strings.Fields(strings.TrimSpace(raw))
	if len(tokens) == 0 || !strings.HasPrefix(tokens[0], "/") {
		return "", false
	}

	name := strings.TrimPrefix(tokens[0], "/")
	spec, ok := b.commands[name]
	if !ok {
		return "", false
	}

	if spec.tokens != 0 && len(tokens) != spec.tokens {
		// 没有用法提示的命令对多余参数保持静默
		if spec.usage == "" {
			return "", false
		}
		return at(qid) + spec.usage, true
	}

	return spec.handle(ctx, qid, tokens), true
}

// isAdmin 检查发起者是否在管理员列表内
func (b *Bot) isAdmin(qid int64) bool {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg.IsAdmin(qid)
}

// ===== 普通命令 =====

func (b *Bot) handleStatus(ctx context.Context, qid int64, _ []string) string {
	return b.StatusReport(ctx, qid)
}

func (b *Bot) handleHelp(_ context.Context, qid int64, _ []string) string {
	return at(qid) + `====== 白名单机器人帮助 ======
● 使用 /status 查看服务器当前状态
● 使用 /bind <name> 来自助添加白名单
● 使用 /unbind 来解除QQ与白名单的绑定`
}

func (b *Bot) handleBind(ctx context.Context, qid int64, tokens []string) string {
	name := tokens[1]
	if !isASCII(name) {
		return at(qid) + fmt.Sprintf("请输入正确的游戏名称！%s 不是合法的游戏名！", name)
	}

	outcome, err := b.store.AttemptBind(ctx, qid, name)
	if err != nil {
		logger.Error("bot", "绑定写入失败", "qq", qid, "mc", name, "error", err)
		return at(qid) + "绑定失败，请稍后重试或联系管理员！"
	}

	switch outcome {
	case storage.BindBannedQQ:
		return at(qid) + "你的QQ无法绑定账户，请联系管理员！"
	case storage.BindBannedName:
		return at(qid) + "此用户名无法绑定，请联系管理员！"
	case storage.BindAlreadyBound:
		return at(qid) + "你已经拥有绑定的游戏ID了！本服务器一人一号，如有其他需要请联系管理员！"
	case storage.BindNameTaken:
		return at(qid) + fmt.Sprintf("此用户名 %s 已经被绑定！请联系管理员！", name)
	}

	// 绑定已落库，再去加白名单；失败则回滚记录
	if err := b.whitelist.Add(ctx, name); err != nil {
		logger.Warn("bot", "添加白名单失败", "mc", name, "error", err)
		if _, rbErr := b.store.RemoveBinding(ctx, qid, ""); rbErr != nil {
			logger.Error("bot", "回滚绑定失败", "qq", qid, "error", rbErr)
		}
		return at(qid) + "添加失败，无法连接到服务器，请重试！"
	}

	return at(qid) + fmt.Sprintf("已为玩家 %s 添加白名单！", name)
}

func (b *Bot) handleUnbind(ctx context.Context, qid int64, _ []string) string {
	name, found, err := b.store.LookupUsername(ctx, qid)
	if err != nil {
		logger.Error("bot", "查询绑定失败", "qq", qid, "error", err)
		return at(qid) + "解除绑定失败！请联系管理员！"
	}
	if !found {
		return at(qid) + "解除绑定失败！请联系管理员！"
	}

	if err := b.whitelist.Remove(ctx, name); err != nil {
		logger.Warn("bot", "移除白名单失败", "mc", name, "error", err)
		return at(qid) + "移除失败，无法连接到服务器，请重试！"
	}

	// 按 qq 和用户名双向清理
	if _, err := b.store.RemoveBinding(ctx, qid, ""); err != nil {
		logger.Error("bot", "删除绑定失败", "qq", qid, "error", err)
		return at(qid) + "解除绑定失败！请联系管理员！"
	}
	if _, err := b.store.RemoveBinding(ctx, 0, name); err != nil {
		logger.Error("bot", "删除绑定失败", "mc", name, "error", err)
	}

	return at(qid) + fmt.Sprintf("已经为你解除 %s 的绑定！", name)
}

// ===== 管理员命令 =====

func (b *Bot) handleAdmin(ctx context.Context, qid int64, tokens []string) string {
	if !b.isAdmin(qid) {
		return at(qid) + "你不在bot管理员列表内！"
	}

	if len(tokens) == 1 {
		return at(qid) + `====== 管理员命令列表 ======
● 使用/admin bind <QQ> <name> 来为玩家强制绑定
● 使用/admin unbind <name> 来为玩家强制解除绑定
● 使用/admin ban <name> 来封禁一名玩家`
	}

	spec, ok := b.adminCommands[tokens[1]]
	if !ok {
		return at(qid) + "未知的管理员命令，使用 /admin 查看命令列表。"
	}
	if spec.tokens != 0 && len(tokens) != spec.tokens {
		return at(qid) + spec.usage
	}
	return spec.handle(ctx, qid, tokens)
}

func (b *Bot) handleAdminBind(ctx context.Context, qid int64, tokens []string) string {
	target, ok := parseQQ(tokens[2])
	if !ok || !isASCII(tokens[3]) {
		return at(qid) + "管理员命令/admin bind <QQ> <name>，请正确使用！"
	}
	name := tokens[3]

	if err := b.whitelist.Add(ctx, name); err != nil {
		logger.Warn("bot", "添加白名单失败", "mc", name, "error", err)
		return at(qid) + "添加失败，无法连接到服务器，请重试！"
	}
	if err := b.store.ForceBind(ctx, target, name); err != nil {
		logger.Error("bot", "强制绑定失败", "qq", target, "mc", name, "error", err)
		return at(qid) + "绑定失败，请稍后重试！"
	}

	return at(qid) + fmt.Sprintf("已经为 %d 添加了用户名 %s 的绑定！", target, name)
}

func (b *Bot) handleAdminUnbind(ctx context.Context, qid int64, tokens []string) string {
	name := tokens[2]
	if !isASCII(name) {
		return at(qid) + "管理员命令/admin unbind <name>，请正确使用！"
	}

	if err := b.whitelist.Remove(ctx, name); err != nil {
		logger.Warn("bot", "移除白名单失败", "mc", name, "error", err)
		return at(qid) + "移除失败，无法连接到服务器，请重试！"
	}
	if _, err := b.store.RemoveBinding(ctx, 0, name); err != nil {
		logger.Error("bot", "删除绑定失败", "mc", name, "error", err)
		return at(qid) + "解除绑定失败，请稍后重试！"
	}

	return at(qid) + fmt.Sprintf("已经清除了用户名 %s 的绑定！", name)
}

func (b *Bot) handleAdminBan(ctx context.Context, qid int64, tokens []string) string {
	name := tokens[2]
	if !isASCII(name) {
		return at(qid) + "管理员命令/admin ban <name>，请正确使用！"
	}

	if err := b.whitelist.Remove(ctx, name); err != nil {
		// 封禁以落库为准，白名单移除失败只记日志
		logger.Warn("bot", "移除白名单失败", "mc", name, "error", err)
	}
	if _, err := b.store.Ban(ctx, 0, name); err != nil {
		logger.Error("bot", "封禁失败", "mc", name, "error", err)
		return at(qid) + "封禁失败，请稍后重试！"
	}

	return at(qid) + fmt.Sprintf("已经封禁了用户名为 %s 的玩家！", name)
}

// ===== 状态报告 =====

// StatusReport 探测全部已配置服务器并拼装状态报告
func (b *Bot) StatusReport(ctx context.Context, qid int64) string {
	b.cfgMu.RLock()
	servers := make([]config.ServerConfig, len(b.cfg.Servers))
	copy(servers, b.cfg.Servers)
	b.cfgMu.RUnlock()

	results := make([]*mc.Status, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, srv := range servers {
		i, srv := i, srv
		g.Go(func() error {
			results[i] = b.prober.Probe(gctx, srv.Addr())
			return nil
		})
	}
	_ = g.Wait() // 探测不返回错误，失败体现在结果里

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[CQ:at,qq=%d] ====== 服务器状态一览 ======", qid))

	for i, srv := range servers {
		st := results[i]
		switch {
		case st.Online:
			players := "无"
			if len(st.Players) > 0 {
				players = strings.Join(st.Players, ", ")
			}
			sb.WriteString(fmt.Sprintf("\n\n服务器名称：%s\n延迟：%d ms\n在线人数：%d/%d\n在线玩家：%s\n当前状态：在线",
				srv.Name, st.Latency.Milliseconds(), st.PlayersOnline, st.PlayersMax, players))
		case st.Error:
			sb.WriteString(fmt.Sprintf("\n\n服务器名称：%s\n当前状态：未知（%s）", srv.Name, st.Msg))
		default:
			sb.WriteString(fmt.Sprintf("\n\n服务器名称：%s\n当前状态：离线", srv.Name))
		}
	}

	return sb.String()
}

// ===== 工具函数 =====

// at 回复统一带上 @发起者 的 CQ 码前缀
func at(qid int64) string {
	return fmt.Sprintf("[CQ:at,qq=%d] ", qid)
}

// isASCII 用户名必须是非空纯 ASCII
func isASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// parseQQ 解析纯数字 QQ 号
func parseQQ(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
	}
	return n, true
}
