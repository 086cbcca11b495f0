package bridge

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mcbridge/mcbridge/binding"
	"github.com/mcbridge/mcbridge/config"
	"github.com/mcbridge/mcbridge/protocol"
)

// runGroupAction 执行一条展开后的群命令动作。动作词表是固定的，
// 未知动作只记 debug 日志。
func (b *Bridge) runGroupAction(cfg *config.Config, action string, args []string, m *protocol.Message) {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "status":
		b.sendServerStatus(cfg, m.GroupID)

	case "bind":
		if len(args) < 2 {
			b.sendGroup(m.GroupID, "用法: "+cfg.Filter.CommandPrefix+"bind <游戏ID>")
			return
		}
		b.handleBindRequest(cfg, m.Sender.UserID, args[1], m.GroupID)

	case "unbind":
		if len(args) < 2 {
			b.sendGroup(m.GroupID, "用法: "+cfg.Filter.CommandPrefix+"unbind <游戏ID>")
			return
		}
		b.handleUnbindRequest(m.Sender.UserID, args[1], m.GroupID)

	case "broadcast":
		b.host.BroadcastMessage("§c[公告] §f" + strings.Join(fields[1:], " "))

	case "qq_broadcast":
		b.BroadcastToGroups("[公告] " + strings.Join(fields[1:], " "))

	case "list":
		b.sendGroup(m.GroupID, b.buildPlayerList())

	case "help":
		b.sendGroup(m.GroupID, b.buildHelp(cfg))

	default:
		zap.S().Named("bridge").Debugf("unknown command action %q", fields[0])
	}
}

// runPrivateAction 管理员私聊动作，词表比群动作更小。
func (b *Bridge) runPrivateAction(cfg *config.Config, action string, userID int64) {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "reload":
		if b.OnReload == nil {
			return
		}
		if err := b.OnReload(); err != nil {
			zap.S().Named("bridge").Errorf("reload failed: %v", err)
			b.sendPrivate(userID, "重载失败，请检查配置文件")
			return
		}
		b.sendPrivate(userID, "配置文件已重载！")

	case "status":
		b.sendPrivate(userID, b.buildStatus(cfg))

	case "qq_broadcast":
		b.BroadcastToGroups("[公告] " + strings.Join(fields[1:], " "))

	default:
		zap.S().Named("bridge").Debugf("unknown private action %q", fields[0])
	}
}

func (b *Bridge) handleBindRequest(cfg *config.Config, externalID int64, gameID string, groupID int64) {
	if !b.store.Enabled() {
		b.sendGroup(groupID, "白名单系统未启用")
		return
	}

	if cfg.Whitelist.BindMode == "verify" {
		b.handleVerifyRequest(cfg, externalID, gameID, groupID)
		return
	}

	switch b.store.Bind(externalID, gameID) {
	case binding.BindOK:
		b.host.RunConsoleCommand("whitelist add " + gameID)
		b.sendGroup(groupID, "绑定成功！")
	case binding.BindAlreadyBoundSelf:
		b.sendGroup(groupID, "你已经绑定了这个游戏ID")
	case binding.BindAlreadyBoundOther:
		b.sendGroup(groupID, "该游戏ID已被其他QQ号绑定")
	case binding.BindLimitExceeded:
		b.sendGroup(groupID, "你已达到最大绑定数量限制！")
	case binding.BindIOFailure:
		b.sendGroup(groupID, "绑定失败，请联系管理员")
	}
}

func (b *Bridge) handleVerifyRequest(cfg *config.Config, externalID int64, gameID string, groupID int64) {
	code, _ := b.store.RequestVerification(externalID, gameID)
	expireMinutes := cfg.Whitelist.Verify.Expire

	delivered := b.host.SendPlayerMessage(gameID, fmt.Sprintf(
		"§b[MCQ] §f您的QQ绑定验证码为: §e%s\n§f请在 %d 分钟内完成验证", code, expireMinutes))
	if !delivered {
		b.sendGroup(groupID, "玩家不在线，请进入服务器后重新申请绑定")
		return
	}

	b.sendGroup(groupID, "验证码已发送到游戏内，请使用 /mcq verify <验证码> 完成绑定")
}

func (b *Bridge) handleUnbindRequest(externalID int64, gameID string, groupID int64) {
	switch b.store.Unbind(externalID, gameID) {
	case binding.UnbindOK:
		b.host.RunConsoleCommand("whitelist remove " + gameID)
		b.sendGroup(groupID, "解绑成功！")
	case binding.UnbindNotBound:
		b.sendGroup(groupID, "该游戏ID未绑定白名单")
	case binding.UnbindNotOwner:
		b.sendGroup(groupID, "你没有权限解绑该游戏ID")
	case binding.UnbindIOFailure:
		b.sendGroup(groupID, "解绑失败，请联系管理员")
	}
}

// sendServerStatus 状态播报带独立的按群冷却，与命令冷却互不影响。
func (b *Bridge) sendServerStatus(cfg *config.Config, groupID int64) {
	cooldown := cfg.Status.Cooldown
	now := b.now()

	b.statusMu.Lock()
	last, ok := b.statusLast[groupID]
	if ok && now.Sub(last).Seconds() < float64(cooldown) {
		remaining := cooldown - int(now.Sub(last).Seconds())
		b.statusMu.Unlock()
		b.sendGroup(groupID, "命令冷却中，请等待 "+fmt.Sprint(remaining)+" 秒后再试")
		return
	}
	b.statusLast[groupID] = now
	b.statusMu.Unlock()

	b.sendGroup(groupID, b.buildStatus(cfg))
}

func (b *Bridge) buildStatus(cfg *config.Config) string {
	var sb strings.Builder
	sb.WriteString("服务器状态：\n")

	players := b.host.OnlinePlayers()
	fmt.Fprintf(&sb, "在线玩家：%d/%d\n", len(players), b.host.MaxPlayers())

	if cfg.Status.ShowTPS {
		fmt.Fprintf(&sb, "TPS：%.1f\n", b.host.TicksPerSecond())
	}

	if cfg.Status.ShowMemory {
		used, max := b.host.MemoryUsage()
		fmt.Fprintf(&sb, "内存使用：%dMB/%dMB\n", used/1024/1024, max/1024/1024)
	}

	if cfg.Status.ShowPlayerList && len(players) > 0 {
		sb.WriteString("\n在线玩家列表：\n")
		for _, name := range players {
			sb.WriteString("- " + name + "\n")
		}
	}
	return sb.String()
}

// buildHelp 按名字排序列出当前命令表的用法和说明。
func (b *Bridge) buildHelp(cfg *config.Config) string {
	cmds := b.registry.Commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var sb strings.Builder
	sb.WriteString("可用命令：\n")
	for _, c := range cmds {
		usage := c.Usage
		if usage == "" {
			usage = cfg.Filter.CommandPrefix + c.Name
		}
		sb.WriteString(usage)
		if c.Description != "" {
			sb.WriteString("  " + c.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bridge) buildPlayerList() string {
	players := b.host.OnlinePlayers()
	if len(players) == 0 {
		return "当前没有在线玩家"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "在线玩家（%d/%d）：\n", len(players), b.host.MaxPlayers())
	for _, name := range players {
		sb.WriteString("- " + name + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
