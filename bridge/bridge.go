package bridge

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mcbridge/mcbridge/binding"
	"github.com/mcbridge/mcbridge/command"
	"github.com/mcbridge/mcbridge/config"
	"github.com/mcbridge/mcbridge/filter"
	"github.com/mcbridge/mcbridge/protocol"
	"github.com/mcbridge/mcbridge/utils"
)

// 出站限速：针对单个会话目标的消息节奏，超限的消息直接丢弃，
// 绝不阻塞帧处理协程。
const (
	sendRate  rate.Limit = 5
	sendBurst            = 10
)

// ChatSender 出站消息通道，由 protocol.Client 实现。
type ChatSender interface {
	SendGroup(groupID int64, text string) error
	SendPrivate(userID int64, text string) error
}

// Bridge 事件路由核心。所有依赖在构造时显式注入。
// 配置以原子快照持有：帧处理协程读取时要么看到完整的旧配置，
// 要么看到完整的新配置，重载不会产生撕裂读。
type Bridge struct {
	cfg      atomic.Pointer[config.Config]
	sender   ChatSender
	filter   *filter.Engine
	registry *command.Registry
	store    *binding.Store
	host     GameHost
	sched    Scheduler

	// OnReload 由装配方注入，响应管理员的 reload 动作。
	OnReload func() error

	limiters utils.SyncMap[string, *rate.Limiter]

	statusMu   sync.Mutex
	statusLast map[int64]time.Time

	taskMu      sync.Mutex
	kickTasks   map[string]Handle
	remindTasks map[string]Handle

	now func() time.Time
}

// New 组装 Bridge 并注册绑定成功事件的处理。
func New(cfg *config.Config, sender ChatSender, engine *filter.Engine,
	registry *command.Registry, store *binding.Store, host GameHost, sched Scheduler) *Bridge {
	b := &Bridge{
		sender:      sender,
		filter:      engine,
		registry:    registry,
		store:       store,
		host:        host,
		sched:       sched,
		statusLast:  make(map[int64]time.Time),
		kickTasks:   make(map[string]Handle),
		remindTasks: make(map[string]Handle),
		now:         time.Now,
	}
	b.cfg.Store(cfg)
	store.OnBound = b.onBindingSuccess
	return b
}

// SwapConfig 原子替换配置快照，重载路径调用。已经在处理中的事件
// 继续使用旧快照，之后的事件看到新配置。
func (b *Bridge) SwapConfig(cfg *config.Config) {
	b.cfg.Store(cfg)
}

// ---- protocol.Handler ----

func (b *Bridge) OnMessage(m *protocol.Message) {
	switch m.Type {
	case "group":
		b.handleGroupMessage(m)
	case "private":
		b.handlePrivateMessage(m)
	}
}

func (b *Bridge) OnNotice(n *protocol.Notice) {
	zap.S().Named("bridge").Debugf("notice %s/%s group=%d user=%d", n.Type, n.SubType, n.GroupID, n.UserID)
}

func (b *Bridge) OnRequest(r *protocol.Request) {
	zap.S().Named("bridge").Debugf("request %s/%s from %d: %s", r.Type, r.SubType, r.UserID, r.Comment)
}

func (b *Bridge) OnMeta(m *protocol.Meta) {
	if m.Type == "heartbeat" {
		return
	}
	zap.S().Named("bridge").Debugf("meta event %s/%s", m.Type, m.SubType)
}

func (b *Bridge) OnDisconnect(err error) {
	zap.S().Named("bridge").Debugf("connection dropped: %v", err)
}

// ---- 入站消息 ----

func (b *Bridge) handleGroupMessage(m *protocol.Message) {
	log := zap.S().Named("bridge")
	cfg := b.cfg.Load()

	if !lo.Contains(cfg.Bot.Groups, m.GroupID) {
		log.Debugf("ignoring message from unconfigured group %d", m.GroupID)
		return
	}

	res := b.filter.Evaluate(m.Text, m.Sender.UserID)
	if !res.OK {
		b.replyFilterReject(m.GroupID, res)
		return
	}
	text := res.Text

	if strings.HasPrefix(text, cfg.Filter.CommandPrefix) {
		b.handleGroupCommand(cfg, text, m)
		return
	}

	formatted := strings.NewReplacer(
		"{sender}", m.Sender.Nickname,
		"{message}", text,
	).Replace(cfg.Format.QQToMC)
	b.host.BroadcastMessage(formatted)
}

func (b *Bridge) replyFilterReject(groupID int64, res filter.Result) {
	switch res.Reason {
	case filter.ReasonTooLong:
		b.sendGroup(groupID, "消息长度超过限制")
	case filter.ReasonEmpty:
		b.sendGroup(groupID, "不允许发送空消息")
	case filter.ReasonPureImage:
		b.sendGroup(groupID, "不允许发送纯图片消息")
	case filter.ReasonRateLimited:
		b.sendGroup(groupID, "发送消息太快，请等待 "+strconv.Itoa(res.RetrySeconds)+" 秒后再试")
	}
}

func (b *Bridge) handleGroupCommand(cfg *config.Config, text string, m *protocol.Message) {
	log := zap.S().Named("bridge")

	tokens := strings.Fields(strings.TrimPrefix(text, cfg.Filter.CommandPrefix))
	if len(tokens) == 0 {
		return
	}

	cmd, ok := b.registry.Resolve(tokens[0])
	if !ok {
		log.Debugf("unknown command %q from %d", tokens[0], m.Sender.UserID)
		return
	}

	log.Infof("user %d runs command %q in group %d", m.Sender.UserID, tokens[0], m.GroupID)

	if cmd.AdminOnly && !isAdmin(cfg, m.Sender.UserID) {
		b.sendGroup(m.GroupID, "你没有权限执行此命令！")
		return
	}

	if ok, remaining := b.registry.CheckCooldown(m.Sender.UserID, cmd, b.now()); !ok {
		b.sendGroup(m.GroupID, "命令冷却中，请等待 "+strconv.Itoa(remaining)+" 秒后再试")
		return
	}

	for _, action := range command.ExpandActions(cmd, tokens) {
		b.runGroupAction(cfg, action, tokens, m)
	}
}

func (b *Bridge) handlePrivateMessage(m *protocol.Message) {
	log := zap.S().Named("bridge")
	cfg := b.cfg.Load()

	if !isAdmin(cfg, m.Sender.UserID) {
		log.Debugf("ignoring private message from non-admin %d", m.Sender.UserID)
		return
	}

	if !strings.HasPrefix(m.Text, cfg.Filter.CommandPrefix) {
		return
	}

	tokens := strings.Fields(strings.TrimPrefix(m.Text, cfg.Filter.CommandPrefix))
	if len(tokens) == 0 {
		return
	}

	cmd, ok := b.registry.Resolve(tokens[0])
	if !ok || !cmd.AdminOnly {
		return
	}

	log.Infof("admin %d runs private command %q", m.Sender.UserID, tokens[0])

	for _, action := range command.ExpandActions(cmd, tokens) {
		b.runPrivateAction(cfg, action, m.Sender.UserID)
	}
}

// ---- 游戏侧事件入口（由宿主适配器调用） ----

// OnPlayerChat 游戏内聊天转发到所有配置的群。
func (b *Bridge) OnPlayerChat(name, message string) {
	formatted := strings.NewReplacer(
		"{player}", name,
		"{message}", message,
	).Replace(b.cfg.Load().Format.MCToQQ)
	b.BroadcastToGroups(formatted)
}

// OnPlayerJoined 播报进服，并按配置执行强制绑定流程。
func (b *Bridge) OnPlayerJoined(name string) {
	cfg := b.cfg.Load()
	b.BroadcastToGroups(strings.ReplaceAll(cfg.Format.Join, "{player}", name))

	fb := cfg.Whitelist.ForceBind
	if !fb.Enabled || b.store.IsBound(name) {
		return
	}

	if !fb.AllowJoin {
		b.host.KickPlayer(name, fb.KickMessage)
		return
	}

	if fb.KickDelay <= 0 {
		return
	}

	b.host.SendPlayerMessage(name,
		strings.ReplaceAll(fb.JoinMessage, "{time}", strconv.Itoa(fb.KickDelay)))

	key := strings.ToLower(name)

	b.taskMu.Lock()
	defer b.taskMu.Unlock()

	if fb.RemindInterval > 0 {
		b.remindTasks[key] = b.sched.ScheduleRepeating(
			time.Duration(fb.RemindInterval)*time.Second, func() {
				if !b.store.IsBound(name) {
					b.host.SendPlayerMessage(name, "§c[MCQ] §f请尽快完成QQ白名单绑定！")
				}
			})
	}

	b.kickTasks[key] = b.sched.ScheduleOnce(
		time.Duration(fb.KickDelay)*time.Second, func() {
			if !b.store.IsBound(name) {
				b.host.KickPlayer(name, fb.KickMessage)
			}
			b.cancelBindTasks(name)
		})
}

// OnPlayerQuit 取消该玩家的强制绑定任务并播报退服。
func (b *Bridge) OnPlayerQuit(name string) {
	b.cancelBindTasks(name)
	b.BroadcastToGroups(strings.ReplaceAll(b.cfg.Load().Format.Quit, "{player}", name))
}

// OnPlayerVerify 玩家在游戏内提交验证码。成功路径的反馈由
// 绑定成功事件统一处理，这里只回失败原因。
func (b *Bridge) OnPlayerVerify(name, code string) {
	switch b.store.SubmitVerification(name, code) {
	case binding.SubmitNoPending:
		b.host.SendPlayerMessage(name, "§c[MCQ] §f请先在QQ群中申请绑定！")
	case binding.SubmitExpired:
		b.host.SendPlayerMessage(name, "§c[MCQ] §f验证码已过期，请重新申请")
	case binding.SubmitMismatch:
		b.host.SendPlayerMessage(name, "§c[MCQ] §f验证码错误，请重新输入")
	case binding.SubmitIOFailure:
		b.host.SendPlayerMessage(name, "§c[MCQ] §f绑定失败，请联系管理员")
	case binding.SubmitOK:
		// onBindingSuccess 负责后续
	}
}

// onBindingSuccess 绑定成功事件：取消踢出/提醒任务，加白名单并播报。
func (b *Bridge) onBindingSuccess(gameID string, externalID int64) {
	zap.S().Named("bridge").Infof("player %s bound to %d", gameID, externalID)

	b.cancelBindTasks(gameID)
	b.host.SendPlayerMessage(gameID, "§a[MCQ] §f白名单绑定成功！")
	b.host.RunConsoleCommand("whitelist add " + gameID)
	b.BroadcastToGroups("玩家 " + gameID + " 已完成白名单绑定！")
}

func (b *Bridge) cancelBindTasks(name string) {
	key := strings.ToLower(name)

	b.taskMu.Lock()
	kick, hasKick := b.kickTasks[key]
	remind, hasRemind := b.remindTasks[key]
	delete(b.kickTasks, key)
	delete(b.remindTasks, key)
	b.taskMu.Unlock()

	if hasKick {
		b.sched.Cancel(kick)
	}
	if hasRemind {
		b.sched.Cancel(remind)
	}
}

// ---- 出站 ----

// BroadcastToGroups 向所有配置的群发送同一条消息。
func (b *Bridge) BroadcastToGroups(text string) {
	for _, groupID := range b.cfg.Load().Bot.Groups {
		b.sendGroup(groupID, text)
	}
}

func (b *Bridge) sendGroup(groupID int64, text string) {
	log := zap.S().Named("bridge")
	if !b.limiterFor("g", groupID).Allow() {
		log.Debugf("send to group %d dropped by pacing limiter", groupID)
		return
	}
	if err := b.sender.SendGroup(groupID, text); err != nil {
		log.Warnf("send to group %d failed: %v", groupID, err)
	}
}

func (b *Bridge) sendPrivate(userID int64, text string) {
	log := zap.S().Named("bridge")
	if !b.limiterFor("p", userID).Allow() {
		log.Debugf("send to user %d dropped by pacing limiter", userID)
		return
	}
	if err := b.sender.SendPrivate(userID, text); err != nil {
		log.Warnf("send to user %d failed: %v", userID, err)
	}
}

func (b *Bridge) limiterFor(kind string, id int64) *rate.Limiter {
	key := kind + ":" + strconv.FormatInt(id, 10)
	l, _ := b.limiters.LoadOrStore(key, rate.NewLimiter(sendRate, sendBurst))
	return l
}

func isAdmin(cfg *config.Config, userID int64) bool {
	return lo.Contains(cfg.Bot.Admins, userID)
}
