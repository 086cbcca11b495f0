// Package command 维护配置化命令表：别名解析、冷却与动作模板展开。
package command

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// Command 一条配置化命令。加载完成后不可变。
type Command struct {
	Name        string
	Aliases     []string
	Permission  string   // 预留：宿主侧权限节点，聊天侧只按 AdminOnly 把关
	Cooldown    int      // 秒，0 表示无冷却
	AdminOnly   bool
	Usage       string
	Description string
	Actions     []string // 动作模板，含 {argN}/{args} 占位符
}

// table 一次加载产生的完整快照，发布后只读。
type table struct {
	commands map[string]*Command // 规范名(小写) -> 命令
	aliases  map[string]string   // 别名(小写) -> 规范名(小写)
}

type cooldownKey struct {
	sender  int64
	command string
}

// Registry 命令注册表。Reload 原子替换整张表，
// 解析方要么看到完整的旧表要么看到完整的新表。
type Registry struct {
	table atomic.Pointer[table]

	mu      sync.Mutex
	lastUse map[cooldownKey]time.Time
}

func NewRegistry() *Registry {
	r := &Registry{lastUse: make(map[cooldownKey]time.Time)}
	r.table.Store(&table{
		commands: map[string]*Command{},
		aliases:  map[string]string{},
	})
	return r
}

// Reload 校验并整体替换命令表，同时清空全部冷却记录。
// 规范名与别名在全表范围内大小写不敏感地唯一。
func (r *Registry) Reload(defs []Command) error {
	next := &table{
		commands: make(map[string]*Command, len(defs)),
		aliases:  map[string]string{},
	}

	for i := range defs {
		cmd := defs[i]
		name := strings.ToLower(cmd.Name)
		if name == "" {
			return fmt.Errorf("command #%d: empty name", i)
		}
		if _, dup := next.commands[name]; dup {
			return fmt.Errorf("duplicate command name %q", name)
		}
		next.commands[name] = &cmd
	}

	for _, cmd := range next.commands {
		for _, alias := range lo.Uniq(lo.Map(cmd.Aliases, func(a string, _ int) string {
			return strings.ToLower(a)
		})) {
			if alias == "" {
				continue
			}
			if _, taken := next.commands[alias]; taken {
				return fmt.Errorf("alias %q collides with command name", alias)
			}
			if owner, taken := next.aliases[alias]; taken {
				return fmt.Errorf("alias %q already bound to %q", alias, owner)
			}
			next.aliases[alias] = strings.ToLower(cmd.Name)
		}
	}

	r.table.Store(next)

	r.mu.Lock()
	r.lastUse = make(map[cooldownKey]time.Time)
	r.mu.Unlock()
	return nil
}

// Resolve 大小写不敏感地解析命令：先查规范名，再查别名表。
func (r *Registry) Resolve(token string) (*Command, bool) {
	t := r.table.Load()
	key := strings.ToLower(token)
	if cmd, ok := t.commands[key]; ok {
		return cmd, true
	}
	if canonical, ok := t.aliases[key]; ok {
		cmd, ok := t.commands[canonical]
		return cmd, ok
	}
	return nil, false
}

// Commands 返回当前快照中的全部命令，仅用于状态输出。
func (r *Registry) Commands() []*Command {
	t := r.table.Load()
	return lo.Values(t.commands)
}

// CheckCooldown 检查并登记冷却。检查与更新对同一 (sender, command)
// 键是一个原子操作。恰好到达冷却时长的调用放行；
// 剩余时间向下取整到秒。
func (r *Registry) CheckCooldown(senderID int64, cmd *Command, now time.Time) (bool, int) {
	if cmd.Cooldown <= 0 {
		return true, 0
	}

	key := cooldownKey{sender: senderID, command: strings.ToLower(cmd.Name)}
	cooldown := time.Duration(cmd.Cooldown) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastUse[key]; ok {
		elapsed := now.Sub(last)
		if elapsed < cooldown {
			return false, int((cooldown - elapsed) / time.Second)
		}
	}
	r.lastUse[key] = now
	return true, 0
}

// ExpandActions 展开命令的动作模板。{argN} 按位置替换（下标 0 是命令
// 本身），{args} 在参数多于一个时替换为 args[1:] 的空格连接。
// 未匹配到的占位符按原样保留。
func ExpandActions(cmd *Command, args []string) []string {
	result := make([]string, 0, len(cmd.Actions))
	for _, action := range cmd.Actions {
		expanded := action
		for i, arg := range args {
			expanded = strings.ReplaceAll(expanded, fmt.Sprintf("{arg%d}", i), arg)
		}
		if len(args) > 1 {
			expanded = strings.ReplaceAll(expanded, "{args}", strings.Join(args[1:], " "))
		}
		result = append(result, expanded)
	}
	return result
}
