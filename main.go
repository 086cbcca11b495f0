package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mcbridge/mcbridge/binding"
	"github.com/mcbridge/mcbridge/bridge"
	"github.com/mcbridge/mcbridge/command"
	"github.com/mcbridge/mcbridge/config"
	"github.com/mcbridge/mcbridge/filter"
	"github.com/mcbridge/mcbridge/protocol"
)

var historyFn = filepath.Join(os.TempDir(), ".mcbridge_history")

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.S()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine := filter.NewEngine(filterOptions(cfg))

	registry := command.NewRegistry()
	if err := registry.Reload(commandDefs(cfg)); err != nil {
		log.Fatalf("load commands: %v", err)
	}

	io, closeIO, err := openBindingIO(cfg)
	if err != nil {
		log.Fatalf("open binding storage: %v", err)
	}
	defer closeIO()

	store, err := binding.NewStore(bindingOptions(cfg), io)
	if err != nil {
		log.Fatalf("load bindings: %v", err)
	}

	client := protocol.NewClient(
		cfg.Bot.WSURL,
		time.Duration(cfg.Bot.HeartbeatInterval)*time.Second,
		protocol.ReconnectPolicy{
			Enabled:     cfg.Bot.Reconnect.Enabled,
			Delay:       time.Duration(cfg.Bot.Reconnect.Delay) * time.Second,
			MaxAttempts: cfg.Bot.Reconnect.MaxAttempts,
		},
	)

	host := newConsoleHost(20)
	sched := bridge.NewTimerScheduler()

	b := bridge.New(cfg, client, engine, registry, store, host, sched)
	b.OnReload = func() error {
		next, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		if err := registry.Reload(commandDefs(next)); err != nil {
			return err
		}
		engine.Reload(filterOptions(next))
		b.SwapConfig(next)
		return nil
	}
	client.SetHandler(b)

	monitor := bridge.NewMonitor(cfg.Performance, host, sched, b.BroadcastToGroups)
	monitor.Start()
	defer monitor.Stop()

	if err := client.Connect(ctx); err != nil {
		log.Errorf("connect to %s failed: %v", cfg.Bot.WSURL, err)
	}
	defer client.Close()

	runConsole(ctx, b, host, client)
}

// runConsole 本地控制台，充当一个最小的游戏宿主：
// 可以模拟玩家聊天、进出服和验证码提交。
func runConsole(ctx context.Context, b *bridge.Bridge, host *consoleHost, client *protocol.Client) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFn); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Println("mcbridge console")
	fmt.Println("命令: say <玩家> <消息> | join <玩家> | quit <玩家> | verify <玩家> <验证码> | status | reload | exit")

	for ctx.Err() == nil {
		text, err := line.Prompt(">>> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				break
			}
			fmt.Println("read error:", err)
			break
		}

		tokens := strings.Fields(text)
		if len(tokens) == 0 {
			continue
		}
		line.AppendHistory(text)

		switch tokens[0] {
		case "say":
			if len(tokens) < 3 {
				fmt.Println("用法: say <玩家> <消息>")
				continue
			}
			b.OnPlayerChat(tokens[1], strings.Join(tokens[2:], " "))
		case "join":
			if len(tokens) < 2 {
				fmt.Println("用法: join <玩家>")
				continue
			}
			host.addPlayer(tokens[1])
			b.OnPlayerJoined(tokens[1])
		case "quit":
			if len(tokens) < 2 {
				fmt.Println("用法: quit <玩家>")
				continue
			}
			host.removePlayer(tokens[1])
			b.OnPlayerQuit(tokens[1])
		case "verify":
			if len(tokens) < 3 {
				fmt.Println("用法: verify <玩家> <验证码>")
				continue
			}
			b.OnPlayerVerify(tokens[1], tokens[2])
		case "status":
			fmt.Printf("connected=%v players=%v\n", client.Connected(), host.OnlinePlayers())
		case "reload":
			if err := b.OnReload(); err != nil {
				fmt.Println("重载失败:", err)
			} else {
				fmt.Println("配置文件已重载！")
			}
		case "exit":
			if f, err := os.Create(historyFn); err == nil {
				_, _ = line.WriteHistory(f)
				_ = f.Close()
			}
			return
		default:
			fmt.Println("未知命令:", tokens[0])
		}
	}
}

func filterOptions(cfg *config.Config) filter.Options {
	opts := filter.Options{
		MaxLength:      cfg.Filter.MaxLength,
		RateLimit:      cfg.Filter.RateLimit,
		AllowEmpty:     cfg.Filter.AllowEmpty,
		AllowPureImage: cfg.Filter.AllowPureImage,
		MaskChar:       cfg.Filter.WordFilter.ReplaceWith,
		Simplify:       cfg.Filter.Simplify,
	}
	if cfg.Filter.WordFilter.Enabled {
		opts.Words = cfg.Filter.WordFilter.Words
	}
	return opts
}

func bindingOptions(cfg *config.Config) binding.Options {
	return binding.Options{
		Enabled:     cfg.Whitelist.Enabled,
		MaxBindings: cfg.Whitelist.MaxBindings,
		CodeLength:  cfg.Whitelist.Verify.Length,
		CodeFormat:  cfg.Whitelist.Verify.Format,
		Expiry:      time.Duration(cfg.Whitelist.Verify.Expire) * time.Minute,
	}
}

func commandDefs(cfg *config.Config) []command.Command {
	return lo.Map(cfg.Commands, func(c config.CommandConfig, _ int) command.Command {
		return command.Command{
			Name:        c.Name,
			Aliases:     c.Aliases,
			Permission:  c.Permission,
			Cooldown:    c.Cooldown,
			AdminOnly:   c.AdminOnly,
			Usage:       c.Usage,
			Description: c.Description,
			Actions:     c.Actions,
		}
	})
}

func openBindingIO(cfg *config.Config) (binding.IO, func(), error) {
	switch cfg.Whitelist.Storage {
	case "buntdb":
		db, err := binding.NewBuntIO(cfg.Whitelist.File)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return binding.NewFileIO(cfg.Whitelist.File), func() {}, nil
	}
}
