package main

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/samber/lo"
)

// consoleHost 把本地控制台当作游戏宿主，用于脱离真实服务器调试桥接流程。
// 所有宿主侧动作直接打印到标准输出。
type consoleHost struct {
	mu         sync.Mutex
	players    []string
	maxPlayers int
}

func newConsoleHost(maxPlayers int) *consoleHost {
	return &consoleHost{maxPlayers: maxPlayers}
}

func (h *consoleHost) addPlayer(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !lo.Contains(h.players, name) {
		h.players = append(h.players, name)
	}
}

func (h *consoleHost) removePlayer(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.players = lo.Without(h.players, name)
}

func (h *consoleHost) BroadcastMessage(text string) {
	fmt.Println("[广播]", text)
}

func (h *consoleHost) SendPlayerMessage(name, text string) bool {
	h.mu.Lock()
	online := lo.Contains(h.players, name)
	h.mu.Unlock()
	if online {
		fmt.Printf("[私聊 -> %s] %s\n", name, text)
	}
	return online
}

func (h *consoleHost) KickPlayer(name, reason string) bool {
	h.mu.Lock()
	online := lo.Contains(h.players, name)
	h.players = lo.Without(h.players, name)
	h.mu.Unlock()
	if online {
		fmt.Printf("[踢出 %s] %s\n", name, reason)
	}
	return online
}

func (h *consoleHost) RunConsoleCommand(cmd string) {
	fmt.Println("[控制台]", cmd)
}

func (h *consoleHost) OnlinePlayers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.players))
	copy(out, h.players)
	return out
}

func (h *consoleHost) MaxPlayers() int { return h.maxPlayers }

func (h *consoleHost) TicksPerSecond() float64 { return 20.0 }

func (h *consoleHost) MemoryUsage() (used, max int64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Alloc), int64(ms.Sys)
}
