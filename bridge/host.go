// Package bridge 将分类后的协议事件接入过滤、命令与绑定子系统，
// 并把游戏侧事件转成出站协议动作。
package bridge

import (
	"sync"
	"time"
)

// PerformanceSource 宿主性能数据的窄接口，取代对宿主内部字段的探查。
type PerformanceSource interface {
	TicksPerSecond() float64
	// MemoryUsage 返回已用与上限，单位字节。
	MemoryUsage() (used, max int64)
}

// GameHost 游戏引擎协作者。实现方负责把调用编组到自己的执行上下文，
// 桥接层可能从网络协程直接调用这些方法。
type GameHost interface {
	PerformanceSource

	BroadcastMessage(text string)
	SendPlayerMessage(name, text string) bool
	KickPlayer(name, reason string) bool
	RunConsoleCommand(cmd string)
	OnlinePlayers() []string
	MaxPlayers() int
}

// Handle 已调度任务的句柄，零值无效。
type Handle uint64

// Scheduler 定时任务能力，与任何具体 tick 频率解耦。
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) Handle
	ScheduleRepeating(interval time.Duration, fn func()) Handle
	Cancel(h Handle)
}

// TimerScheduler 基于标准库定时器的默认 Scheduler 实现。
type TimerScheduler struct {
	mu    sync.Mutex
	next  Handle
	stops map[Handle]func()
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{stops: make(map[Handle]func())}
}

func (ts *TimerScheduler) ScheduleOnce(delay time.Duration, fn func()) Handle {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.next++
	h := ts.next
	timer := time.AfterFunc(delay, func() {
		ts.Cancel(h)
		fn()
	})
	ts.stops[h] = func() { timer.Stop() }
	return h
}

func (ts *TimerScheduler) ScheduleRepeating(interval time.Duration, fn func()) Handle {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.next++
	h := ts.next

	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	ts.stops[h] = func() {
		once.Do(func() {
			ticker.Stop()
			close(stop)
		})
	}
	return h
}

func (ts *TimerScheduler) Cancel(h Handle) {
	ts.mu.Lock()
	stop, ok := ts.stops[h]
	delete(ts.stops, h)
	ts.mu.Unlock()

	if ok {
		stop()
	}
}
