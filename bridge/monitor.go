package bridge

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcbridge/mcbridge/config"
)

// Monitor 周期性检查宿主性能，越过阈值时记录日志并可选地
// 向所有配置的群播报警告。
type Monitor struct {
	opts   config.PerformanceConfig
	source PerformanceSource
	sched  Scheduler
	notify func(text string)

	mu     sync.Mutex
	handle Handle
}

func NewMonitor(opts config.PerformanceConfig, source PerformanceSource, sched Scheduler, notify func(text string)) *Monitor {
	return &Monitor{
		opts:   opts,
		source: source,
		sched:  sched,
		notify: notify,
	}
}

func (m *Monitor) Start() {
	if !m.opts.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != 0 {
		return
	}
	m.handle = m.sched.ScheduleRepeating(time.Duration(m.opts.Interval)*time.Second, m.check)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	handle := m.handle
	m.handle = 0
	m.mu.Unlock()

	if handle != 0 {
		m.sched.Cancel(handle)
	}
}

func (m *Monitor) check() {
	log := zap.S().Named("monitor")

	tps := m.source.TicksPerSecond()
	if tps < m.opts.TPSWarning {
		warning := fmt.Sprintf("服务器TPS过低: %.1f", tps)
		log.Warn(warning)
		m.broadcast(warning)
	}

	used, max := m.source.MemoryUsage()
	if max > 0 {
		percent := int(used * 100 / max)
		if percent > m.opts.MemoryWarning {
			warning := fmt.Sprintf("服务器内存使用率过高: %d%%", percent)
			log.Warn(warning)
			m.broadcast(warning)
		}
	}
}

func (m *Monitor) broadcast(warning string) {
	if m.opts.SendWarnings && m.notify != nil {
		m.notify("[警告] " + warning)
	}
}
