// Package filter 决定一条入站消息是否放行，并在跨桥前完成脱敏。
package filter

import (
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lascape/sat"
)

// imagePlaceholder 与 protocol 包展开图片消息段时使用的占位符一致。
const imagePlaceholder = "[图片]"

// windowLength 限速窗口长度。固定窗口：到期后首次使用时重置，
// 窗口边界处允许突发，这是有意保留的语义。
const windowLength = 60 * time.Second

var pureImagePattern = regexp.MustCompile(`^\[CQ:image,[^\]]*\]$`)

// RejectReason 拒绝原因
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonTooLong
	ReasonEmpty
	ReasonPureImage
	ReasonRateLimited
)

// Result 过滤结果。OK 为 true 时 Text 是脱敏后的文本；
// 为 false 时 Reason 标明原因，限速时 RetrySeconds 带剩余秒数。
type Result struct {
	OK           bool
	Text         string
	Reason       RejectReason
	RetrySeconds int
}

// Options 过滤器配置快照
type Options struct {
	MaxLength      int
	RateLimit      int // 每 60 秒允许的消息数
	AllowEmpty     bool
	AllowPureImage bool
	Words          []string
	MaskChar       string
	Simplify       bool // 匹配前对敏感词做繁简归一
}

type window struct {
	count   int
	resetAt time.Time
}

type maskRule struct {
	pattern *regexp.Regexp
	mask    string
}

// Engine 无规则外状态，除每个发送者的限速窗口之外没有可观察副作用。
type Engine struct {
	opts  Options
	rules []maskRule

	mu      sync.Mutex
	windows map[int64]*window

	now func() time.Time
}

// NewEngine 根据配置构造过滤器。
func NewEngine(opts Options) *Engine {
	e := &Engine{
		opts:    opts,
		windows: make(map[int64]*window),
		now:     time.Now,
	}
	e.rules = buildRules(opts)
	return e
}

// buildRules 按配置顺序编译敏感词规则。各条规则独立生效：
// 后面的规则可能再次匹配前面规则产生的文本。
func buildRules(opts Options) []maskRule {
	mask := opts.MaskChar
	if mask == "" {
		mask = "*"
	}

	var dict sat.Dicter
	if opts.Simplify {
		dict = sat.DefaultDict()
	}

	var rules []maskRule
	for _, word := range opts.Words {
		if word == "" {
			continue
		}
		rules = append(rules, maskRule{
			pattern: regexp.MustCompile(regexp.QuoteMeta(word)),
			mask:    strings.Repeat(mask, utf8.RuneCountInString(word)),
		})
		if dict != nil {
			if conv := dict.Read(word); conv != "" && conv != word {
				rules = append(rules, maskRule{
					pattern: regexp.MustCompile(regexp.QuoteMeta(conv)),
					mask:    strings.Repeat(mask, utf8.RuneCountInString(conv)),
				})
			}
		}
	}
	return rules
}

// Evaluate 按顺序执行：长度 → 空消息 → 纯图片 → 限速 → 敏感词替换。
func (e *Engine) Evaluate(text string, senderID int64) Result {
	e.mu.Lock()
	opts := e.opts
	rules := e.rules
	e.mu.Unlock()

	if utf8.RuneCountInString(text) > opts.MaxLength {
		return Result{Reason: ReasonTooLong}
	}

	if !opts.AllowEmpty && strings.TrimSpace(text) == "" {
		return Result{Reason: ReasonEmpty}
	}

	if !opts.AllowPureImage && isPureImage(text) {
		return Result{Reason: ReasonPureImage}
	}

	if ok, remaining := e.acquire(senderID, opts.RateLimit); !ok {
		return Result{Reason: ReasonRateLimited, RetrySeconds: remaining}
	}

	return Result{OK: true, Text: maskWords(text, rules)}
}

func isPureImage(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == imagePlaceholder || pureImagePattern.MatchString(trimmed)
}

func maskWords(text string, rules []maskRule) string {
	result := text
	for _, rule := range rules {
		result = rule.pattern.ReplaceAllString(result, rule.mask)
	}
	return result
}

// acquire 固定窗口限速：窗口到期后的首次使用重置计数。
func (e *Engine) acquire(senderID int64, limit int) (bool, int) {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.windows[senderID]
	if !ok {
		w = &window{resetAt: now.Add(windowLength)}
		e.windows[senderID] = w
	}

	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(windowLength)
	}

	if w.count >= limit {
		return false, int(w.resetAt.Sub(now) / time.Second)
	}

	w.count++
	return true, 0
}

// Reset 清空所有限速窗口，配置重载时调用。
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows = make(map[int64]*window)
}

// Reload 替换过滤配置并重置所有限速窗口。
func (e *Engine) Reload(opts Options) {
	rules := buildRules(opts)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
	e.rules = rules
	e.windows = make(map[int64]*window)
}
