package binding

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BindResult 直接绑定的结果
type BindResult int

const (
	BindOK BindResult = iota
	BindAlreadyBoundSelf
	BindAlreadyBoundOther
	BindLimitExceeded
	BindIOFailure
)

// SubmitResult 提交验证码的结果
type SubmitResult int

const (
	SubmitOK SubmitResult = iota
	SubmitNoPending
	SubmitExpired
	SubmitMismatch
	SubmitIOFailure
)

// UnbindResult 解绑的结果
type UnbindResult int

const (
	UnbindOK UnbindResult = iota
	UnbindNotBound
	UnbindNotOwner
	UnbindIOFailure
)

// Options 绑定子系统配置快照
type Options struct {
	Enabled     bool
	MaxBindings int           // 单个外部账号可拥有的游戏身份上限
	CodeLength  int           // 验证码长度
	CodeFormat  string        // number | alnum
	Expiry      time.Duration // 验证码有效期
}

// pendingCode 某个游戏身份在途的验证请求。同一身份至多一条，
// 新请求静默覆盖旧请求。
type pendingCode struct {
	externalID int64
	code       string
	expiresAt  time.Time
}

// Store 绑定表与在途验证请求。绑定表落盘，验证请求仅驻留内存，
// 进程重启后丢失。
type Store struct {
	opts Options
	io   IO

	mu       sync.Mutex
	bindings map[string]int64 // 游戏ID(小写) -> 外部账号ID
	pending  map[string]*pendingCode

	codegen *codeGenerator
	now     func() time.Time

	// OnBound 验证绑定成功后发布的事件，供游戏侧协作者响应
	// （例如取消待执行的踢出）。在持有锁之外调用。
	OnBound func(gameID string, externalID int64)
}

// NewStore 加载持久化记录并构造 Store。
func NewStore(opts Options, io IO) (*Store, error) {
	records, err := io.Load()
	if err != nil {
		return nil, err
	}
	return &Store{
		opts:     opts,
		io:       io,
		bindings: records,
		pending:  make(map[string]*pendingCode),
		codegen:  newCodeGenerator(opts.CodeLength, opts.CodeFormat),
		now:      time.Now,
	}, nil
}

// Enabled 报告绑定功能是否由配置开启。
func (s *Store) Enabled() bool {
	return s.opts.Enabled
}

// Bind 直接模式绑定。持久化成功后才更新内存表，
// IO 失败不会留下半更新状态。
func (s *Store) Bind(externalID int64, gameID string) BindResult {
	key := normalize(gameID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.bindings[key]; ok {
		if owner == externalID {
			return BindAlreadyBoundSelf
		}
		return BindAlreadyBoundOther
	}

	if s.countLocked(externalID) >= s.opts.MaxBindings {
		return BindLimitExceeded
	}

	if !s.persistLocked(key, externalID) {
		return BindIOFailure
	}
	return BindOK
}

// RequestVerification 生成验证码并登记在途请求，覆盖同一游戏身份的
// 旧请求。验证码的送达由调用方负责。
func (s *Store) RequestVerification(externalID int64, gameID string) (string, time.Time) {
	code := s.codegen.generate()
	expiresAt := s.now().Add(s.opts.Expiry)

	s.mu.Lock()
	s.pending[normalize(gameID)] = &pendingCode{
		externalID: externalID,
		code:       code,
		expiresAt:  expiresAt,
	}
	s.mu.Unlock()

	return code, expiresAt
}

// SubmitVerification 校验验证码。过期与成功都会消耗在途请求；
// 验证码错误保留请求，允许在有效期内重试。
func (s *Store) SubmitVerification(gameID, code string) SubmitResult {
	key := normalize(gameID)

	s.mu.Lock()

	p, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return SubmitNoPending
	}

	if s.now().After(p.expiresAt) {
		delete(s.pending, key)
		s.mu.Unlock()
		return SubmitExpired
	}

	if p.code != code {
		s.mu.Unlock()
		return SubmitMismatch
	}

	// 匹配成功即消耗请求，之后 IO 失败也不允许重放同一验证码
	delete(s.pending, key)

	if !s.persistLocked(key, p.externalID) {
		s.mu.Unlock()
		return SubmitIOFailure
	}

	onBound := s.OnBound
	externalID := p.externalID
	s.mu.Unlock()

	if onBound != nil {
		onBound(gameID, externalID)
	}
	return SubmitOK
}

// Unbind 仅记录在案的所有者可以解绑。
func (s *Store) Unbind(externalID int64, gameID string) UnbindResult {
	key := normalize(gameID)

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.bindings[key]
	if !ok {
		return UnbindNotBound
	}
	if owner != externalID {
		return UnbindNotOwner
	}

	next := s.cloneLocked()
	delete(next, key)
	if err := s.io.Save(next); err != nil {
		zap.S().Named("binding").Errorf("save bindings failed: %v", err)
		return UnbindIOFailure
	}
	s.bindings = next
	return UnbindOK
}

// IsBound 纯查询。绑定功能被配置关闭时恒为 true（显式旁路）。
func (s *Store) IsBound(gameID string) bool {
	if !s.opts.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bindings[normalize(gameID)]
	return ok
}

// Owner 返回游戏身份的所有者。
func (s *Store) Owner(gameID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.bindings[normalize(gameID)]
	return owner, ok
}

// BindingsOf 列出某外部账号拥有的全部游戏身份，按名字排序。
func (s *Store) BindingsOf(externalID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, owner := range s.bindings {
		if owner == externalID {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) countLocked(externalID int64) int {
	n := 0
	for _, owner := range s.bindings {
		if owner == externalID {
			n++
		}
	}
	return n
}

func (s *Store) cloneLocked() map[string]int64 {
	next := make(map[string]int64, len(s.bindings))
	for k, v := range s.bindings {
		next[k] = v
	}
	return next
}

// persistLocked 写入一条新绑定：先落盘，成功后才替换内存表。
func (s *Store) persistLocked(key string, externalID int64) bool {
	next := s.cloneLocked()
	next[key] = externalID
	if err := s.io.Save(next); err != nil {
		zap.S().Named("binding").Errorf("save bindings failed: %v", err)
		return false
	}
	s.bindings = next
	return true
}

func normalize(gameID string) string {
	return strings.ToLower(gameID)
}
