// Package binding 维护外部账号与游戏身份之间的绑定关系，
// 支持直接绑定与验证码两种模式。
package binding

// IO 绑定关系的持久化后端。每次 Save 都是全量覆盖写，
// 读可以并发，写由 Store 串行化。
type IO interface {
	// Load 读取全部绑定记录（游戏ID小写 -> 外部账号ID）。
	// 底层存储不存在时返回空表而非错误。
	Load() (map[string]int64, error)
	// Save 全量覆盖写入所有绑定记录。
	Save(records map[string]int64) error
}
