package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SchemaConstraint 当前版本可加载的配置 schema 范围
const SchemaConstraint = "^1.0"

// Config 整个配置文件的根节点
type Config struct {
	SchemaVersion string            `yaml:"schema_version"`
	Bot           BotConfig         `yaml:"bot"`
	Format        FormatConfig      `yaml:"message-format"`
	Filter        FilterConfig      `yaml:"message-filter"`
	Whitelist     WhitelistConfig   `yaml:"whitelist"`
	Status        StatusConfig      `yaml:"status"`
	Performance   PerformanceConfig `yaml:"performance"`
	Commands      []CommandConfig   `yaml:"commands"`
}

type BotConfig struct {
	WSURL             string          `yaml:"ws-url"`
	Groups            []int64         `yaml:"groups"`
	Admins            []int64         `yaml:"admins"`
	HeartbeatInterval int             `yaml:"heartbeat-interval"` // 秒
	Reconnect         ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Enabled bool `yaml:"enabled"`
	Delay   int  `yaml:"delay"` // 秒
	// MaxAttempts 按配置文件原样保留。当前实现每次断线只调度一次重连，
	// 该值不会被用作计数上限。
	MaxAttempts int `yaml:"max-attempts"`
}

type FormatConfig struct {
	QQToMC string `yaml:"qq-to-mc"`
	MCToQQ string `yaml:"mc-to-qq"`
	Join   string `yaml:"join"`
	Quit   string `yaml:"quit"`
}

type FilterConfig struct {
	MaxLength      int              `yaml:"max-length"`
	RateLimit      int              `yaml:"rate-limit"` // 每 60 秒允许的消息数
	AllowEmpty     bool             `yaml:"allow-empty"`
	AllowPureImage bool             `yaml:"allow-pure-image"`
	CommandPrefix  string           `yaml:"command-prefix"`
	Simplify       bool             `yaml:"simplify-before-match"` // 匹配敏感词前做繁简归一
	WordFilter     WordFilterConfig `yaml:"word-filter"`
}

type WordFilterConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ReplaceWith string   `yaml:"replace-with"`
	Words       []string `yaml:"words"`
}

type WhitelistConfig struct {
	Enabled        bool            `yaml:"enabled"`
	BindMode       string          `yaml:"bind-mode"` // direct | verify
	MaxBindings    int             `yaml:"max-bindings-per-qq"`
	Storage        string          `yaml:"storage"` // file | buntdb
	File           string          `yaml:"file"`
	Verify         VerifyConfig    `yaml:"verify"`
	ForceBind      ForceBindConfig `yaml:"force-bind"`
}

type VerifyConfig struct {
	Length int    `yaml:"length"`
	Format string `yaml:"format"` // number | alnum
	Expire int    `yaml:"expire"` // 分钟
}

type ForceBindConfig struct {
	Enabled        bool   `yaml:"enabled"`
	AllowJoin      bool   `yaml:"allow-join"`
	KickDelay      int    `yaml:"kick-delay"`      // 秒
	RemindInterval int    `yaml:"remind-interval"` // 秒
	KickMessage    string `yaml:"kick-message"`
	JoinMessage    string `yaml:"join-message"`
}

type StatusConfig struct {
	Cooldown       int  `yaml:"cooldown"` // 秒，按群计
	ShowTPS        bool `yaml:"show-tps"`
	ShowMemory     bool `yaml:"show-memory"`
	ShowPlayerList bool `yaml:"show-player-list"`
}

type PerformanceConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Interval      int     `yaml:"interval"` // 秒
	TPSWarning    float64 `yaml:"tps-warning"`
	MemoryWarning int     `yaml:"memory-warning"` // 百分比
	SendWarnings  bool    `yaml:"send-warnings"`
}

type CommandConfig struct {
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases"`
	Permission  string   `yaml:"permission"`  // 预留：宿主侧权限节点
	Cooldown    int      `yaml:"cooldown"`    // 秒
	AdminOnly   bool     `yaml:"admin-only"`
	Usage       string   `yaml:"usage"`
	Description string   `yaml:"description"`
	Actions     []string `yaml:"actions"`
}

// Load 读取并解析配置文件，随后补全默认值并做 schema 校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 从内存数据解析配置，供 Load 和测试使用。
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.checkSchemaVersion(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = "1.0.0"
	}
	if c.Bot.WSURL == "" {
		c.Bot.WSURL = "ws://localhost:6700"
	}
	if c.Bot.HeartbeatInterval <= 0 {
		c.Bot.HeartbeatInterval = 30
	}
	if c.Bot.Reconnect.Delay <= 0 {
		c.Bot.Reconnect.Delay = 30
	}
	if c.Bot.Reconnect.MaxAttempts <= 0 {
		c.Bot.Reconnect.MaxAttempts = 5
	}

	if c.Format.QQToMC == "" {
		c.Format.QQToMC = "§b[QQ] §f{sender}: {message}"
	}
	if c.Format.MCToQQ == "" {
		c.Format.MCToQQ = "[MC] {player}: {message}"
	}
	if c.Format.Join == "" {
		c.Format.Join = "§a+ §f{player} 加入了服务器"
	}
	if c.Format.Quit == "" {
		c.Format.Quit = "§c- §f{player} 离开了服务器"
	}

	if c.Filter.MaxLength <= 0 {
		c.Filter.MaxLength = 500
	}
	if c.Filter.RateLimit <= 0 {
		c.Filter.RateLimit = 60
	}
	if c.Filter.CommandPrefix == "" {
		c.Filter.CommandPrefix = "!"
	}
	if c.Filter.WordFilter.ReplaceWith == "" {
		c.Filter.WordFilter.ReplaceWith = "*"
	}

	if c.Whitelist.BindMode == "" {
		c.Whitelist.BindMode = "direct"
	}
	if c.Whitelist.MaxBindings <= 0 {
		c.Whitelist.MaxBindings = 1
	}
	if c.Whitelist.Storage == "" {
		c.Whitelist.Storage = "file"
	}
	if c.Whitelist.File == "" {
		c.Whitelist.File = "whitelist.yml"
	}
	if c.Whitelist.Verify.Length <= 0 {
		c.Whitelist.Verify.Length = 6
	}
	if c.Whitelist.Verify.Format == "" {
		c.Whitelist.Verify.Format = "number"
	}
	if c.Whitelist.Verify.Expire <= 0 {
		c.Whitelist.Verify.Expire = 5
	}
	if c.Whitelist.ForceBind.KickDelay <= 0 {
		c.Whitelist.ForceBind.KickDelay = 300
	}
	if c.Whitelist.ForceBind.RemindInterval <= 0 {
		c.Whitelist.ForceBind.RemindInterval = 60
	}
	if c.Whitelist.ForceBind.KickMessage == "" {
		c.Whitelist.ForceBind.KickMessage = "请先在QQ群中完成白名单绑定"
	}
	if c.Whitelist.ForceBind.JoinMessage == "" {
		c.Whitelist.ForceBind.JoinMessage = "§c[MCQ] §f请在 {time} 秒内完成QQ白名单绑定"
	}

	if c.Status.Cooldown <= 0 {
		c.Status.Cooldown = 30
	}

	if c.Performance.Interval <= 0 {
		c.Performance.Interval = 300
	}
	if c.Performance.TPSWarning <= 0 {
		c.Performance.TPSWarning = 18.0
	}
	if c.Performance.MemoryWarning <= 0 {
		c.Performance.MemoryWarning = 80
	}
}

func (c *Config) checkSchemaVersion() error {
	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", c.SchemaVersion, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("unsupported schema_version %q (supported: %s)", c.SchemaVersion, SchemaConstraint)
	}
	return nil
}
