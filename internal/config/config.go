package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Admin     []int64         `yaml:"admin"`   // 管理员 QQ 号列表
	Servers   []ServerConfig  `yaml:"servers"` // 需要探测状态的游戏服务器
	QQ        QQConfig        `yaml:"qq"`
	Database  DatabaseConfig  `yaml:"database"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Probe     ProbeConfig     `yaml:"probe"`
	API       APIConfig       `yaml:"api"`
}

// Duration 可从 YAML 解析的时长，接受 "3s" 形式或裸数字（按秒计）
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("解析时长 %q 失败: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n float64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("解析时长失败: %w", err)
	}
	*d = Duration(time.Duration(n * float64(time.Second)))
	return nil
}

// Std 转换为标准库时长
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig 单个游戏服务器
type ServerConfig struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr 返回 host:port 形式的地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QQConfig 聊天网关（OneBot HTTP API）配置
type QQConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	AccessToken string `yaml:"access_token"` // OneBot API Token（可选）
}

// BaseURL 网关 HTTP API 根地址
func (q QQConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", q.Host, q.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite 或 postgres
	DSN    string `yaml:"dsn"`
}

// WhitelistConfig 控制台客户端（白名单维护）配置
type WhitelistConfig struct {
	ClientPath string   `yaml:"client_path"` // 控制台客户端可执行文件路径
	LoginName  string   `yaml:"login_name"`  // 离线登录名
	Server     string   `yaml:"server"`      // 目标服务器 host:port
	SettleTime Duration `yaml:"settle_time"` // 客户端启动等待时间
	Timeout    Duration `yaml:"timeout"`     // 单次操作总超时
}

// ProbeConfig 状态探测配置
type ProbeConfig struct {
	Retries int      `yaml:"retries"` // 单服务器最大尝试次数
	Timeout Duration `yaml:"timeout"` // 单次握手超时
}

// APIConfig HTTP 服务配置
type APIConfig struct {
	Addr string `yaml:"addr"` // 监听地址，如 :9999
}

// Load 从文件加载配置，并应用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides 从环境变量覆盖配置
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MCBRIDGE_QQ_HOST"); v != "" {
		c.QQ.Host = v
	}
	if v := os.Getenv("MCBRIDGE_QQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.QQ.Port = port
		}
	}
	if v := os.Getenv("MCBRIDGE_QQ_ACCESS_TOKEN"); v != "" {
		c.QQ.AccessToken = v
	}
	if v := os.Getenv("MCBRIDGE_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("MCBRIDGE_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("MCBRIDGE_WHITELIST_CLIENT"); v != "" {
		c.Whitelist.ClientPath = v
	}
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" {
		// 启动时自动建表的固定路径单表库
		c.Database.DSN = "data.db"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":9999"
	}
	if c.Whitelist.LoginName == "" {
		c.Whitelist.LoginName = "cons01e3MU"
	}
	if c.Whitelist.SettleTime == 0 {
		c.Whitelist.SettleTime = Duration(3 * time.Second)
	}
	if c.Whitelist.Timeout == 0 {
		c.Whitelist.Timeout = Duration(30 * time.Second)
	}
	if c.Probe.Retries == 0 {
		c.Probe.Retries = 5
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(5 * time.Second)
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.QQ.Host == "" || c.QQ.Port == 0 {
		return fmt.Errorf("qq.host 和 qq.port 是必需的")
	}
	if c.Whitelist.ClientPath == "" {
		return fmt.Errorf("whitelist.client_path 是必需的")
	}
	if c.Whitelist.Server == "" {
		return fmt.Errorf("whitelist.server 是必需的")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database.driver 仅支持 sqlite 或 postgres，当前为 %q", c.Database.Driver)
	}
	for i, s := range c.Servers {
		if s.Host == "" || s.Port == 0 {
			return fmt.Errorf("servers[%d] 缺少 host 或 port", i)
		}
	}
	return nil
}

// IsAdmin 检查 QQ 号是否在管理员列表内
func (c *Config) IsAdmin(qq int64) bool {
	for _, id := range c.Admin {
		if id == qq {
			return true
		}
	}
	return false
}
