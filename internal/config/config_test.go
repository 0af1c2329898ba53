package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig 写一份临时配置文件
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

const validConfig = `
admin:
  - 10001
  - 10002
servers:
  - name: 主服
    host: mc.example.com
    port: 25565
qq:
  host: 127.0.0.1
  port: 5700
whitelist:
  client_path: ./MinecraftClient
  server: mc.example.com:10125
`

func TestLoadValid(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if len(cfg.Admin) != 2 || cfg.Admin[0] != 10001 {
		t.Fatalf("管理员列表不符: %v", cfg.Admin)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Addr() != "mc.example.com:25565" {
		t.Fatalf("服务器列表不符: %v", cfg.Servers)
	}
	if cfg.QQ.BaseURL() != "http://127.0.0.1:5700" {
		t.Fatalf("网关地址不符: %s", cfg.QQ.BaseURL())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "data.db" {
		t.Fatalf("数据库默认值不符: %+v", cfg.Database)
	}
	if cfg.API.Addr != ":9999" {
		t.Fatalf("监听地址默认值不符: %s", cfg.API.Addr)
	}
	if cfg.Probe.Retries != 5 {
		t.Fatalf("探测重试默认值不符: %d", cfg.Probe.Retries)
	}
	if cfg.Whitelist.LoginName == "" || cfg.Whitelist.SettleTime == 0 || cfg.Whitelist.Timeout == 0 {
		t.Fatalf("白名单默认值不符: %+v", cfg.Whitelist)
	}
}

func TestDurationForms(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig+`
  settle_time: 3s
  timeout: 45
`))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if got := cfg.Whitelist.SettleTime.Std(); got != 3*time.Second {
		t.Fatalf("settle_time 解析不符: %v", got)
	}
	// 裸数字按秒计
	if got := cfg.Whitelist.Timeout.Std(); got != 45*time.Second {
		t.Fatalf("timeout 解析不符: %v", got)
	}

	if _, err := Load(writeConfig(t, validConfig+`
  settle_time: soon
`)); err == nil {
		t.Fatal("非法时长应报错")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"缺少网关地址", `
whitelist:
  client_path: ./client
  server: host:1
`},
		{"缺少客户端路径", `
qq: {host: 127.0.0.1, port: 5700}
whitelist:
  server: host:1
`},
		{"不支持的数据库驱动", `
qq: {host: 127.0.0.1, port: 5700}
whitelist: {client_path: ./client, server: "host:1"}
database: {driver: mysql}
`},
		{"服务器缺少端口", `
qq: {host: 127.0.0.1, port: 5700}
whitelist: {client_path: ./client, server: "host:1"}
servers:
  - name: x
    host: mc.example.com
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("预期校验失败")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("文件不存在应报错")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCBRIDGE_QQ_HOST", "10.0.0.5")
	t.Setenv("MCBRIDGE_API_ADDR", ":8080")
	t.Setenv("MCBRIDGE_DATABASE_DSN", "/var/lib/mcbridge/data.db")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if cfg.QQ.Host != "10.0.0.5" {
		t.Fatalf("环境变量覆盖未生效: %s", cfg.QQ.Host)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("环境变量覆盖未生效: %s", cfg.API.Addr)
	}
	if cfg.Database.DSN != "/var/lib/mcbridge/data.db" {
		t.Fatalf("环境变量覆盖未生效: %s", cfg.Database.DSN)
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	cfg := &Config{Admin: []int64{10001, 10002}}
	if !cfg.IsAdmin(10001) || cfg.IsAdmin(9999) {
		t.Fatal("管理员判断不符")
	}
}
