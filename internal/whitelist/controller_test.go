package whitelist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeStubClient 写一个模拟控制台客户端的脚本
func writeStubClient(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("脚本桩仅支持类 Unix 平台")
	}

	path := filepath.Join(t.TempDir(), "client.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("写入脚本失败: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, script string) *ConsoleClient {
	t.Helper()
	return NewConsoleClient(
		writeStubClient(t, script),
		"cons01e3MU",
		"mc.example.com:10125",
		10*time.Millisecond,
		2*time.Second,
	)
}

func TestAddSuccess(t *testing.T) {
	t.Parallel()

	// 回显收到的命令并输出成功标记
	c := newTestClient(t, `
while read line; do
  case "$line" in
    "!!awr add "*) echo "玩家已加入白名单" ;;
    "/quit") exit 0 ;;
  esac
done
`)

	if err := c.Add(context.Background(), "Steve123"); err != nil {
		t.Fatalf("预期成功，实际 %v", err)
	}
}

func TestRemoveSuccess(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, `
while read line; do
  case "$line" in
    "!!awr remove "*) echo "玩家已从白名单移除" ;;
    "/quit") exit 0 ;;
  esac
done
`)

	if err := c.Remove(context.Background(), "Steve123"); err != nil {
		t.Fatalf("预期成功，实际 %v", err)
	}
}

func TestMissingMarker(t *testing.T) {
	t.Parallel()

	// 客户端输出中没有成功标记，视为连接失败
	c := newTestClient(t, `
cat >/dev/null
echo "connection refused"
`)

	err := c.Add(context.Background(), "Steve123")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("预期 ErrConnection，实际 %v", err)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	// 客户端挂起不退出，超时后应返回 ErrTimeout 而不是永久阻塞
	c := NewConsoleClient(
		writeStubClient(t, "exec sleep 60\n"),
		"cons01e3MU",
		"mc.example.com:10125",
		10*time.Millisecond,
		300*time.Millisecond,
	)

	start := time.Now()
	err := c.Add(context.Background(), "Steve123")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("预期 ErrTimeout，实际 %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("超时控制失效，耗时 %v", elapsed)
	}
}

func TestMissingExecutable(t *testing.T) {
	t.Parallel()

	c := NewConsoleClient(
		filepath.Join(t.TempDir(), "nope"),
		"cons01e3MU",
		"mc.example.com:10125",
		time.Millisecond,
		time.Second,
	)

	if err := c.Add(context.Background(), "Steve123"); err == nil {
		t.Fatal("可执行文件缺失应报错")
	}
}
