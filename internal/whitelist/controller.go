// Package whitelist 通过外部控制台客户端维护远端服务器白名单
package whitelist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mcbridge/internal/logger"
)

var (
	// ErrConnection 客户端输出中未出现成功标记，视为连接/执行失败
	ErrConnection = errors.New("whitelist: 操作未确认成功")
	// ErrTimeout 客户端在超时时间内未结束
	ErrTimeout = errors.New("whitelist: 操作超时")
)

// Controller 白名单控制器
type Controller interface {
	Add(ctx context.Context, username string) error
	Remove(ctx context.Context, username string) error
}

// 远端白名单插件的命令与回显标记
const (
	addCommandFmt    = "!!awr add %s"
	removeCommandFmt = "!!awr remove %s"
	addMarker        = "已加入白名单"
	removeMarker     = "已从白名单移除"
	quitCommand      = "/quit"
)

// ConsoleClient 基于外部交互式控制台客户端的实现
// 每次调用启动一个客户端进程，登录目标服务器后写入命令并等待退出。
type ConsoleClient struct {
	clientPath string
	loginName  string
	serverAddr string
	settleTime time.Duration
	timeout    time.Duration
}

// NewConsoleClient 创建控制台客户端控制器
func NewConsoleClient(clientPath, loginName, serverAddr string, settleTime, timeout time.Duration) *ConsoleClient {
	return &ConsoleClient{
		clientPath: clientPath,
		loginName:  loginName,
		serverAddr: serverAddr,
		settleTime: settleTime,
		timeout:    timeout,
	}
}

// Add 将用户名加入白名单
func (c *ConsoleClient) Add(ctx context.Context, username string) error {
	return c.run(ctx, fmt.Sprintf(addCommandFmt, username), addMarker)
}

// Remove 将用户名移出白名单
func (c *ConsoleClient) Remove(ctx context.Context, username string) error {
	return c.run(ctx, fmt.Sprintf(removeCommandFmt, username), removeMarker)
}

// run 启动客户端进程，等待登录完成后写入命令，收集全部输出并检查成功标记
func (c *ConsoleClient) run(ctx context.Context, command, marker string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.clientPath, c.loginName, "-", c.serverAddr)
	// 超时杀掉进程后，不等残留子进程继续占着输出管道
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("创建输入管道失败: %w", err)
	}

	var transcript bytes.Buffer
	cmd.Stdout = &transcript
	cmd.Stderr = &transcript

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动控制台客户端失败: %w", err)
	}

	// 等待客户端完成登录
	select {
	case <-time.After(c.settleTime):
	case <-ctx.Done():
		// CommandContext 已负责杀掉进程
		_ = cmd.Wait()
		return ErrTimeout
	}

	fmt.Fprintf(stdin, "%s\n", command)
	fmt.Fprintf(stdin, "%s\n", quitCommand)
	stdin.Close()

	// Wait 会读完 stdout/stderr 到 EOF
	waitErr := cmd.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("whitelist", "客户端未在超时时间内退出", "command", command)
		return ErrTimeout
	}

	out := transcript.String()
	logger.Debug("whitelist", "客户端输出", "command", command, "output", out)

	if !strings.Contains(out, marker) {
		if waitErr != nil {
			logger.Warn("whitelist", "客户端异常退出", "command", command, "error", waitErr)
		}
		return ErrConnection
	}

	return nil
}
