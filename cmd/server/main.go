package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcbridge/internal/api"
	"mcbridge/internal/bot"
	"mcbridge/internal/config"
	"mcbridge/internal/mc"
	"mcbridge/internal/qq"
	"mcbridge/internal/storage"
	"mcbridge/internal/whitelist"
)

var (
	configPath = flag.String("config", "config.yml", "配置文件路径")
	version    = "dev"
)

func main() {
	flag.Parse()

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("mcbridge 启动中", "version", version)

	// 启动前置检查：配置文件必须存在
	if _, err := os.Stat(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s not found. Please provide the configuration file.\n", *configPath)
		os.Exit(1)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	// 启动前置检查：控制台客户端可执行文件必须存在
	if _, err := os.Stat(cfg.Whitelist.ClientPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s not found. Please download the console client first.\n", cfg.Whitelist.ClientPath)
		os.Exit(1)
	}

	slog.Info("配置加载成功",
		"admins", len(cfg.Admin),
		"servers", len(cfg.Servers),
		"gateway", cfg.QQ.BaseURL(),
		"driver", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化存储层
	var store storage.Storage
	switch cfg.Database.Driver {
	case "postgres":
		store, err = storage.NewPostgresStorage(ctx, cfg.Database.DSN)
	default:
		store, err = storage.NewSQLiteStorage(cfg.Database.DSN)
	}
	if err != nil {
		slog.Error("初始化存储失败", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		slog.Error("初始化数据库表失败", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureAdmins(ctx, cfg.Admin); err != nil {
		slog.Error("写入管理员标记失败", "error", err)
		os.Exit(1)
	}
	slog.Info("存储层初始化成功")

	// 组装各组件
	prober := mc.NewProber(cfg.Probe.Retries, cfg.Probe.Timeout.Std())
	controller := whitelist.NewConsoleClient(
		cfg.Whitelist.ClientPath,
		cfg.Whitelist.LoginName,
		cfg.Whitelist.Server,
		cfg.Whitelist.SettleTime.Std(),
		cfg.Whitelist.Timeout.Std(),
	)
	gateway := qq.NewClient(cfg.QQ.BaseURL(), cfg.QQ.AccessToken)
	dispatcher := bot.New(cfg, store, prober, controller, gateway)

	// 配置热更新：管理员与服务器列表
	watcher, err := config.NewWatcher(*configPath, dispatcher.UpdateConfig)
	if err != nil {
		slog.Warn("创建配置监听器失败，热更新不可用", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("启动配置监听失败，热更新不可用", "error", err)
	}

	// 启动 HTTP 服务
	handler := api.NewHandler(dispatcher, controller)
	apiServer := api.NewServer(handler, cfg.API.Addr)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API 服务器错误", "error", err)
			cancel()
		}
	}()

	// 监听关闭信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("收到关闭信号", "signal", sig)
	case <-ctx.Done():
	}

	// 优雅关闭
	slog.Info("服务正在关闭...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Error("API 服务器关闭失败", "error", err)
	}

	slog.Info("服务已关闭")
}
